package natsx

import "golang.org/x/net/context"

// NatsxMessage 给回调的统一消息对象
type NatsxMessage struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

// NatsxHandler 订阅回调
type NatsxHandler func(ctx context.Context, msg NatsxMessage) error

// NatsxMiddleware 包一层回调, 去重/日志都以这个形状挂进来
type NatsxMiddleware func(NatsxHandler) NatsxHandler

// NatsxChain 右结合: 先挂的最外层
func NatsxChain(h NatsxHandler, mws ...NatsxMiddleware) NatsxHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
