package natsx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TeamSpace/logger"

	"github.com/nats-io/nats.go"
)

// NatsxConsumer 订阅端, 回调统一过中间件链
type NatsxConsumer struct {
	c   *NatsxClient
	mws []NatsxMiddleware
}

func NewNatsxConsumer(c *NatsxClient, mws ...NatsxMiddleware) *NatsxConsumer {
	return &NatsxConsumer{c: c, mws: mws}
}

// wrapMsg 进回调前拷贝一份 Data, nats 会复用底层缓冲
func wrapMsg(m *nats.Msg) NatsxMessage {
	return NatsxMessage{
		Subject: m.Subject,
		Data:    append([]byte(nil), m.Data...),
		Header:  headerToMap(m.Header),
	}
}

// Subscribe 按路由的 Mode 建订阅: Core 或 JetStream Push
func (cs *NatsxConsumer) Subscribe(biz string, h NatsxHandler) error {
	r, ok := cs.c.route(biz)
	if !ok {
		return fmt.Errorf("route not found: %s", biz)
	}
	h = NatsxChain(h, cs.mws...)

	switch r.Mode {
	case Core:
		return cs.subscribeCore(biz, r, h)
	case JetStreamPush:
		return cs.subscribeJSPush(biz, r, h)
	default:
		return fmt.Errorf("mode not supported in Subscribe: %v", r.Mode)
	}
}

func (cs *NatsxConsumer) subscribeCore(biz string, r NatsxRoute, h NatsxHandler) error {
	cb := func(m *nats.Msg) {
		// Core 模式没有 ACK 语义，处理失败只能记录
		if err := h(context.Background(), wrapMsg(m)); err != nil {
			logger.Warnf("nats: handler failed subject=%s err=%v", m.Subject, err)
		}
	}
	var (
		sub *nats.Subscription
		err error
	)
	if r.Queue == "" {
		sub, err = cs.c.nc.Subscribe(r.Subject, cb)
	} else {
		sub, err = cs.c.nc.QueueSubscribe(r.Subject, r.Queue, cb)
	}
	if err != nil {
		return err
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
	cs.rememberSub(biz, sub)
	return nil
}

func (cs *NatsxConsumer) subscribeJSPush(biz string, r NatsxRoute, h NatsxHandler) error {
	if cs.c.js == nil {
		return errors.New("jetstream not initialized")
	}
	opts := []nats.SubOpt{
		nats.ManualAck(),
		nats.AckWait(r.AckWait),
		nats.MaxAckPending(r.MaxAckPending),
	}
	if r.Durable != "" {
		opts = append(opts, nats.Durable(r.Durable))
	}
	cb := func(m *nats.Msg) {
		if err := h(context.Background(), wrapMsg(m)); err == nil {
			_ = m.Ack()
		} else {
			_ = m.Nak()
		}
	}
	var (
		sub *nats.Subscription
		err error
	)
	if r.Queue == "" {
		sub, err = cs.c.js.Subscribe(r.Subject, cb, opts...)
	} else {
		sub, err = cs.c.js.QueueSubscribe(r.Subject, r.Queue, cb, opts...)
	}
	if err != nil {
		return err
	}
	cs.rememberSub(biz, sub)
	return nil
}

func (cs *NatsxConsumer) rememberSub(biz string, sub *nats.Subscription) {
	cs.c.mu.Lock()
	cs.c.subs[biz] = sub
	cs.c.mu.Unlock()
}

// PullConsume JetStream Pull 批量拉取, 阻塞到 ctx 结束
func (cs *NatsxConsumer) PullConsume(ctx context.Context, biz string, batch int, wait time.Duration, h NatsxHandler) error {
	r, ok := cs.c.route(biz)
	if !ok {
		return fmt.Errorf("route not found: %s", biz)
	}
	if r.Mode != JetStreamPull {
		return fmt.Errorf("biz=%s not JetStreamPull", biz)
	}
	if cs.c.js == nil {
		return errors.New("jetstream not initialized")
	}
	if r.Durable == "" {
		return errors.New("JetStreamPull requires Durable consumer name")
	}

	sub, err := cs.c.js.PullSubscribe(r.Subject, r.Durable, nats.PullMaxWaiting(8))
	if err != nil {
		return err
	}
	h = NatsxChain(h, cs.mws...)
	if batch <= 0 {
		batch = 64
	}
	if wait <= 0 {
		wait = 500 * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		msgs, err := sub.Fetch(batch, nats.MaxWait(wait))
		if err == nats.ErrTimeout {
			continue
		}
		if err != nil {
			time.Sleep(200 * time.Millisecond)
			continue
		}
		for _, m := range msgs {
			if err := h(context.Background(), wrapMsg(m)); err == nil {
				_ = m.Ack()
			} else {
				_ = m.Nak()
			}
		}
	}
}

// headerToMap 每个键取第一个值
func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
