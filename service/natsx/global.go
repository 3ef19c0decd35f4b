package natsx

import (
	"context"
	"errors"
	"sync"
	"time"

	"TeamSpace/logger"
)

// 包级单例。路由和订阅允许在 StartNats 之前登记(进程装配顺序不固定),
// 启动时一次性补挂。

type globalState struct {
	mu  sync.Mutex
	mgr *NatsManager

	pendingRoutes   map[string]NatsxRoute     // 启动前缓存的路由
	pendingHandlers map[string][]NatsxHandler // 启动前缓存的订阅回调
	registeredBiz   map[string]struct{}       // 去重
	subscribedBiz   map[string]struct{}
	middlewares     []NatsxMiddleware
}

var (
	gstate = globalState{
		pendingRoutes:   make(map[string]NatsxRoute),
		pendingHandlers: make(map[string][]NatsxHandler),
		registeredBiz:   make(map[string]struct{}),
		subscribedBiz:   make(map[string]struct{}),
	}
	startOnce sync.Once
)

// UseGlobalMiddlewares 启动前挂全局中间件(幂等去重之类)
func UseGlobalMiddlewares(mws ...NatsxMiddleware) {
	gstate.mu.Lock()
	defer gstate.mu.Unlock()
	gstate.middlewares = append(gstate.middlewares, mws...)
}

// StartNats 启动全局管理器, 只执行一次, 并把启动前缓存的路由/订阅补挂上去。
// 启动失败只记日志, 网关照常服务: 事件桥是尽力而为的旁路。
func StartNats(cfg ...NatsxConfig) {
	startOnce.Do(func() {
		c := NatsxConfig{
			Servers: []string{"nats://127.0.0.1:4222"},
			Name:    "global-nats",
		}
		if len(cfg) > 0 {
			c = cfg[0]
		}

		gstate.mu.Lock()
		mws := append([]NatsxMiddleware(nil), gstate.middlewares...)
		gstate.mu.Unlock()

		mgr, err := NewNatsManager(c, mws...)
		if err != nil {
			logger.Errorf("nats: start manager failed: %v", err)
			return
		}
		gstate.mu.Lock()
		gstate.mgr = mgr
		gstate.mu.Unlock()

		go applyPending()
	})
}

// applyPending 路由先行, 订阅在后; 单项失败跳过不拦其余。
func applyPending() {
	gstate.mu.Lock()
	defer gstate.mu.Unlock()

	for biz, r := range gstate.pendingRoutes {
		if err := gstate.mgr.RegisterRoute(r); err != nil {
			logger.Errorf("nats: register route failed (biz=%s): %v", biz, err)
			continue
		}
		gstate.registeredBiz[biz] = struct{}{}
	}
	for biz, hs := range gstate.pendingHandlers {
		for _, h := range hs {
			if err := gstate.mgr.Subscribe(biz, h); err != nil {
				logger.Errorf("nats: subscribe failed (biz=%s): %v", biz, err)
				continue
			}
		}
		gstate.subscribedBiz[biz] = struct{}{}
	}
	gstate.pendingRoutes = make(map[string]NatsxRoute)
	gstate.pendingHandlers = make(map[string][]NatsxHandler)
	logger.Infof("nats: manager started, pending routes/handlers applied")
}

// StopNats 优雅关闭
func StopNats() error {
	gstate.mu.Lock()
	defer gstate.mu.Unlock()
	if gstate.mgr == nil {
		return nil
	}
	err := gstate.mgr.Close()
	gstate.mgr = nil
	return err
}

// GetNatsManager 未启动时返回错误
func GetNatsManager() (*NatsManager, error) {
	gstate.mu.Lock()
	defer gstate.mu.Unlock()
	if gstate.mgr == nil {
		return nil, errors.New("NatsManager not started: call StartNats() first")
	}
	return gstate.mgr, nil
}

func currentMgr() (*NatsManager, error) {
	gstate.mu.Lock()
	defer gstate.mu.Unlock()
	if gstate.mgr == nil {
		return nil, errors.New("NatsManager not started")
	}
	return gstate.mgr, nil
}

// RegisterRoute 同 Biz 重复注册直接跳过; 未启动时先缓存
func RegisterRoute(r NatsxRoute) error {
	gstate.mu.Lock()
	defer gstate.mu.Unlock()

	if _, ok := gstate.registeredBiz[r.Biz]; ok {
		return nil
	}
	if gstate.mgr == nil {
		gstate.pendingRoutes[r.Biz] = r
		gstate.registeredBiz[r.Biz] = struct{}{}
		return nil
	}
	if err := gstate.mgr.RegisterRoute(r); err != nil {
		return err
	}
	gstate.registeredBiz[r.Biz] = struct{}{}
	return nil
}

// RegisterHandler 给 Biz 挂订阅回调; 未启动时先缓存
func RegisterHandler(biz string, h NatsxHandler) error {
	gstate.mu.Lock()
	defer gstate.mu.Unlock()

	if gstate.mgr == nil {
		gstate.pendingHandlers[biz] = append(gstate.pendingHandlers[biz], h)
		return nil
	}
	if err := gstate.mgr.Subscribe(biz, h); err != nil {
		return err
	}
	gstate.subscribedBiz[biz] = struct{}{}
	return nil
}

// Publish 发布(要求已启动)
func Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	m, err := currentMgr()
	if err != nil {
		return err
	}
	return m.Publish(ctx, biz, data, hdr)
}

// PublishOnce 带 Nats-Msg-Id 的去重发布
func PublishOnce(ctx context.Context, biz string, data []byte, hdr map[string]string, msgID string) error {
	m, err := currentMgr()
	if err != nil {
		return err
	}
	return m.PublishOnce(ctx, biz, data, hdr, msgID)
}

// PullConsume JetStream 拉批消费, 路由没注册会失败
func PullConsume(ctx context.Context, biz string, batch int, wait time.Duration, h NatsxHandler) error {
	m, err := currentMgr()
	if err != nil {
		return err
	}
	return m.PullConsume(ctx, biz, batch, wait, h)
}
