package natsx

import (
	"context"
	"strings"
	"sync"
	"time"

	"TeamSpace/logger"
)

// IdemStore 判重存储: 第一次见 key 返回 false 并记住, 窗口内再见返回 true。
type IdemStore interface {
	SeenOnce(key string, ttl time.Duration) (seen bool, err error)
}

// memIdem 进程内实现, 过期精度到秒。
type memIdem struct {
	mu  sync.Mutex
	m   map[string]int64 // key -> expireUnix
	ttl time.Duration
}

func NewMemIdem(defaultTTL time.Duration) IdemStore {
	mi := &memIdem{m: make(map[string]int64), ttl: defaultTTL}
	go mi.sweep()
	return mi
}

// sweep 每分钟清一轮过期键, 防止长跑进程越积越多
func (mi *memIdem) sweep() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for range t.C {
		now := time.Now().Unix()
		mi.mu.Lock()
		for k, exp := range mi.m {
			if exp <= now {
				delete(mi.m, k)
			}
		}
		mi.mu.Unlock()
	}
}

func (mi *memIdem) SeenOnce(key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = mi.ttl
	}
	now := time.Now()
	mi.mu.Lock()
	defer mi.mu.Unlock()
	if old, ok := mi.m[key]; ok && old > now.Unix() {
		return true, nil
	}
	mi.m[key] = now.Add(ttl).Unix()
	return false, nil
}

// msgIDFromHeader 先认标准 Nats-Msg-Id, 再认业务自定义 X-Msg-Id
func msgIDFromHeader(h map[string]string) string {
	for _, k := range []string{"Nats-Msg-Id", "nats-msg-id", "X-Msg-Id", "x-msg-id"} {
		if v, ok := h[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

// idemKey 优先取显式消息ID; 没带 ID 的消息退化成 subject+内容的弱键,
// 两条恰好同字节的合法事件也会被并掉, 发布方应当带 ID。
func idemKey(msg NatsxMessage) string {
	if id := msgIDFromHeader(msg.Header); id != "" {
		return id
	}
	return msg.Subject + "|" + strings.TrimSpace(string(msg.Data))
}

// NatsxIdemMiddleware 订阅端去重
func NatsxIdemMiddleware(store IdemStore, ttl time.Duration) NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) error {
			key := idemKey(msg)
			if seen, _ := store.SeenOnce(key, ttl); seen {
				logger.Debugf("nats: drop duplicate subject=%s id=%s", msg.Subject, key)
				return nil
			}
			return next(ctx, msg)
		}
	}
}
