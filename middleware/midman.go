package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
)

// MiddlewareManager 进程级中间件注册表。启动阶段 Add 完,
// 再以一个总控 handler 挂到 Engine 上。
type MiddlewareManager struct {
	mu   sync.RWMutex
	mids []gin.HandlerFunc
}

var (
	globalMgr *MiddlewareManager
	once      sync.Once
)

func NewManager() *MiddlewareManager { return &MiddlewareManager{} }

// Manager 全局实例, 惰性初始化
func Manager() *MiddlewareManager {
	once.Do(func() { globalMgr = NewManager() })
	return globalMgr
}

func (m *MiddlewareManager) Add(h gin.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = append(m.mids, h)
}

func (m *MiddlewareManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = nil
}

// 执行时拿快照, 注册不影响在途请求
func (m *MiddlewareManager) snapshot() []gin.HandlerFunc {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]gin.HandlerFunc{}, m.mids...)
}

// Use 按注册顺序执行, 任何一个 abort 即短路
func (m *MiddlewareManager) Use() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, h := range m.snapshot() {
			h(c)
			if c.IsAborted() {
				return
			}
		}
		c.Next()
	}
}
