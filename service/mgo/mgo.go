package mgo

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	mongoutil "TeamSpace/data/database/mgo/mongoutil"
	"TeamSpace/logger"

	"go.mongodb.org/mongo-driver/mongo"
)

// 消息仓储的 Mongo 由这里托管: 后台拨号, 掉线自动重连,
// 史库(module/history)只管拿 DB 用。

const (
	dialBackoffBase = 200 * time.Millisecond
	dialBackoffMax  = 5 * time.Second
	pingEvery       = 10 * time.Second
	pingFailLimit   = 3 // 连续失败几次判掉线
)

type MongoManager struct {
	mu     sync.RWMutex
	client *mongoutil.Client

	readyCh   chan struct{} // 首次连上时 close, 不会重复
	readyOnce sync.Once
	lastErr   atomic.Value // error
}

var globalMgr MongoManager

// StartAsync 启动连接监督协程, 运行到 ctx 结束。
// 首次连上后 Ready()/WaitReady 放行; 之后掉线在后台重拨, 调用方无感。
func StartAsync(ctx context.Context, cfg *mongoutil.Config) {
	if globalMgr.readyCh == nil {
		globalMgr.readyCh = make(chan struct{})
	}
	go globalMgr.supervise(ctx, cfg)
}

func (m *MongoManager) supervise(ctx context.Context, cfg *mongoutil.Config) {
	for {
		if !m.dial(ctx, cfg) {
			return
		}
		if !m.hold(ctx) {
			return
		}
		logger.Warnf("[Mongo] connection lost, redialing")
	}
}

// dial 反复尝试建连, 成功 true; ctx 结束返回 false。
func (m *MongoManager) dial(ctx context.Context, cfg *mongoutil.Config) bool {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return false
		}
		cli, err := mongoutil.NewMongoDB(ctx, cfg)
		if err == nil {
			m.mu.Lock()
			m.client = cli
			m.mu.Unlock()
			m.readyOnce.Do(func() { close(m.readyCh) })
			return true
		}
		m.lastErr.Store(err)
		logger.Warnf("[Mongo] dial failed (attempt %d): %v", attempt+1, err)

		d := dialBackoffBase << attempt
		if d > dialBackoffMax {
			d = dialBackoffMax
		}
		// 抖开各实例的重试节奏
		d -= time.Duration(rand.Int63n(int64(d / 5)))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
		}
		if attempt < 6 {
			attempt++
		}
	}
}

// hold 周期 ping, 连续失败超限就弃掉连接, 返回 true 交回重拨;
// ctx 结束时清理并返回 false。
func (m *MongoManager) hold(ctx context.Context) bool {
	fails := 0
	tick := time.NewTicker(pingEvery)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			m.dropClient()
			return false
		case <-tick.C:
			m.mu.RLock()
			cli := m.client
			m.mu.RUnlock()
			if cli == nil {
				return true
			}
			if err := cli.GetDB().Client().Ping(ctx, nil); err != nil {
				fails++
				m.lastErr.Store(err)
				if fails >= pingFailLimit {
					m.dropClient()
					return true
				}
				continue
			}
			fails = 0
		}
	}
}

func (m *MongoManager) dropClient() {
	m.mu.Lock()
	if m.client != nil {
		_ = m.client.Close(context.Background())
		m.client = nil
	}
	m.mu.Unlock()
}

// Ready 首次连接成功时被 close, 可以 select 等待。
func Ready() <-chan struct{} { return globalMgr.readyCh }

func Manager() *MongoManager { return &globalMgr }

// Err 最近一次连接/探活错误。
func Err() error {
	if v := globalMgr.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// GetDB 要求已就绪, 启动顺序由 main 保证; 没就绪属于装配错误, 直接 panic。
func GetDB() *mongo.Database {
	globalMgr.mu.RLock()
	defer globalMgr.mu.RUnlock()
	if globalMgr.client == nil {
		panic("Mongo not ready: wait Ready() or use TryGetDB()")
	}
	return globalMgr.client.GetDB()
}

// TryGetDB 不 panic 的版本。
func TryGetDB() (*mongo.Database, bool) {
	globalMgr.mu.RLock()
	defer globalMgr.mu.RUnlock()
	if globalMgr.client == nil {
		return nil, false
	}
	return globalMgr.client.GetDB(), true
}

// WaitReady 等首连成功; 超时把最近的拨号错误一并带出来, 不然只有一句
// deadline exceeded 没法排障。
func WaitReady(ctx context.Context, m *MongoManager) error {
	m.mu.RLock()
	connected := m.client != nil
	readyCh := m.readyCh
	m.mu.RUnlock()

	if connected {
		return nil
	}
	if readyCh == nil {
		return fmt.Errorf("mongo manager not started")
	}
	select {
	case <-readyCh:
		return nil
	case <-ctx.Done():
		if last := Err(); last != nil {
			return fmt.Errorf("%w (last dial error: %v)", ctx.Err(), last)
		}
		return ctx.Err()
	}
}
