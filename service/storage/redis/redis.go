package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"TeamSpace/tools/errs"
)

// 在线镜像和近期消息缓存共用这一个连接。
// 连不上属于可降级故障, 由 main 决定跳过相关组件。

const pingTimeout = 3 * time.Second

type Manager struct {
	client *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

var (
	once sync.Once
	mgr  *Manager
)

// InitRedis 建连并 ping 通才算初始化成功; 重复调用只生效第一次。
func InitRedis(c Config) error {
	var initErr error
	once.Do(func() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.Addr,
			Password: c.Password,
			DB:       c.DB,
			PoolSize: c.PoolSize,
		})
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			initErr = errs.WrapMsg(err, "redis ping", "addr", c.Addr)
			return
		}
		mgr = &Manager{client: rdb}
	})
	return initErr
}

// GetRedis 未初始化就取是装配错误, 直接 panic。
func GetRedis() *redis.Client {
	if mgr == nil {
		panic("Redis not initialized, call InitRedis first")
	}
	return mgr.client
}

func CloseRedis() error {
	if mgr != nil && mgr.client != nil {
		return mgr.client.Close()
	}
	return nil
}
