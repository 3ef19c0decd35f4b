package natsx

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// ===== 工作区事件总线客户端 =====
//
// CRUD 侧发布 workspace.channel.* 事件, 网关侧订阅后扇出进房间。
// 按 Biz 注册路由, Core 与 JetStream 两套订阅语义共用一个客户端。

// NatsxMode 订阅语义
type NatsxMode int

const (
	Core          NatsxMode = iota // 不落盘, 在线才收得到
	JetStreamPush                  // JS 推送
	JetStreamPull                  // JS 批量拉取
)

// NatsxRoute 一个 Biz 对应一条路由
type NatsxRoute struct {
	Biz           string
	Subject       string
	Mode          NatsxMode
	Queue         string // 队列组; 要每实例全量就留空
	Durable       string // JS durable 名
	AckWait       time.Duration
	MaxAckPending int
}

// NatsxConfig 连接配置
type NatsxConfig struct {
	Servers         []string
	Name            string
	User            string // 可空
	Password        string
	ReconnectWait   time.Duration
	Timeout         time.Duration
	PublishAsyncMax int
}

func durOr(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func (cfg NatsxConfig) withDefaults() NatsxConfig {
	cfg.ReconnectWait = durOr(cfg.ReconnectWait, 500*time.Millisecond)
	cfg.Timeout = durOr(cfg.Timeout, 3*time.Second)
	cfg.PublishAsyncMax = intOr(cfg.PublishAsyncMax, 4096)
	return cfg
}

func (cfg NatsxConfig) connectOptions() []nats.Option {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	return opts
}

// NatsxClient 路由表 + 订阅表
type NatsxClient struct {
	cfg NatsxConfig
	nc  *nats.Conn
	js  nats.JetStreamContext

	mu     sync.RWMutex
	routes map[string]NatsxRoute         // biz -> route
	subs   map[string]*nats.Subscription // biz -> sub
}

// NewNatsxClient 连接 NATS。服务端暂时不可达也会返回成功, 由客户端后台重连。
func NewNatsxClient(cfg NatsxConfig) (*NatsxClient, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	cfg = cfg.withDefaults()
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), cfg.connectOptions()...)
	if err != nil {
		return nil, err
	}
	return &NatsxClient{
		cfg:    cfg,
		nc:     nc,
		routes: make(map[string]NatsxRoute),
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// Close 先排干订阅再排干连接。摘表后在锁外 Drain, 避免回调里再抢锁。
func (c *NatsxClient) Close() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*nats.Subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Drain()
	}
	if c.nc == nil {
		return nil
	}
	return c.nc.Drain()
}

// ensureJS JS 上下文按需建, Core-only 的进程不碰 JetStream
func (c *NatsxClient) ensureJS() error {
	if c.js != nil {
		return nil
	}
	js, err := c.nc.JetStream(nats.PublishAsyncMaxPending(c.cfg.PublishAsyncMax))
	if err == nil {
		c.js = js
	}
	return err
}

func (r NatsxRoute) withDefaults() NatsxRoute {
	r.AckWait = durOr(r.AckWait, 30*time.Second)
	r.MaxAckPending = intOr(r.MaxAckPending, 1024)
	return r
}

// RegisterRoute 登记路由; JS 模式顺带初始化 JetStream
func (c *NatsxClient) RegisterRoute(r NatsxRoute) error {
	if r.Biz == "" || r.Subject == "" {
		return errors.New("invalid route")
	}
	if r.Mode != Core {
		if err := c.ensureJS(); err != nil {
			return fmt.Errorf("init jetstream: %w", err)
		}
	}
	c.mu.Lock()
	c.routes[r.Biz] = r.withDefaults()
	c.mu.Unlock()
	return nil
}

func (c *NatsxClient) route(biz string) (NatsxRoute, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.routes[biz]
	return r, ok
}
