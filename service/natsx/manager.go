package natsx

import (
	"context"
	"errors"
	"time"
)

// NatsManager 把客户端/生产端/订阅端收拢成一个门面, 调用方只拿它。
type NatsManager struct {
	client   *NatsxClient
	producer *NatsxProducer
	consumer *NatsxConsumer
}

var errManagerNotInit = errors.New("nats manager not initialized")

func NewNatsManager(cfg NatsxConfig, middlewares ...NatsxMiddleware) (*NatsManager, error) {
	c, err := NewNatsxClient(cfg)
	if err != nil {
		return nil, err
	}
	return &NatsManager{
		client:   c,
		producer: NewNatsxProducer(c),
		consumer: NewNatsxConsumer(c, middlewares...),
	}, nil
}

func (m *NatsManager) ok() bool { return m != nil && m.client != nil }

// Close 排干订阅与连接
func (m *NatsManager) Close() error {
	if !m.ok() {
		return nil
	}
	return m.client.Close()
}

// RegisterRoute biz -> subject/mode/queue/durable
func (m *NatsManager) RegisterRoute(r NatsxRoute) error {
	if !m.ok() {
		return errManagerNotInit
	}
	return m.client.RegisterRoute(r)
}

func (m *NatsManager) Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	if !m.ok() {
		return errManagerNotInit
	}
	return m.producer.Publish(ctx, biz, data, hdr)
}

// PublishOnce 带 Nats-Msg-Id, JetStream 端按窗口去重
func (m *NatsManager) PublishOnce(ctx context.Context, biz string, data []byte, hdr map[string]string, msgID string) error {
	if !m.ok() {
		return errManagerNotInit
	}
	return m.producer.PublishOnce(ctx, biz, data, hdr, msgID)
}

// Subscribe 分摊消费用 Queue; 广播(每实例全量)把 Queue 置空
func (m *NatsManager) Subscribe(biz string, h NatsxHandler) error {
	if !m.ok() {
		return errManagerNotInit
	}
	return m.consumer.Subscribe(biz, h)
}

func (m *NatsManager) PullConsume(ctx context.Context, biz string, batch int, wait time.Duration, h NatsxHandler) error {
	if !m.ok() {
		return errManagerNotInit
	}
	return m.consumer.PullConsume(ctx, biz, batch, wait, h)
}
