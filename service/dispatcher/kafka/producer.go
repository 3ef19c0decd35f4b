package kafka

import (
	"context"
	"strings"
	"time"

	"TeamSpace/tools/errs"

	"github.com/Shopify/sarama"
	"github.com/golang/glog"
)

// ===== 消息归档生产端 =====
//
// 持久化成功的聊天消息再发一份到归档主题，供下游检索/分析
// 管道消费。按房间 key 做 hash 分区，同一房间的消息保序。

func buildConfig(appCfg *Config) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = appCfg.KafkaVersion

	// Producer
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = appCfg.ProducerRetries

	// ★ 关键：Key 控制分区
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	switch strings.ToLower(appCfg.ProducerCompression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	// Net
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second

	return cfg
}

// ArchiveSink 同步生产者的薄封装。nil 接收者等同归档关闭。
type ArchiveSink struct {
	producer sarama.SyncProducer
	topic    string
}

// NewArchiveSink 连接 Kafka 并返回归档 sink。
// 未配置 broker 时返回 (nil, nil)，调用方直接持有 nil sink 即可。
func NewArchiveSink(ctx context.Context, cfg Config) (*ArchiveSink, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	cfg.withDefaults()

	if cfg.AutoCreateTopicsOnStart {
		if err := ensureTopic(ctx, cfg); err != nil {
			return nil, errs.WrapMsg(err, "ensure archive topic", "topic", cfg.Topic)
		}
	}

	sc := buildConfig(&cfg)
	if err := sc.Validate(); err != nil {
		return nil, errs.WrapMsg(err, "sarama config validate")
	}
	client, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, errs.WrapMsg(err, "new kafka client", "brokers", strings.Join(cfg.Brokers, ","))
	}
	p, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, errs.WrapMsg(err, "new sync producer")
	}
	glog.Infof("[Kafka] archive sink ready topic=%s brokers=%v", cfg.Topic, cfg.Brokers)
	return &ArchiveSink{producer: p, topic: cfg.Topic}, nil
}

// Archive 把一条已持久化的消息写入归档主题，按 roomKey 分区。
func (s *ArchiveSink) Archive(roomKey string, payload []byte) error {
	if s == nil || s.producer == nil {
		return nil
	}
	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(roomKey),
		Value: sarama.ByteEncoder(payload),
	}
	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return errs.WrapMsg(err, "archive message", "room_key", roomKey)
	}
	glog.V(1).Infof("[Kafka] archived room=%s partition=%d offset=%d", roomKey, partition, offset)
	return nil
}

// Close 关闭生产者
func (s *ArchiveSink) Close() error {
	if s == nil || s.producer == nil {
		return nil
	}
	return s.producer.Close()
}
