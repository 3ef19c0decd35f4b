package kafka

import "github.com/Shopify/sarama"

// DefaultArchiveTopic 归档消息主题
const DefaultArchiveTopic = "im_message_archive"

// Config 归档生产端配置。Brokers 为空表示归档关闭。
type Config struct {
	Brokers             []string
	Topic               string
	ProducerRetries     int
	ProducerCompression string // none/snappy/lz4/zstd
	KafkaVersion        sarama.KafkaVersion

	// 启动时确保归档主题存在（幂等）
	AutoCreateTopicsOnStart bool
	PartitionsPerTopic      int32
	ReplicationFactor       int16
}

func (c *Config) withDefaults() {
	if c.Topic == "" {
		c.Topic = DefaultArchiveTopic
	}
	if c.ProducerRetries <= 0 {
		c.ProducerRetries = 5
	}
	if c.ProducerCompression == "" {
		c.ProducerCompression = "snappy"
	}
	if c.KafkaVersion == (sarama.KafkaVersion{}) {
		c.KafkaVersion = sarama.V2_8_0_0
	}
	if c.PartitionsPerTopic <= 0 {
		c.PartitionsPerTopic = 3
	}
	if c.ReplicationFactor <= 0 {
		c.ReplicationFactor = 1
	}
}

// Enabled 是否配置了 broker
func (c *Config) Enabled() bool { return len(c.Brokers) > 0 }
