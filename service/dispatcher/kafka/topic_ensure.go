package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shopify/sarama"
	"github.com/golang/glog"
)

// ensureTopic 启动时确保归档主题存在（幂等，可安全并发启动多实例）。
func ensureTopic(ctx context.Context, cfg Config) error {
	ac := sarama.NewConfig()
	ac.Version = cfg.KafkaVersion
	ac.Admin.Timeout = 15 * time.Second
	ac.Net.DialTimeout = 10 * time.Second
	ac.Net.ReadTimeout = 10 * time.Second
	ac.Net.WriteTimeout = 10 * time.Second

	admin, err := sarama.NewClusterAdmin(cfg.Brokers, ac)
	if err != nil {
		return fmt.Errorf("new cluster admin: %w", err)
	}
	defer func() {
		if e := admin.Close(); e != nil {
			glog.Errorf("[Kafka] close cluster admin: %v", e)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	existing, err := admin.ListTopics()
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}
	if _, ok := existing[cfg.Topic]; ok {
		return nil
	}

	// min.insync.replicas 跟随副本数
	minISR := "1"
	if cfg.ReplicationFactor > 1 {
		minISR = fmt.Sprintf("%d", cfg.ReplicationFactor-1)
	}
	retentionMs := fmt.Sprintf("%d", 7*24*60*60*1000) // 7天
	segmentBytes := fmt.Sprintf("%d", 1<<30)          // 1 GiB

	detail := &sarama.TopicDetail{
		NumPartitions:     cfg.PartitionsPerTopic,
		ReplicationFactor: cfg.ReplicationFactor,
		ConfigEntries: map[string]*string{
			"cleanup.policy":                 ptr("delete"),
			"retention.ms":                   &retentionMs,
			"segment.bytes":                  &segmentBytes,
			"min.insync.replicas":            &minISR,
			"unclean.leader.election.enable": ptr("false"),
		},
	}
	if err := admin.CreateTopic(cfg.Topic, detail, false); err != nil {
		if isTopicExistsErr(err) {
			return nil
		}
		return fmt.Errorf("create topic %q: %w", cfg.Topic, err)
	}
	glog.Infof("[Kafka] topic created %s (partitions=%d, rf=%d)", cfg.Topic, cfg.PartitionsPerTopic, cfg.ReplicationFactor)
	return nil
}

func ptr[T any](v T) *T { return &v }

func isTopicExistsErr(err error) bool {
	if errors.Is(err, sarama.ErrTopicAlreadyExists) {
		return true
	}
	var te *sarama.TopicError
	if errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists {
		return true
	}
	// 有的 broker 只返回文本
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}
