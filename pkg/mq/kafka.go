// Package mq 提供 Kafka producer 通用实现，用于发布派生数据事件
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wyfcoding/cashflow/pkg/logger"
)

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers      []string
	MaxRetries   int
	RetryBackoff int
}

// KafkaProducer Kafka 生产者
type KafkaProducer struct {
	writer *kafka.Writer
	config KafkaConfig
}

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg KafkaConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		AllowAutoTopicCreation: true,
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            cfg.MaxRetries,
		WriteBackoffMin:        time.Duration(cfg.RetryBackoff) * time.Millisecond,
		WriteBackoffMax:        time.Duration(cfg.RetryBackoff*10) * time.Millisecond,
	}

	logger.Info(context.Background(), "kafka producer created", "brokers", cfg.Brokers)
	return &KafkaProducer{writer: writer, config: cfg}, nil
}

// SendMessage 发送单条消息
func (kp *KafkaProducer) SendMessage(ctx context.Context, topic string, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}

	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		logger.Error(ctx, "failed to send kafka message",
			"topic", topic,
			"key", key,
			"error", err,
		)
		return err
	}

	logger.Debug(ctx, "kafka message sent", "topic", topic, "key", key)
	return nil
}

// Close 关闭生产者
func (kp *KafkaProducer) Close() error {
	return kp.writer.Close()
}

// EventPublisher 事件发布接口，业务层依赖此抽象
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, event any) error
}

// KafkaEventPublisher 基于 Kafka 的事件发布实现
type KafkaEventPublisher struct {
	producer *KafkaProducer
}

// NewKafkaEventPublisher 创建事件发布器
func NewKafkaEventPublisher(producer *KafkaProducer) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer}
}

// Publish 发布事件
func (p *KafkaEventPublisher) Publish(ctx context.Context, topic string, key string, event any) error {
	return p.producer.SendMessage(ctx, topic, key, event)
}

// NoopEventPublisher 空操作事件发布者，用于测试或未接入 Kafka 的环境
type NoopEventPublisher struct{}

// Publish 丢弃事件
func (NoopEventPublisher) Publish(_ context.Context, _ string, _ string, _ any) error { return nil }
