// Package mq 提供 Kafka producer 通用实现，用于响应日志的下游分发。
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wyfcoding/dexcore/pkg/logger"
)

// Config Kafka 配置
type Config struct {
	Brokers      []string
	MaxRetries   int
	RetryBackoff int
}

// Producer Kafka 生产者
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg Config) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		AllowAutoTopicCreation: true,
		Compression:            kafka.Gzip,
		// 等待所有副本确认，分发侧不追求极限延迟
		RequiredAcks:    kafka.RequireAll,
		MaxAttempts:     cfg.MaxRetries,
		WriteBackoffMin: time.Duration(cfg.RetryBackoff) * time.Millisecond,
		WriteBackoffMax: time.Duration(cfg.RetryBackoff*10) * time.Millisecond,
	}

	logger.Info(context.Background(), "kafka producer created", "brokers", cfg.Brokers)
	return &Producer{writer: writer}
}

// Send 发送单条消息，value 以 JSON 编码
func (p *Producer) Send(ctx context.Context, topic, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	})
	if err != nil {
		logger.Error(ctx, "failed to send kafka message", "topic", topic, "key", key, "error", err)
		return err
	}
	return nil
}

// SendBatch 批量发送同一主题的消息
func (p *Producer) SendBatch(ctx context.Context, topic string, keys []string, values []any) error {
	if len(keys) != len(values) {
		return fmt.Errorf("keys/values length mismatch: %d != %d", len(keys), len(values))
	}
	if len(values) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(values))
	for i, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal message %d: %w", i, err)
		}
		msgs = append(msgs, kafka.Message{
			Topic: topic,
			Key:   []byte(keys[i]),
			Value: data,
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		logger.Error(ctx, "failed to send kafka messages", "topic", topic, "count", len(msgs), "error", err)
		return err
	}
	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}
