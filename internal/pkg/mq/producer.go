// internal/pkg/mq/producer.go
package mq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"marketplace/internal/pkg/logger"
)

// MessageWriter 是 *kafka.Writer 的最小子集，便于在测试中替换。
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter 创建一个按 key 哈希分区的 writer。
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// ProduceMessage 发送一条消息，并自动注入追踪上下文。
func ProduceMessage(ctx context.Context, writer MessageWriter, key, value []byte) error {
	msg := kafka.Message{Key: key, Value: value}
	InjectTraceContext(ctx, &msg.Headers)
	if err := writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "kafka write")
	}
	return nil
}

// Publisher 把任意事件编码为 JSON 后写入 kafka，并在 event_type 头中标注事件类型。
type Publisher struct {
	writer MessageWriter
}

func NewPublisher(writer MessageWriter) *Publisher {
	return &Publisher{writer: writer}
}

// Typed 由事件实现，返回写入 event_type 头的值。
type Typed interface {
	EventType() string
}

func (p *Publisher) Publish(ctx context.Context, key string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	msg := kafka.Message{Key: []byte(key), Value: value}
	if typed, ok := event.(Typed); ok {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "event_type", Value: []byte(typed.EventType())})
	}
	InjectTraceContext(ctx, &msg.Headers)

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish event key=%s", key)
	}
	logger.Ctx(ctx).Debug().Str("key", key).Int("bytes", len(value)).Msg("event published")
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher 在未配置 kafka 时使用，仅记录日志。
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, key string, event any) error {
	logger.Ctx(ctx).Debug().Str("key", key).Msg("kafka not configured, event dropped")
	return nil
}
