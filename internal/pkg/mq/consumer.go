// internal/pkg/mq/consumer.go
package mq

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"marketplace/internal/pkg/logger"
)

// MessageReader 是 *kafka.Reader 的最小子集，便于在测试中替换。
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaReader 创建一个消费组 reader，offset 由 Consumer 手动提交。
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// HandlerFunc 处理一条消息，ctx 中已经恢复了上游的链路。
type HandlerFunc func(ctx context.Context, msg kafka.Message) error

// Consumer 逐条拉取消息并交给 handler。处理失败的消息写入死信 topic 后照常提交 offset。
type Consumer struct {
	reader     MessageReader
	handle     HandlerFunc
	deadLetter MessageWriter
	retryDelay time.Duration
}

// NewConsumer 创建消费者。deadLetter 为 nil 时失败消息只记录日志。
func NewConsumer(reader MessageReader, handle HandlerFunc, deadLetter MessageWriter) *Consumer {
	return &Consumer{reader: reader, handle: handle, deadLetter: deadLetter, retryDelay: time.Second}
}

// Run 阻塞直到 ctx 结束。
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			// 如果是上下文取消导致的错误，则正常退出
			if ctx.Err() != nil {
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not fetch message, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}

		msgCtx := ExtractTraceContext(ctx, msg.Headers)
		if err := c.handle(msgCtx, msg); err != nil {
			c.fail(msgCtx, msg, err)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to commit message")
		}
	}
}

func (c *Consumer) fail(ctx context.Context, msg kafka.Message, cause error) {
	log := logger.Ctx(ctx).With().Str("topic", msg.Topic).Int64("offset", msg.Offset).Logger()
	if c.deadLetter == nil {
		log.Error().Err(cause).Msg("message processing failed")
		return
	}
	headers := append([]kafka.Header(nil), msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "original_topic", Value: []byte(msg.Topic)},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
	)
	dlt := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}
	if err := c.deadLetter.WriteMessages(context.WithoutCancel(ctx), dlt); err != nil {
		log.Error().Err(errors.Wrap(err, "dead letter write")).AnErr("cause", cause).Msg("message lost")
		return
	}
	log.Warn().Err(cause).Msg("message moved to dead letter topic")
}

// Close 关闭底层 reader。
func (c *Consumer) Close() error {
	return c.reader.Close()
}
