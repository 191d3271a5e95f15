// internal/service/order/interfaces/order_creation_handler.go
package interfaces

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"marketplace/internal/pkg/logger"
	"marketplace/internal/pkg/mq"
	sagaengine "marketplace/internal/saga"
	"marketplace/internal/service/order/application"
)

// OrderPlacedConsumer 是一个驱动适配器：监听下单事件并触发拆单。
type OrderPlacedConsumer struct {
	service *application.OrderApplicationService
	tracer  trace.Tracer
}

func NewOrderPlacedConsumer(service *application.OrderApplicationService) *OrderPlacedConsumer {
	return &OrderPlacedConsumer{service: service, tracer: otel.Tracer(serviceName)}
}

// Handle 满足 mq.HandlerFunc。消息体与 POST /orders/split 的请求体一致。
// 重复投递与校验失败不会进入死信队列，重试它们没有意义。
func (c *OrderPlacedConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	ctx, span := c.tracer.Start(ctx, "OrderPlacedConsumer.Handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.kafka.message.key", string(msg.Key)),
		))
	defer span.End()

	var req application.SplitOrderRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("skipping malformed order placed message")
		return nil
	}
	_, err := c.service.Split(ctx, req)
	if sagaengine.KindOf(err) == sagaengine.KindValidation {
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", req.Order.ID).Msg("order placed message rejected")
		return nil
	}
	return err
}

// Start 创建 kafka 消费者，阻塞直到 ctx 结束。
func (c *OrderPlacedConsumer) Start(ctx context.Context, reader mq.MessageReader, deadLetter mq.MessageWriter) error {
	return mq.NewConsumer(reader, c.Handle, deadLetter).Run(ctx)
}
