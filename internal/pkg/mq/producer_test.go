package mq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type testEvent struct {
	ID string `json:"id"`
}

func (testEvent) EventType() string { return "TestHappened" }

func TestPublisher_PublishCarriesTypeAndTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	w := &fakeWriter{}
	p := NewPublisher(w)
	require.NoError(t, p.Publish(ctx, "item-1", testEvent{ID: "e-1"}))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "item-1", string(msg.Key))

	var decoded testEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "e-1", decoded.ID)

	carrier := KafkaHeaderCarrier(msg.Headers)
	assert.Equal(t, "TestHappened", carrier.Get("event_type"))
	assert.NotEmpty(t, carrier.Get("traceparent"))

	extracted := ExtractTraceContext(context.Background(), msg.Headers)
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(extracted).TraceID())
}

func TestPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	err := NewPublisher(w).Publish(context.Background(), "k", testEvent{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestKafkaHeaderCarrier_SetOverwrites(t *testing.T) {
	var headers []kafka.Header
	c := (*KafkaHeaderCarrier)(&headers)
	c.Set("a", "1")
	c.Set("a", "2")
	c.Set("b", "3")
	assert.Equal(t, "2", c.Get("a"))
	assert.ElementsMatch(t, []string{"a", "b"}, c.Keys())
}
