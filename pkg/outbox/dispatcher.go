package outbox

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/shopeasy/pkg/tracing"
)

// Headers set on every published message. They take precedence over
// same-named entries in Event.Headers.
const (
	EventTypeHeader     = "event_type"
	EventIDHeader       = "event_id"
	AggregateTypeHeader = "aggregate_type"
)

// Producer is the subset of *kafka.Writer the dispatcher needs.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Dispatcher publishes outbox events to one topic, keyed by aggregate id so
// events of one aggregate stay ordered within a partition.
type Dispatcher struct {
	log      *slog.Logger
	producer Producer
	topic    string
}

func NewDispatcher(log *slog.Logger, producer Producer, topic string) *Dispatcher {
	return &Dispatcher{log: log, producer: producer, topic: topic}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	if err := d.producer.WriteMessages(ctx, d.message(event)); err != nil {
		d.log.ErrorContext(ctx, "outbox dispatch failed", "event_id", event.ID, "topic", d.topic, "err", err)
		return err
	}
	d.log.DebugContext(ctx, "outbox dispatched", "event_id", event.ID, "type", event.Type)
	return nil
}

func (d *Dispatcher) message(event Event) kafka.Message {
	reserved := map[string]string{
		EventTypeHeader:     event.Type,
		EventIDHeader:       strconv.FormatInt(event.ID, 10),
		AggregateTypeHeader: event.AggregateType,
	}
	// The trace context captured when the event was written, not the relay's.
	if event.Traceparent != "" {
		reserved[tracing.TraceparentHeader] = event.Traceparent
	}

	headers := make([]kafka.Header, 0, len(event.Headers)+len(reserved))
	for k, v := range event.Headers {
		if _, ok := reserved[k]; ok {
			continue
		}
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	for k, v := range reserved {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return kafka.Message{
		Topic:   d.topic,
		Key:     []byte(event.AggregateID),
		Value:   event.Payload,
		Headers: headers,
	}
}
