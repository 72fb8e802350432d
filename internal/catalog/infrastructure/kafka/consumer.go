package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	orderdom "github.com/dmehra2102/shopeasy/internal/order/domain"
	"github.com/dmehra2102/shopeasy/pkg/outbox"
	"github.com/dmehra2102/shopeasy/pkg/tracing"
)

// Invalidator drops cached catalog entries.
type Invalidator interface {
	Invalidate(ctx context.Context, ids ...int64) error
}

// Deduper reports whether a message key was already processed.
type Deduper interface {
	Key(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer keeps the catalog cache in step with stock changes made by
// checkout and cancellation.
type Consumer struct {
	log    *slog.Logger
	reader MessageReader
	cache  Invalidator
	idem   Deduper
	tracer trace.Tracer
}

func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
}

func NewConsumer(log *slog.Logger, reader MessageReader, cache Invalidator, idem Deduper) *Consumer {
	return &Consumer{
		log:    log,
		reader: reader,
		cache:  cache,
		idem:   idem,
		tracer: otel.Tracer("catalog-consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if err := c.handle(ctx, msg); err != nil {
			c.log.ErrorContext(ctx, "order event not applied", "offset", msg.Offset, "err", err)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.ErrorContext(ctx, "commit failed", "offset", msg.Offset, "err", err)
		}
	}
}

// handle applies one message. A returned error means the message was not
// applied and should be redelivered.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
	seen, err := c.idem.Seen(ctx, key)
	if err != nil {
		return err
	}
	if seen {
		c.log.InfoContext(ctx, "duplicate message skipped", "key", key)
		return nil
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	eventType := tracing.HeaderValue(msg.Headers, outbox.EventTypeHeader)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeOrderEvent", trace.WithAttributes(attribute.String("event.type", eventType)))
	defer span.End()

	ids, err := productIDs(eventType, msg.Value)
	if err != nil {
		// Poison message: log and move on rather than block the partition.
		c.log.ErrorContext(msgCtx, "unmarshal failed", "type", eventType, "err", err)
		return nil
	}
	if ids == nil {
		return nil
	}

	if err := c.cache.Invalidate(msgCtx, ids...); err != nil {
		if fErr := c.idem.Forget(ctx, key); fErr != nil {
			c.log.WarnContext(msgCtx, "idempotency key release failed", "key", key, "err", fErr)
		}
		return err
	}
	c.log.InfoContext(msgCtx, "catalog cache invalidated", "type", eventType, "products", ids)
	return nil
}

// productIDs returns the products whose stock an event changed, or nil for
// events that leave stock alone.
func productIDs(eventType string, payload []byte) ([]int64, error) {
	switch eventType {
	case orderdom.EventOrderPlaced:
		var ev orderdom.OrderPlaced
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		return orderdom.ProductIDs(ev.Items), nil
	case orderdom.EventOrderCancelled:
		var ev orderdom.OrderCancelled
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		return orderdom.ProductIDs(ev.Items), nil
	}
	return nil, nil
}
