package outbox

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	pending []Event
	sent    []int64
	failed  map[int64]string
}

func (s *fakeStore) LockBatch(_ context.Context, _ string, batchSize int, _ time.Duration) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(batchSize, len(s.pending))
	batch := s.pending[:n]
	s.pending = s.pending[n:]
	return batch, nil
}

func (s *fakeStore) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, ids...)
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil {
		s.failed = map[int64]string{}
	}
	s.failed[id] = errMsg
	return nil
}

func (s *fakeStore) ExtendLease(context.Context, string, []int64, time.Duration) error { return nil }

type fakeProducer struct {
	msgs   []kafka.Message
	failOn string
}

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		if string(m.Key) == p.failOn {
			return errors.New("broker unavailable")
		}
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestRelayTickDispatchesAndMarks(t *testing.T) {
	store := &fakeStore{pending: []Event{
		{ID: 1, AggregateID: "10", Type: "OrderPlaced", Payload: []byte(`{}`), Traceparent: "00-abc-def-01"},
		{ID: 2, AggregateID: "11", Type: "OrderPlaced", Payload: []byte(`{}`)},
		{ID: 3, AggregateID: "12", Type: "OrderCancelled", Payload: []byte(`{}`)},
	}}
	producer := &fakeProducer{failOn: "11"}
	relay := NewRelay(quietLogger(), store, NewDispatcher(quietLogger(), producer, "orders"), "test", WithBatchSize(10))

	n, err := relay.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 3}, store.sent)
	assert.Contains(t, store.failed[2], "broker unavailable")
	require.Len(t, producer.msgs, 2)

	first := producer.msgs[0]
	assert.Equal(t, "orders", first.Topic)
	headers := map[string]string{}
	for _, h := range first.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "OrderPlaced", headers[EventTypeHeader])
	assert.Equal(t, "00-abc-def-01", headers["traceparent"])
}

func TestRelayTickEmpty(t *testing.T) {
	relay := NewRelay(quietLogger(), &fakeStore{}, NewDispatcher(quietLogger(), &fakeProducer{}, "orders"), "test")
	n, err := relay.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelayRunStopsOnCancel(t *testing.T) {
	store := &fakeStore{pending: []Event{{ID: 7, AggregateID: "1", Type: "OrderShipped"}}}
	relay := NewRelay(quietLogger(), store, NewDispatcher(quietLogger(), &fakeProducer{}, "orders"), "test",
		WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.sent) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestNewEventMarshalsPayload(t *testing.T) {
	ev, err := NewEvent(context.Background(), "order", "42", "OrderPlaced", map[string]int{"order_id": 42})
	require.NoError(t, err)
	assert.JSONEq(t, `{"order_id":42}`, string(ev.Payload))
	assert.Equal(t, StatusPending, ev.Status)
	assert.Equal(t, "order", ev.Headers["aggregate_type"])

	_, err = NewEvent(context.Background(), "order", "42", "Bad", make(chan int))
	assert.Error(t, err)
}
