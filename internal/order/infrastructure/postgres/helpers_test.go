package postgres

import (
	"context"

	"github.com/dmehra2102/shopeasy/internal/order/domain"
	"github.com/dmehra2102/shopeasy/pkg/outbox"
)

func newTestEvent(ctx context.Context, typ string) (outbox.Event, error) {
	return outbox.NewEvent(ctx, domain.AggregateType, "1", typ, map[string]string{"kind": typ})
}
