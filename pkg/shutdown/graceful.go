package shutdown

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"
)

func WithSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// Hook releases one resource. Hooks run after the signal context is done,
// so they get their own deadline.
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Run executes hooks in reverse registration order within timeout.
func Run(log *slog.Logger, timeout time.Duration, hooks ...Hook) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.Fn(ctx); err != nil {
			log.Error("shutdown hook failed", "hook", h.Name, "err", err)
			continue
		}
		log.Info("shutdown hook done", "hook", h.Name)
	}
}
