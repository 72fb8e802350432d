// Command catalog-worker consumes order events and evicts the catalog
// entries whose stock they changed.
package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	catalogkafka "github.com/dmehra2102/shopeasy/internal/catalog/infrastructure/kafka"
	catalogredis "github.com/dmehra2102/shopeasy/internal/catalog/infrastructure/redis"
	"github.com/dmehra2102/shopeasy/pkg/health"
	"github.com/dmehra2102/shopeasy/pkg/idempotency"
	"github.com/dmehra2102/shopeasy/pkg/logging"
	"github.com/dmehra2102/shopeasy/pkg/shutdown"
	"github.com/dmehra2102/shopeasy/pkg/tracing"
)

func main() {
	log := logging.New()
	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	redisAddr := env("REDIS_ADDR", "localhost:6379")
	brokers := strings.Split(env("KAFKA_ADDR", "localhost:9092"), ",")
	topic := env("ORDER_EVENTS_TOPIC", "order.events")
	group := env("CONSUMER_GROUP", "catalog-cache")
	otelEndpoint := env("OTEL_ENDPOINT", "")
	grpcAddr := env("GRPC_ADDR", ":50052")

	tp, err := tracing.Init(ctx, "catalog-worker", otelEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	idem := idempotency.NewStore(rdb, 10*time.Minute)
	// The storefront reads with its own ttl; only Invalidate is used here.
	cache := catalogredis.NewCache(rdb, 0)

	monitor := health.NewMonitor(log, map[string]health.Check{
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})
	go monitor.Run(ctx)
	gs, err := health.Listen(grpcAddr, monitor)
	if err != nil {
		log.Error("grpc health listen failed", "err", err)
		os.Exit(1)
	}

	consumer := catalogkafka.NewConsumer(log, catalogkafka.NewReader(brokers, topic, group), cache, idem)
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("consuming order events", "topic", topic, "group", group)
		if err := consumer.Run(ctx); err != nil {
			log.Error("consumer stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdown.Run(log, 10*time.Second,
		shutdown.Hook{Name: "tracing", Fn: tp.Shutdown},
		shutdown.Hook{Name: "redis", Fn: func(context.Context) error { return rdb.Close() }},
		shutdown.Hook{Name: "consumer", Fn: func(ctx context.Context) error {
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
		shutdown.Hook{Name: "grpc", Fn: func(context.Context) error { gs.GracefulStop(); return nil }},
	)
	log.Info("catalog-worker shutdown complete")
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
