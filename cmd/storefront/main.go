package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	carthttp "github.com/dmehra2102/shopeasy/internal/cart/infrastructure/http"
	cartredis "github.com/dmehra2102/shopeasy/internal/cart/infrastructure/redis"
	catalogapp "github.com/dmehra2102/shopeasy/internal/catalog/application"
	cataloghttp "github.com/dmehra2102/shopeasy/internal/catalog/infrastructure/http"
	"github.com/dmehra2102/shopeasy/internal/catalog/infrastructure/images"
	catalogpg "github.com/dmehra2102/shopeasy/internal/catalog/infrastructure/postgres"
	catalogredis "github.com/dmehra2102/shopeasy/internal/catalog/infrastructure/redis"
	identityapp "github.com/dmehra2102/shopeasy/internal/identity/application"
	identityhttp "github.com/dmehra2102/shopeasy/internal/identity/infrastructure/http"
	identitypg "github.com/dmehra2102/shopeasy/internal/identity/infrastructure/postgres"
	orderapp "github.com/dmehra2102/shopeasy/internal/order/application"
	orderhttp "github.com/dmehra2102/shopeasy/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/shopeasy/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/shopeasy/internal/order/infrastructure/postgres"
	platform "github.com/dmehra2102/shopeasy/internal/platform/postgres"
	"github.com/dmehra2102/shopeasy/internal/session"
	"github.com/dmehra2102/shopeasy/pkg/health"
	"github.com/dmehra2102/shopeasy/pkg/idempotency"
	"github.com/dmehra2102/shopeasy/pkg/logging"
	"github.com/dmehra2102/shopeasy/pkg/outbox"
	"github.com/dmehra2102/shopeasy/pkg/shutdown"
	"github.com/dmehra2102/shopeasy/pkg/tracing"
)

func main() {
	log := logging.New()

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	tp, err := tracing.Init(ctx, "storefront", cfg.otelEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}

	// Schema
	if cfg.migrate {
		err = platform.Migrate(cfg.pgURL)
	} else {
		err = platform.VerifySchema(cfg.pgURL)
	}
	if err != nil {
		log.Error("schema check failed", "err", err, "migrate", cfg.migrate)
		os.Exit(1)
	}

	pool, err := platform.NewPool(ctx, cfg.pgURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
	writer := orderkafka.NewWriter(cfg.kafkaBrokers)

	// Catalog
	imageStore, err := images.NewDiskStore(cfg.uploadDir)
	if err != nil {
		log.Error("upload dir unusable", "err", err)
		os.Exit(1)
	}
	catalogSvc := catalogapp.NewService(log,
		catalogpg.NewRepository(log, pool),
		catalogredis.NewCache(rdb, 5*time.Minute),
		imageStore,
	)

	// Identity & sessions
	identitySvc := identityapp.NewService(log, identitypg.NewRepository(log, pool))
	if cfg.adminUsername != "" {
		if _, err := identitySvc.EnsureAdmin(ctx, cfg.adminUsername, cfg.adminEmail, cfg.adminPassword); err != nil {
			log.Error("admin bootstrap failed", "err", err)
			os.Exit(1)
		}
	}
	sessions := session.NewManager(log, session.NewStore(rdb, cfg.sessionTTL), cfg.cookieSecure)

	// Cart & orders
	carts := cartredis.NewStore(rdb, cfg.sessionTTL)
	orderSvc := orderapp.NewService(log, orderpg.NewRepository(log, pool), cfg.shippingFee)
	idem := idempotency.NewStore(rdb, 24*time.Hour)

	// Outbox relay
	dispatch := outbox.NewDispatcher(log, writer, cfg.eventsTopic)
	relayID, _ := os.Hostname()
	relay := outbox.NewRelay(log, orderpg.NewOutboxStore(log, pool, 10), dispatch, "storefront-"+relayID)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()

	// Health
	monitor := health.NewMonitor(log, map[string]health.Check{
		"postgres": pool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		"kafka":    writer.Ping,
	})
	go monitor.Run(ctx)
	gs, err := health.Listen(cfg.grpcAddr, monitor)
	if err != nil {
		log.Error("grpc health listen failed", "err", err)
		os.Exit(1)
	}

	// HTTP server
	srv := &http.Server{
		Addr: cfg.httpAddr,
		Handler: newRouter(log, handlers{
			sessions:  sessions,
			identity:  identityhttp.NewHandler(log, identitySvc, sessions, carts),
			catalog:   cataloghttp.NewHandler(log, catalogSvc),
			cart:      carthttp.NewHandler(log, carts, catalogSvc, cfg.shippingFee),
			orders:    orderhttp.NewHandler(log, orderSvc, carts, idem),
			health:    monitor,
			uploadDir: cfg.uploadDir,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	go func() {
		log.Info("http listening", "addr", cfg.httpAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdown.Run(log, 15*time.Second,
		shutdown.Hook{Name: "tracing", Fn: tp.Shutdown},
		shutdown.Hook{Name: "postgres", Fn: func(context.Context) error { pool.Close(); return nil }},
		shutdown.Hook{Name: "redis", Fn: func(context.Context) error { return rdb.Close() }},
		shutdown.Hook{Name: "kafka", Fn: func(context.Context) error { return writer.Close() }},
		shutdown.Hook{Name: "relay", Fn: func(ctx context.Context) error {
			select {
			case <-relayDone:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
		shutdown.Hook{Name: "grpc", Fn: func(context.Context) error { gs.GracefulStop(); return nil }},
		shutdown.Hook{Name: "http", Fn: srv.Shutdown},
	)
	log.Info("storefront shutdown complete")
}
