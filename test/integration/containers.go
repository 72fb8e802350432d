// Package integration starts throwaway PostgreSQL and Kafka containers for
// tests that need the real thing. Tests using it are skipped under -short
// or when no container runtime is reachable.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	platform "github.com/dmehra2102/shopeasy/internal/platform/postgres"
)

const startTimeout = 2 * time.Minute

type Postgres struct {
	Container *postgres.PostgresContainer
	URL       string
	Pool      *pgxpool.Pool
}

// StartPostgres runs a migrated PostgreSQL 16 instance for the lifetime of t.
func StartPostgres(t *testing.T) *Postgres {
	t.Helper()
	skipUnlessDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("shopeasy"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })

	url, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}
	if err := platform.Migrate(url); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := platform.NewPool(ctx, url)
	if err != nil {
		t.Fatalf("postgres pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return &Postgres{Container: pgC, URL: url, Pool: pool}
}

// StartKafka runs a single-node KRaft broker and returns its addresses.
func StartKafka(t *testing.T) []string {
	t.Helper()
	skipUnlessDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	kafkaC, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		kafka.WithClusterID("shopeasy-test"),
	)
	if err != nil {
		t.Fatalf("start kafka: %v", err)
	}
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	if err != nil {
		t.Fatalf("kafka brokers: %v", err)
	}
	return brokers
}

func skipUnlessDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}
