// Package health reports dependency reachability over the standard gRPC
// health protocol and a plain HTTP endpoint.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

type Monitor struct {
	log      *slog.Logger
	checks   map[string]Check
	hs       *grpchealth.Server
	interval time.Duration
	timeout  time.Duration
}

func NewMonitor(log *slog.Logger, checks map[string]Check) *Monitor {
	return &Monitor{
		log:      log,
		checks:   checks,
		hs:       grpchealth.NewServer(),
		interval: 5 * time.Second,
		timeout:  2 * time.Second,
	}
}

// Probe runs every check once and publishes the result. The overall ("")
// service is SERVING only when every check passes.
func (m *Monitor) Probe(ctx context.Context) map[string]error {
	results := make(map[string]error, len(m.checks))
	overall := healthpb.HealthCheckResponse_SERVING
	for name, check := range m.checks {
		cctx, cancel := context.WithTimeout(ctx, m.timeout)
		err := check(cctx)
		cancel()

		results[name] = err
		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = status
			m.log.Warn("health check failed", "check", name, "err", err)
		}
		m.hs.SetServingStatus(name, status)
	}
	m.hs.SetServingStatus("", overall)
	return results
}

func (m *Monitor) Run(ctx context.Context) {
	m.Probe(ctx)
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.hs.Shutdown()
			return
		case <-t.C:
			m.Probe(ctx)
		}
	}
}

func (m *Monitor) Register(gs *grpc.Server) {
	healthpb.RegisterHealthServer(gs, m.hs)
}

func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	results := m.Probe(r.Context())

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	code := http.StatusOK
	body := struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}{Status: "ok", Checks: make(map[string]string, len(results))}
	for _, name := range names {
		if err := results[name]; err != nil {
			body.Checks[name] = err.Error()
			body.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		body.Checks[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// Serve starts a gRPC server exposing the health service on lis.
func Serve(lis net.Listener, m *Monitor) *grpc.Server {
	gs := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	m.Register(gs)
	reflection.Register(gs)
	go func() {
		if err := gs.Serve(lis); err != nil {
			m.log.Error("grpc health server stopped", "err", err)
		}
	}()
	return gs
}

// Listen opens addr and serves the health service on it.
func Listen(addr string, m *Monitor) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return Serve(lis, m), nil
}
