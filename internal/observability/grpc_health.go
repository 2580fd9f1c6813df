package observability

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer exposes readiness over the standard gRPC health protocol so
// orchestrators that probe with grpc_health_probe see the same answer as /ready.
type HealthServer struct {
	health   *health.Server
	checks   map[string]HealthCheckFunc
	interval time.Duration
	logger   zerolog.Logger
}

// NewHealthServer creates a health server that re-evaluates checks every interval.
func NewHealthServer(checks map[string]HealthCheckFunc, interval time.Duration, logger zerolog.Logger) *HealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HealthServer{
		health:   health.NewServer(),
		checks:   checks,
		interval: interval,
		logger:   logger,
	}
}

// Refresh runs all checks once and publishes the result for the overall
// service ("") and for each named dependency.
func (h *HealthServer) Refresh(ctx context.Context) {
	deps, allHealthy := RunChecks(ctx, h.checks)
	for name, dep := range deps {
		h.health.SetServingStatus(name, servingStatus(dep.Status == "healthy"))
	}
	h.health.SetServingStatus("", servingStatus(allHealthy))
	h.health.SetServingStatus(serviceName, servingStatus(allHealthy))
}

// Check answers a health probe in process.
func (h *HealthServer) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Serve registers the health service on a new gRPC server and blocks until
// ctx is cancelled or the listener fails.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, h.health)

	h.Refresh(ctx)
	go func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				h.health.Shutdown()
				srv.GracefulStop()
				return
			case <-ticker.C:
				h.Refresh(ctx)
			}
		}
	}()

	h.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
	if err := srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
