package grpcx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer exposes grpc.health.v1 for a service and mirrors its readiness checks.
type HealthServer struct {
	srv    *grpc.Server
	health *health.Server
	name   string
	checks []func(context.Context) error
	logger *slog.Logger
}

func NewHealthServer(logger *slog.Logger, service string, checks ...func(context.Context) error) *HealthServer {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(unaryServerRequestID()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{srv: srv, health: hs, name: service, checks: checks, logger: logger}
}

// Run serves on addr and refreshes the serving status every interval until ctx ends.
func (h *HealthServer) Run(ctx context.Context, addr string, interval time.Duration) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			h.refresh(ctx)
			select {
			case <-ctx.Done():
				h.health.Shutdown()
				h.srv.GracefulStop()
				return
			case <-t.C:
			}
		}
	}()

	h.logger.Info("grpc health server starting", "addr", addr)
	if err := h.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (h *HealthServer) refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	for _, check := range h.checks {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := check(cctx)
		cancel()
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			break
		}
	}
	h.health.SetServingStatus(h.name, status)
}

// HealthProbe returns a readiness check that asks a remote service for its serving status.
func HealthProbe(conn grpc.ClientConnInterface, service string) func(context.Context) error {
	client := healthpb.NewHealthClient(conn)
	return func(ctx context.Context) error {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return err
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("%s is %s", service, resp.GetStatus())
		}
		return nil
	}
}
