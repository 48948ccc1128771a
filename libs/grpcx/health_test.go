package grpcx

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealthProbe(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("appointment-service", healthpb.HealthCheckResponse_NOT_SERVING)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := Dial("passthrough:///bufnet", grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	probe := HealthProbe(conn, "appointment-service")
	if err := probe(context.Background()); err == nil {
		t.Fatal("expected NOT_SERVING to fail the probe")
	}
	hs.SetServingStatus("appointment-service", healthpb.HealthCheckResponse_SERVING)
	if err := probe(context.Background()); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
}
