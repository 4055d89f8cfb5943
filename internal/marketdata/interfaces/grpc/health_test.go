package grpc_test

import (
	"context"
	"testing"

	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
	"github.com/wyfcoding/tradestream/internal/marketdata/infrastructure/stream"
	grpcserver "github.com/wyfcoding/tradestream/internal/marketdata/interfaces/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func check(t *testing.T, srv *health.Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("check %s: %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealthReporter(t *testing.T) {
	srv := health.NewServer()
	reporter := grpcserver.NewHealthReporter(srv, "marketdata")

	if got := check(t, srv, "marketdata"); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("service status = %s", got)
	}

	name := grpcserver.StreamServiceName("BTCUSDT")
	if name != "marketdata.stream.BTCUSDT" {
		t.Errorf("name = %s", name)
	}

	reporter.OnStateChange(stream.StateChange{Symbol: "BTCUSDT", From: domain.Connecting, To: domain.Connected})
	if got := check(t, srv, name); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("connected stream status = %s", got)
	}

	reporter.OnStateChange(stream.StateChange{Symbol: "BTCUSDT", From: domain.Connecting, To: domain.Failed})
	if got := check(t, srv, name); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("failed stream status = %s", got)
	}

	reporter.Shutdown()
	if got := check(t, srv, "marketdata"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status after shutdown = %s", got)
	}
}
