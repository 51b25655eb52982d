package health

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func TestCheck_Overall(t *testing.T) {
	c := NewChecker()
	resp, err := c.Server().Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("Expected SERVING, got %v", resp.Status)
	}
}

func TestCheck_UnknownService(t *testing.T) {
	c := NewChecker()
	_, err := c.Server().Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: "missing"})
	if status.Code(err) != codes.NotFound {
		t.Errorf("Expected NotFound, got %v", err)
	}
	if got := c.Status(context.Background(), "missing"); got != grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN {
		t.Errorf("Expected SERVICE_UNKNOWN, got %v", got)
	}
}

func TestCheckDependencies(t *testing.T) {
	ctx := context.Background()
	c := NewChecker()
	store := &fakePinger{}

	c.CheckDependencies(ctx, ServiceName, store)
	if got := c.Status(ctx, ServiceName); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("Expected SERVING, got %v", got)
	}

	store.err = errors.New("connection refused")
	c.CheckDependencies(ctx, ServiceName, &fakePinger{}, store)
	if got := c.Status(ctx, ServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING, got %v", got)
	}
}

func TestShutdown(t *testing.T) {
	ctx := context.Background()
	c := NewChecker()
	c.CheckDependencies(ctx, ServiceName, &fakePinger{})

	c.Shutdown()
	if got := c.Status(ctx, ServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING after shutdown, got %v", got)
	}
	c.CheckDependencies(ctx, ServiceName, &fakePinger{})
	if got := c.Status(ctx, ServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Status must stay NOT_SERVING after shutdown, got %v", got)
	}
}
