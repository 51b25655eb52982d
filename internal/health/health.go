// Package health gRPC health-check сервиса с проверкой зависимостей.
package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Krimson/gnss-quality/internal/logging"
)

// ServiceName имя сервиса в health-check
const ServiceName = "gnss.quality.v1.QualityService"

// Pinger зависимость, доступность которой определяет статус сервиса
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker выставляет статус сервиса по результатам проверки зависимостей
type Checker struct {
	server *grpchealth.Server
	log    zerolog.Logger
}

// NewChecker создает Checker. Общий статус ("") сразу SERVING.
func NewChecker() *Checker {
	return &Checker{
		server: grpchealth.NewServer(),
		log:    logging.Component("health"),
	}
}

// Register регистрирует grpc_health_v1 на сервере
func (c *Checker) Register(s grpc.ServiceRegistrar) {
	grpc_health_v1.RegisterHealthServer(s, c.server)
}

// Server реализация grpc_health_v1
func (c *Checker) Server() grpc_health_v1.HealthServer {
	return c.server
}

// Status текущий статус сервиса
func (c *Checker) Status(ctx context.Context, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	resp, err := c.server.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN
	}
	return resp.GetStatus()
}

// CheckDependencies пингует все зависимости и выставляет статус сервиса
func (c *Checker) CheckDependencies(ctx context.Context, service string, deps ...Pinger) {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	for _, dep := range deps {
		if err := dep.Ping(ctx); err != nil {
			c.log.Warn().Err(err).Str("service", service).Msg("Dependency check failed")
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			break
		}
	}

	if prev := c.Status(ctx, service); prev != status {
		c.log.Info().Str("service", service).Str("status", status.String()).Msg("Serving status changed")
	}
	c.server.SetServingStatus(service, status)
}

// Monitor периодически проверяет зависимости до отмены ctx
func (c *Checker) Monitor(ctx context.Context, interval time.Duration, service string, deps ...Pinger) {
	check := func() {
		pingCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		c.CheckDependencies(pingCtx, service, deps...)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// Shutdown переводит все сервисы в NOT_SERVING, дальнейшие обновления игнорируются
func (c *Checker) Shutdown() {
	c.server.Shutdown()
}
