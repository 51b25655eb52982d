package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/Krimson/gnss-quality/internal/api"
	"github.com/Krimson/gnss-quality/internal/config"
	"github.com/Krimson/gnss-quality/internal/converter"
	"github.com/Krimson/gnss-quality/internal/health"
	"github.com/Krimson/gnss-quality/internal/logging"
	"github.com/Krimson/gnss-quality/internal/quality"
	"github.com/Krimson/gnss-quality/internal/storage"
	"github.com/Krimson/gnss-quality/internal/task"
	"github.com/Krimson/gnss-quality/internal/websocket"
)

// @title GNSS Quality Service API
// @version 1.0
// @description Загрузка RINEX-файлов и подсчет пропусков наблюдений по спутникам
// @BasePath /
// @schemes http

const healthInterval = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logFile, err := logging.Init(logging.Config{
		Level:           cfg.Log.Level,
		Format:          cfg.Log.Format,
		File:            cfg.Log.File,
		RetentionDays:   cfg.Log.RetentionDays,
		CleanupInterval: cfg.Log.CleanupInterval,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to init logging")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if logFile != nil {
		defer logFile.Close()
		logFile.StartCleanup(ctx, cfg.Log.CleanupInterval)
	}

	logging.Info().
		Str("http_port", cfg.Server.HTTPPort).
		Str("grpc_port", cfg.Server.GRPCPort).
		Str("converter", cfg.Converter.BaseURL).
		Msg("Starting quality service")

	store, err := newTaskStore(ctx, cfg.Redis)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to init task store")
	}
	defer store.Close()

	var (
		reports  storage.Repository = storage.NopRepository{}
		checkers                    = []health.Pinger{store}
	)
	if cfg.Postgres.Enabled {
		repo, err := storage.NewPostgresRepositoryFromDSN(ctx, cfg.Postgres.DSN)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		if err := repo.EnsureSchema(ctx); err != nil {
			logging.Fatal().Err(err).Msg("Failed to create report schema")
		}
		logging.Info().Msg("Connected to PostgreSQL")
		reports = repo
		checkers = append(checkers, repo)
	}
	defer reports.Close()

	hub := websocket.NewHub()
	go hub.Run(ctx)

	tasks := task.NewManager(store)
	tasks.Subscribe(hub)

	service := quality.NewService(cfg.Quality, tasks, converter.New(cfg.Converter), reports)

	// gRPC health
	grpcServer := grpc.NewServer()
	checker := health.NewChecker()
	checker.Register(grpcServer)
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		logging.Fatal().Err(err).Str("port", cfg.Server.GRPCPort).Msg("Failed to listen")
	}

	go checker.Monitor(ctx, healthInterval, health.ServiceName, checkers...)

	// HTTP
	handler := api.NewHTTPHandler(service, tasks, hub, api.Options{
		MaxUploadMB:          cfg.Server.MaxUploadMB,
		DefaultPeriodMinutes: cfg.Quality.DefaultPeriodMinutes,
		Reports:              reports,
	})
	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.HTTPPort,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrChan := make(chan error, 2)
	go func() {
		logging.Info().Str("addr", listener.Addr().String()).Msg("gRPC server listening")
		if err := grpcServer.Serve(listener); err != nil {
			serverErrChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	go func() {
		logging.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrChan:
		logging.Error().Err(err).Msg("Server error")
	case sig := <-shutdownChan:
		logging.Info().Str("signal", sig.String()).Msg("Received signal, starting graceful shutdown")
	}

	checker.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	if err := service.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("Background conversions did not finish in time")
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		logging.Warn().Msg("Graceful shutdown timeout, forcing stop")
		grpcServer.Stop()
	}

	stop()
	logging.Info().Msg("Server stopped")
}

// newTaskStore подключается к Redis. Без redis.required при недоступном Redis
// задачи хранятся в памяти процесса.
func newTaskStore(ctx context.Context, cfg config.RedisConfig) (task.Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		if cfg.Required {
			return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
		}
		logging.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis unavailable, using in-memory task store")
		return task.NewMemoryStore(cfg.TaskTTL), nil
	}

	logging.Info().Str("addr", cfg.Addr).Msg("Connected to Redis")
	return task.NewRedisStore(client, cfg.TaskTTL), nil
}
