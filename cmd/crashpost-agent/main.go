package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"

	"github.com/crashpost/crashpost/internal/api"
	"github.com/crashpost/crashpost/internal/auth"
	"github.com/crashpost/crashpost/internal/config"
	"github.com/crashpost/crashpost/internal/healthcheck"
	"github.com/crashpost/crashpost/internal/metrics"
	"github.com/crashpost/crashpost/internal/queue"
	"github.com/crashpost/crashpost/internal/store"
	"github.com/crashpost/crashpost/internal/ws"
	"github.com/crashpost/crashpost/pkg/client"
)

// shutdownTimeout bounds the final flush of queued events.
const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envFile := flag.String("env-file", ".env", "optional dotenv file with secrets")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("crashpost-agent starting", "config", *configPath)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load env file", "path", *envFile, "err", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Log.SlogLevel())

	slog.Info("config loaded",
		"http_port", cfg.Agent.HTTPPort,
		"grpc_port", cfg.Agent.GRPCPort,
		"auth_mode", cfg.Agent.Auth.Mode,
		"rate_limit_cooldown", cfg.Client.RateLimitCooldown,
		"outcome_ttl", cfg.Agent.OutcomeTTL,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Only the log level is applied on reload; the rest needs a restart.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			level.Set(updated.Log.SlogLevel())
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	st := store.New(cfg.Agent.OutcomeTTL)
	go st.Run(ctx)

	collector := metrics.New()

	c, err := client.New(client.Options{
		DSN:                cfg.Client.DSN(),
		Environment:        cfg.Client.Environment,
		Release:            cfg.Client.Release,
		HTTPTimeout:        cfg.Client.HTTPTimeout,
		RateLimitCooldown:  cfg.Client.RateLimitCooldown,
		BackoffInterval:    cfg.Client.BackoffInterval,
		CAFile:             cfg.Client.CAFile,
		InsecureSkipVerify: cfg.Client.InsecureSkipVerify,
		Observer:           queue.Observers{st, collector},
	})
	if err != nil {
		slog.Error("failed to start client", "dsn_env", cfg.Client.DSNEnv, "err", err)
		os.Exit(1)
	}

	guard := auth.New(cfg.Agent.Auth.Mode, cfg.Agent.Auth.Header, cfg.Agent.Auth.Key())
	if cfg.Agent.Auth.Mode == "apikey" && !guard.Enabled() {
		slog.Warn("auth mode is apikey but the key is empty; requests are not checked",
			"key_env", cfg.Agent.Auth.KeyEnv)
	}

	// gRPC health service reflecting the rate-limit cooldown.
	health := healthcheck.New(c.Limiter(), time.Second)
	go health.Run(ctx)

	grpcSrv := grpc.NewServer(
		grpc.UnaryInterceptor(guard.UnaryInterceptor()),
		grpc.StreamInterceptor(guard.StreamInterceptor()),
	)
	health.Register(grpcSrv)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Agent.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port", "port", cfg.Agent.GRPCPort, "err", err)
		os.Exit(1)
	}
	go func() {
		slog.Info("gRPC health listening", "port", cfg.Agent.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	hub := ws.New(c, st, cfg.Agent.StreamInterval)
	go hub.Run(ctx)

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", guard.Middleware(api.New(c, st)))
	httpMux.Handle("/ws/stream", guard.Middleware(hub))
	httpMux.Handle("/metrics", collector.Handler(func() metrics.Gauges {
		s := c.Status()
		return metrics.Gauges{Depth: s.Depth, Processing: s.Processing, Limited: s.Limited}
	}))

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Agent.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Agent.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("crashpost-agent shutting down")

	// Stop accepting captures before draining what is already queued.
	httpSrv.Shutdown(context.Background()) //nolint:errcheck

	flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := c.Flush(flushCtx); err != nil {
		slog.Warn("flush incomplete, abandoning queued events",
			"depth", c.Status().Depth, "err", err)
	}
	flushCancel()
	c.Close()

	grpcSrv.GracefulStop()
}
