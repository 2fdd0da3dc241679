// Package healthcheck serves the standard gRPC health protocol for the agent.
// The overall service ("") is SERVING while the process runs; the delivery
// service reports NOT_SERVING while a rate-limit cooldown pauses delivery.
package healthcheck

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DeliveryService is the service name whose status tracks the rate limiter.
const DeliveryService = "crashpost.Delivery"

// LimitSource reports whether delivery is currently paused.
type LimitSource interface {
	IsLimited() bool
}

// Checker keeps the gRPC health status in line with the limiter.
type Checker struct {
	srv      *health.Server
	src      LimitSource
	interval time.Duration
	last     healthpb.HealthCheckResponse_ServingStatus
}

// New creates a Checker polling src every interval.
func New(src LimitSource, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = time.Second
	}
	c := &Checker{srv: health.NewServer(), src: src, interval: interval}
	c.srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	c.Update()
	return c
}

// Register attaches the health service to s.
func (c *Checker) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, c.srv)
}

// Update re-reads the limiter and publishes the delivery status.
// It is called from Run and must not be called concurrently.
func (c *Checker) Update() healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if c.src.IsLimited() {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	if st != c.last {
		slog.Debug("healthcheck: delivery status changed", "status", st.String())
		c.last = st
	}
	c.srv.SetServingStatus(DeliveryService, st)
	return st
}

// Run refreshes the status every interval until ctx is cancelled, then marks
// every service NOT_SERVING.
func (c *Checker) Run(ctx context.Context) {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			c.srv.Shutdown()
			return
		case <-t.C:
			c.Update()
		}
	}
}
