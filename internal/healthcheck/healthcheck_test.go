package healthcheck

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/crashpost/crashpost/internal/auth"
	"github.com/crashpost/crashpost/internal/ratelimit"
)

// startServer serves c on a loopback listener and returns a connected client.
func startServer(t *testing.T, c *Checker, opts ...grpc.ServerOption) healthpb.HealthClient {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	gs := grpc.NewServer(opts...)
	c.Register(gs)
	go gs.Serve(lis) //nolint:errcheck
	t.Cleanup(gs.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := grpc.DialContext(ctx, lis.Addr().String(), //nolint:staticcheck
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestChecker_TracksLimiter(t *testing.T) {
	lim := ratelimit.New()
	c := New(lim, time.Hour)
	client := startServer(t, c)

	if got := check(t, client, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("overall: got %v, want SERVING", got)
	}
	if got := check(t, client, DeliveryService); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("delivery before limit: got %v, want SERVING", got)
	}

	lim.SetLimit(time.Minute)
	c.Update()
	if got := check(t, client, DeliveryService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("delivery while limited: got %v, want NOT_SERVING", got)
	}
	if got := check(t, client, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("overall while limited: got %v, want SERVING", got)
	}

	lim.SetLimit(0)
	c.Update()
	if got := check(t, client, DeliveryService); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("delivery after limit cleared: got %v, want SERVING", got)
	}
}

func TestChecker_RunPollsAndShutsDown(t *testing.T) {
	lim := ratelimit.New()
	c := New(lim, 10*time.Millisecond)
	client := startServer(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	lim.SetLimit(time.Minute)
	deadline := time.Now().Add(2 * time.Second)
	for check(t, client, DeliveryService) != healthpb.HealthCheckResponse_NOT_SERVING {
		if time.Now().After(deadline) {
			t.Fatal("Run never published NOT_SERVING")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done
	if got := check(t, client, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("overall after shutdown: got %v, want NOT_SERVING", got)
	}
}

func TestChecker_APIKeyGuardsCheckAndWatch(t *testing.T) {
	guard := auth.New("apikey", "x-api-key", "secret")
	client := startServer(t, New(ratelimit.New(), time.Hour),
		grpc.UnaryInterceptor(guard.UnaryInterceptor()),
		grpc.StreamInterceptor(guard.StreamInterceptor()),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req := &healthpb.HealthCheckRequest{Service: DeliveryService}

	if _, err := client.Check(ctx, req); status.Code(err) != codes.Unauthenticated {
		t.Errorf("Check without key: got %v, want Unauthenticated", err)
	}

	stream, err := client.Watch(ctx, req)
	if err == nil {
		_, err = stream.Recv()
	}
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("Watch without key: got %v, want Unauthenticated", err)
	}

	authed := metadata.AppendToOutgoingContext(ctx, "x-api-key", "secret")
	if _, err := client.Check(authed, req); err != nil {
		t.Errorf("Check with key: %v", err)
	}
	stream, err = client.Watch(authed, req)
	if err != nil {
		t.Fatalf("Watch with key: %v", err)
	}
	resp, err := stream.Recv()
	if err != nil {
		t.Fatalf("Watch Recv with key: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Watch status: got %v, want SERVING", resp.GetStatus())
	}
}
