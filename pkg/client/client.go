package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/crashpost/crashpost/internal/dsn"
	"github.com/crashpost/crashpost/internal/event"
	"github.com/crashpost/crashpost/internal/queue"
	"github.com/crashpost/crashpost/internal/ratelimit"
	"github.com/crashpost/crashpost/internal/transport"
)

// SDKName identifies this client on the wire.
const SDKName = "crashpost-go/0.1"

// captureDepth is the number of frames between a public capture method and
// Builder.Build.
const captureDepth = 2

// Options configures a Client.
type Options struct {
	// DSN is required: http(s)://<key>@<host>/<project>.
	DSN string

	Environment string
	Release     string

	// ServerName defaults to the host name.
	ServerName string

	// HTTPTimeout bounds one delivery attempt. Default 10s.
	HTTPTimeout time.Duration

	// RateLimitCooldown is how long delivery pauses after a 429. Default 5s.
	RateLimitCooldown time.Duration

	// BackoffInterval is how often a paused queue re-checks. Default 1s.
	BackoffInterval time.Duration

	CAFile             string
	InsecureSkipVerify bool

	// Observer, if set, is told about every delivery state change.
	Observer queue.Observer
}

// Status is a point-in-time view of delivery.
type Status struct {
	Depth        int        `json:"depth"`
	Processing   bool       `json:"processing"`
	Limited      bool       `json:"limited"`
	LimitedUntil *time.Time `json:"limited_until,omitempty"`
}

// Client captures errors and delivers them in the background.
type Client struct {
	dsn       *dsn.DSN
	builder   *event.Builder
	transport *transport.Transport
	limiter   *ratelimit.Limiter
	queue     *queue.Queue
}

// New parses the DSN and starts a Client.
func New(opts Options) (*Client, error) {
	if opts.DSN == "" {
		return nil, errors.New("client: dsn is required")
	}
	d, err := dsn.Parse(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	tr, err := transport.New(transport.Config{
		URL:                d.StoreURL(),
		Timeout:            opts.HTTPTimeout,
		UserAgent:          SDKName,
		Headers:            map[string]string{"X-Sentry-Auth": d.AuthHeader(SDKName)},
		CAFile:             opts.CAFile,
		InsecureSkipVerify: opts.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	b := event.NewBuilder()
	b.Environment = opts.Environment
	b.Release = opts.Release
	b.ServerName = opts.ServerName
	if b.ServerName == "" {
		b.ServerName, _ = os.Hostname()
	}
	b.CallerSkip = captureDepth

	lim := ratelimit.New()
	c := &Client{
		dsn:       d,
		builder:   b,
		transport: tr,
		limiter:   lim,
		queue: queue.New(lim, queue.Config{
			Cooldown:     opts.RateLimitCooldown,
			PollInterval: opts.BackoffInterval,
			Observer:     opts.Observer,
		}),
	}
	slog.Info("client: started", "dsn", d.String(), "endpoint", d.StoreURL())
	return c, nil
}

// Capture reports err and returns the event id, or "" if err is nil or the
// event could not be serialized.
func (c *Client) Capture(err error, opts ...event.Option) string {
	return c.capture(err, opts)
}

// CaptureMessage reports msg as an error event.
func (c *Client) CaptureMessage(msg string, opts ...event.Option) string {
	return c.capture(errors.New(msg), opts)
}

func (c *Client) capture(err error, opts []event.Option) string {
	if err == nil {
		slog.Warn("client: capture called with nil error")
		return ""
	}
	ev := c.builder.Build(err, opts...)
	payload, merr := json.Marshal(ev)
	if merr != nil {
		slog.Error("client: encode event", "event_id", ev.EventID, "error", merr)
		return ""
	}

	c.queue.Add(queue.NewJob(ev.EventID, func(ctx context.Context) error {
		return c.transport.Send(ctx, payload)
	}))
	return ev.EventID
}

// Flush blocks until every captured event has reached a final outcome or ctx
// is done. After Close has abandoned events it returns queue.ErrClosed.
func (c *Client) Flush(ctx context.Context) error {
	return c.queue.Flush(ctx)
}

// Close stops delivery. Events still queued, and one in flight, are
// abandoned and reported failed; call Flush first to wait for them.
func (c *Client) Close() {
	c.queue.Close()
}

// Limiter exposes the rate-limit state, e.g. for health reporting.
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// Status reports queue depth and rate-limit state.
func (c *Client) Status() Status {
	st := c.queue.Stats()
	s := Status{Depth: st.Depth, Processing: st.Processing}
	if until, ok := c.limiter.Until(); ok {
		u := until.UTC()
		s.Limited = true
		s.LimitedUntil = &u
	}
	return s
}
