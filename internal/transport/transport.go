package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "crashpost-go/0.1"

	// maxDrainSize bounds how much of a response body is read so the
	// connection can be reused.
	maxDrainSize = 2 << 10
)

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: endpoint returned HTTP %d", e.Code)
}

// StatusCode returns the HTTP status of the rejected request.
func (e *StatusError) StatusCode() int {
	return e.Code
}

// Config configures a Transport.
type Config struct {
	// URL is the full store endpoint, including query parameters.
	URL string

	// Timeout bounds one request/response exchange. Default 10s.
	Timeout time.Duration

	// UserAgent is sent on every request. Default "crashpost-go/0.1".
	UserAgent string

	// Headers are added to every request (e.g. X-Sentry-Auth).
	Headers map[string]string

	// CAFile optionally adds a PEM CA bundle for self-hosted endpoints.
	CAFile string

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
}

// Transport sends JSON payloads to one endpoint.
type Transport struct {
	url    string
	client *http.Client
}

// New builds a Transport from cfg.
func New(cfg Config) (*Transport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("transport: url is required")
	}
	client, err := buildHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("transport: build http client: %w", err)
	}
	return &Transport{url: cfg.URL, client: client}, nil
}

// Send posts payload once. It returns nil only when the endpoint responds 2xx.
func (t *Transport) Send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: http post: %w", err)
	}
	defer closeResponse(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// closeResponse drains a little of the body so the TCP connection is reused.
func closeResponse(resp *http.Response) {
	_, _ = io.CopyN(io.Discard, resp.Body, maxDrainSize)
	_ = resp.Body.Close()
}

// headerRoundTripper injects the configured headers into every request.
type headerRoundTripper struct {
	base      http.RoundTripper
	userAgent string
	headers   map[string]string
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the configured TLS settings.
func buildHTTPClient(cfg Config) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	if cfg.CAFile != "" {
		caPEM, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs found in ca file %q", cfg.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = tlsCfg
	return &http.Client{
		Transport: &headerRoundTripper{base: base, userAgent: ua, headers: cfg.Headers},
		Timeout:   timeout,
	}, nil
}
