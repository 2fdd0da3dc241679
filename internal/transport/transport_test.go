package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crashpost/crashpost/internal/queue"
)

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestSend_Success(t *testing.T) {
	var gotBody, gotCT, gotUA, gotAuth string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s, want POST", r.Method)
		}
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotCT = r.Header.Get("Content-Type")
		gotUA = r.Header.Get("User-Agent")
		gotAuth = r.Header.Get("X-Sentry-Auth")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"id":"abc"}`) //nolint:errcheck
	})

	tr, err := New(Config{
		URL:     srv.URL + "/api/1/store/?sentry_key=k&sentry_version=7",
		Headers: map[string]string{"X-Sentry-Auth": "Sentry sentry_key=k"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := tr.Send(context.Background(), []byte(`{"event_id":"1"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotBody != `{"event_id":"1"}` {
		t.Errorf("body: got %q", gotBody)
	}
	if gotCT != "application/json" {
		t.Errorf("Content-Type: got %q", gotCT)
	}
	if gotUA != defaultUserAgent {
		t.Errorf("User-Agent: got %q, want %q", gotUA, defaultUserAgent)
	}
	if gotAuth != "Sentry sentry_key=k" {
		t.Errorf("X-Sentry-Auth: got %q", gotAuth)
	}
}

func TestSend_TooManyRequestsIsThrottled(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	tr, _ := New(Config{URL: srv.URL})

	err := tr.Send(context.Background(), []byte(`{}`))
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Send: got %v, want *StatusError", err)
	}
	if se.StatusCode() != http.StatusTooManyRequests {
		t.Errorf("StatusCode: got %d, want 429", se.StatusCode())
	}
	if got := queue.Classify(err); got != queue.Throttled {
		t.Errorf("Classify: got %v, want throttled", got)
	}
}

func TestSend_ServerErrorIsPermanent(t *testing.T) {
	for _, code := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError} {
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		})
		tr, _ := New(Config{URL: srv.URL})

		err := tr.Send(context.Background(), []byte(`{}`))
		if err == nil {
			t.Fatalf("HTTP %d: expected error", code)
		}
		if got := queue.Classify(err); got != queue.Failed {
			t.Errorf("HTTP %d: Classify got %v, want failed", code, got)
		}
	}
}

func TestSend_NetworkErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr, _ := New(Config{URL: url, Timeout: time.Second})
	err := tr.Send(context.Background(), []byte(`{}`))
	if err == nil {
		t.Fatal("expected error from closed server")
	}
	var se *StatusError
	if errors.As(err, &se) {
		t.Errorf("network error must not carry a status, got %d", se.Code)
	}
	if got := queue.Classify(err); got != queue.Failed {
		t.Errorf("Classify: got %v, want failed", got)
	}
}

func TestSend_OneRequestPerCall(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	tr, _ := New(Config{URL: srv.URL})

	_ = tr.Send(context.Background(), []byte(`{}`))
	if got := hits.Load(); got != 1 {
		t.Errorf("requests: got %d, want 1", got)
	}
}

func TestSend_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	})
	defer close(block)
	tr, _ := New(Config{URL: srv.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tr.Send(ctx, []byte(`{}`)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Send: got %v, want deadline exceeded", err)
	}
}

func TestNew_RequiresURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestNew_BadCAFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, []byte("not a cert"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(Config{URL: "https://example.com", CAFile: path}); err == nil {
		t.Fatal("expected error for CA file without certificates")
	}
	if _, err := New(Config{URL: "https://example.com", CAFile: path + ".missing"}); err == nil {
		t.Fatal("expected error for missing CA file")
	}
}
