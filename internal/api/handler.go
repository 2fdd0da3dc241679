package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/crashpost/crashpost/internal/event"
	"github.com/crashpost/crashpost/internal/store"
	"github.com/crashpost/crashpost/pkg/client"
)

const (
	maxBodySize  = 1 << 20
	defaultLimit = 50
	maxLimit     = 1000
)

// Reporter is the part of client.Client the API needs.
type Reporter interface {
	Capture(err error, opts ...event.Option) string
	Status() client.Status
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	reporter Reporter
	store    *store.Store
	mux      *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(r Reporter, st *store.Store) http.Handler {
	h := &Handler{reporter: r, store: st, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/capture", h.capture)
	h.mux.HandleFunc("/api/v1/events", h.listEvents)
	h.mux.HandleFunc("/api/v1/events/", h.getEvent) // subtree — extracts {id}
	h.mux.HandleFunc("/api/v1/queue", h.queueStatus)
	h.mux.HandleFunc("/api/v1/health", h.health)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// capture handles POST /api/v1/capture. The event is queued, not delivered,
// when the response is written.
func (h *Handler) capture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req CaptureRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		jsonErr(w, http.StatusBadRequest, "message is required")
		return
	}

	opts := []event.Option{
		event.WithoutStacktrace(),
		event.WithExceptionType(req.Type),
		event.WithTags(req.Tags),
		event.WithExtra(req.Extra),
	}
	if req.Level != "" {
		lvl, ok := parseLevel(req.Level)
		if !ok {
			jsonErr(w, http.StatusBadRequest, "unknown level "+strconv.Quote(req.Level))
			return
		}
		opts = append(opts, event.WithLevel(lvl))
	}
	if req.Environment != "" {
		opts = append(opts, event.WithEnvironment(req.Environment))
	}
	if req.URL != "" {
		opts = append(opts, event.WithRequestURL(req.URL))
	}

	id := h.reporter.Capture(errors.New(req.Message), opts...)
	if id == "" {
		jsonErr(w, http.StatusInternalServerError, "event could not be queued")
		return
	}
	slog.Debug("api: event captured", "event_id", id, "remote", r.RemoteAddr)
	jsonResp(w, http.StatusAccepted, CaptureResponse{EventID: id})
}

// listEvents returns GET /api/v1/events — newest records first.
func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLimit)
	}
	jsonResp(w, http.StatusOK, h.store.Recent(limit))
}

// getEvent returns GET /api/v1/events/{id}.
func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/events/")
	if id == "" {
		h.listEvents(w, r)
		return
	}

	rec, ok := h.store.Get(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "event not found")
		return
	}
	jsonResp(w, http.StatusOK, rec)
}

// queueStatus returns GET /api/v1/queue.
func (h *Handler) queueStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.reporter.Status())
}

// health returns GET /api/v1/health. A rate-limited agent still answers 200;
// the status field says why delivery is paused.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st := h.reporter.Status()
	resp := HealthResponse{Status: "ok", Queue: st}
	if st.Limited {
		resp.Status = "limited"
	}
	jsonResp(w, http.StatusOK, resp)
}

// --- helpers ----------------------------------------------------------------

// BuildStatus assembles the combined queue and outcome view.
func BuildStatus(r Reporter, st *store.Store, recent int) StatusResponse {
	counts := st.Counts()
	outcomes := make(map[string]int, len(counts))
	for state, n := range counts {
		outcomes[state.String()] = n
	}
	return StatusResponse{
		Queue:       r.Status(),
		Outcomes:    outcomes,
		Recent:      st.Recent(recent),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func parseLevel(s string) (event.Level, bool) {
	switch lvl := event.Level(strings.ToLower(s)); lvl {
	case event.LevelDebug, event.LevelInfo, event.LevelWarning, event.LevelError, event.LevelFatal:
		return lvl, true
	}
	if strings.EqualFold(s, "warn") {
		return event.LevelWarning, true
	}
	return "", false
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
