package api

import (
	"github.com/crashpost/crashpost/internal/store"
	"github.com/crashpost/crashpost/pkg/client"
)

// CaptureRequest is the body of POST /api/v1/capture.
type CaptureRequest struct {
	Message     string                 `json:"message"`
	Type        string                 `json:"type,omitempty"`
	Level       string                 `json:"level,omitempty"`
	Environment string                 `json:"environment,omitempty"`
	URL         string                 `json:"url,omitempty"`
	Tags        map[string]string      `json:"tags,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// CaptureResponse is the payload for an accepted capture.
type CaptureResponse struct {
	EventID string `json:"event_id"`
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status string        `json:"status"` // ok | limited
	Queue  client.Status `json:"queue"`
}

// StatusResponse is the combined view pushed to stream subscribers.
type StatusResponse struct {
	Queue       client.Status  `json:"queue"`
	Outcomes    map[string]int `json:"outcomes"`
	Recent      []store.Record `json:"recent"`
	GeneratedAt string         `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
