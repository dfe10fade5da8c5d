package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/storeops/rates-api/internal/platform/requestctx"
)

// Error is the canonical JSON error envelope returned by the API. Handlers
// construct one with NewError and decorate it with the With* helpers before
// handing it to WriteError.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Details   map[string]any
}

type errorEnvelope struct {
	Error     string         `json:"error"`
	Message   string         `json:"message,omitempty"`
	Status    int            `json:"status"`
	RequestID string         `json:"request_id,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// NewError constructs an Error with a machine-readable code and human message.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clampField(code, 80),
		Message: clampField(message, 512),
		Status:  status,
	}
}

// WithRequestID overrides the request identifier attached to the envelope.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = clampField(id, 80)
	return e
}

// WithTraceID overrides the trace identifier attached to the envelope.
func (e Error) WithTraceID(id string) Error {
	e.TraceID = clampField(id, 64)
	return e
}

// WithDetails attaches structured metadata, serialised under "details".
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	copied := make(map[string]any, len(details))
	for k, v := range details {
		copied[k] = v
	}
	e.Details = copied
	return e
}

// WriteError renders the envelope as JSON. Request and trace identifiers are
// pulled from the context when the caller did not set them explicitly.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	envelope := errorEnvelope{
		Error:     err.Code,
		Message:   err.Message,
		Status:    status,
		RequestID: err.RequestID,
		TraceID:   err.TraceID,
		Details:   err.Details,
	}
	if envelope.RequestID == "" {
		envelope.RequestID = clampField(middleware.GetReqID(ctx), 80)
	}
	if envelope.TraceID == "" {
		envelope.TraceID = clampField(requestctx.TraceID(ctx), 64)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope)
}

// clampField collapses newlines and bounds field length so envelope values
// stay single-line and cannot blow up log pipelines downstream.
func clampField(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	value = strings.NewReplacer("\n", " ", "\r", " ").Replace(value)
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
