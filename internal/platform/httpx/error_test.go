package httpx

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteErrorEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()

	err := NewError("invalid_request", "postal code is required", 400).
		WithRequestID("req-1").
		WithTraceID("trace-1").
		WithDetails(map[string]any{"fields": []string{"shipTo.postalCode"}})

	WriteError(context.Background(), rr, err)

	if rr.Code != 400 {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var body struct {
		Error     string `json:"error"`
		Message   string `json:"message"`
		Status    int    `json:"status"`
		RequestID string `json:"request_id"`
		TraceID   string `json:"trace_id"`
		Details   struct {
			Fields []string `json:"fields"`
		} `json:"details"`
	}
	if jsonErr := json.Unmarshal(rr.Body.Bytes(), &body); jsonErr != nil {
		t.Fatalf("parse envelope: %v", jsonErr)
	}
	if body.Error != "invalid_request" || body.Status != 400 {
		t.Fatalf("unexpected envelope: %+v", body)
	}
	if body.RequestID != "req-1" || body.TraceID != "trace-1" {
		t.Fatalf("identifiers not carried: %+v", body)
	}
	if len(body.Details.Fields) != 1 || body.Details.Fields[0] != "shipTo.postalCode" {
		t.Fatalf("details not nested: %s", rr.Body.String())
	}
}

func TestWriteErrorDefaultsStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(context.Background(), rr, Error{Code: "internal"})
	if rr.Code != 500 {
		t.Fatalf("expected default 500, got %d", rr.Code)
	}
}

func TestNewErrorClampsFields(t *testing.T) {
	err := NewError("code\nwith\rnewlines", strings.Repeat("m", 600), 400)
	if strings.ContainsAny(err.Code, "\n\r") {
		t.Fatalf("newlines not collapsed: %q", err.Code)
	}
	if len(err.Message) != 512 {
		t.Fatalf("message not clamped, len %d", len(err.Message))
	}
}

func TestWithDetailsCopies(t *testing.T) {
	details := map[string]any{"fields": "a"}
	err := NewError("x", "y", 400).WithDetails(details)
	details["fields"] = "mutated"
	if err.Details["fields"] != "a" {
		t.Fatalf("details map not copied")
	}
}
