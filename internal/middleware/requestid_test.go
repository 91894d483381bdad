// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tomtom215/vibebackup/internal/logging"
)

// captureLogs swaps the global logger for one writing to the returned buffer
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := logging.Logger()
	logging.SetLogger(logging.NewTestLogger(&buf))
	t.Cleanup(func() { logging.SetLogger(prev) })
	return &buf
}

func serve(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	if header != "" {
		req.Header.Set(RequestIDHeader, header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		upstream string
		wantKept bool
	}{
		{"no upstream ID", "", false},
		{"upstream ID kept", "proxy-abc-123", true},
		{"upstream UUID kept", "6f1c1a3e-1d4b-4a5e-9f57-2d8c6e0b7a11", true},
		{"whitespace rejected", "bad id", false},
		{"control characters rejected", "id\x00", false},
		{"too long rejected", strings.Repeat("a", maxRequestIDLen+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				captured = GetRequestID(r.Context())
			}))

			rec := serve(h, tt.upstream)
			got := rec.Header().Get(RequestIDHeader)

			if got != captured {
				t.Errorf("header %q does not match context %q", got, captured)
			}
			if tt.wantKept {
				if got != tt.upstream {
					t.Errorf("request ID = %q, want %q", got, tt.upstream)
				}
				return
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("generated request ID %q is not a UUID: %v", got, err)
			}
		})
	}
}

func TestRequestID_Unique(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := serve(h, "").Header().Get(RequestIDHeader)
		if seen[id] {
			t.Fatalf("duplicate request ID %s", id)
		}
		seen[id] = true
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() = %q, want empty", got)
	}
	ctx := context.WithValue(context.Background(), RequestIDKey, 42)
	if got := GetRequestID(ctx); got != "" {
		t.Errorf("GetRequestID() with wrong type = %q, want empty", got)
	}
}

func TestRequestID_LoggerInContext(t *testing.T) {
	buf := captureLogs(t)

	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		logging.Ctx(r.Context()).Warn().Msg("handler log")
	}))
	serve(h, "trace-7")

	if !strings.Contains(buf.String(), `"request_id":"trace-7"`) {
		t.Errorf("log output missing request_id: %s", buf.String())
	}
}

func TestAccessLog(t *testing.T) {
	buf := captureLogs(t)

	h := RequestID(AccessLog(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})))
	rec := serve(h, "trace-8")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"status":500`, `"path":"/status"`, `"request_id":"trace-8"`} {
		if !strings.Contains(out, want) {
			t.Errorf("access log missing %s: %s", want, out)
		}
	}
}
