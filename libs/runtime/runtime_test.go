package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewLoggerWithOptions(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOptions("booking-service", LogOptions{Level: "warn"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "profile_id", "p-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if entry["service"] != "booking-service" || entry["profile_id"] != "p-1" {
		t.Fatalf("unexpected entry: %#v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug {
		t.Fatal("expected debug")
	}
	if ParseLevel("") != slog.LevelInfo {
		t.Fatal("expected info default")
	}
}

func TestReadyz(t *testing.T) {
	mux := NewBaseMuxWithReady(
		ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }},
		ReadyCheck{Name: "kafka", Check: func(context.Context) error { return errors.New("down") }},
	)

	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), "kafka: down") {
		t.Fatalf("expected failing check in body, got %q", rw.Body.String())
	}

	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", rw.Code)
	}
}

func TestRunChecks(t *testing.T) {
	failures := RunChecks(context.Background(), []ReadyCheck{
		{Name: "", Check: func(context.Context) error { return errors.New("boom") }},
		{Name: "skipped"},
	})
	if len(failures) != 1 || failures[0] != "dependency: boom" {
		t.Fatalf("unexpected failures: %#v", failures)
	}
}
