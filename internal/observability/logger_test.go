package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	h := middleware.RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("status field = %v", fields["status"])
	}
	if fields["path"] != "/health" || fields["bytes"] != int64(len("short and stout")) {
		t.Errorf("unexpected fields: %v", fields)
	}
	if _, ok := fields["request_id"]; !ok {
		t.Error("request id missing")
	}
	if entries[0].Level != zap.WarnLevel {
		t.Errorf("4xx should log at warn, got %v", entries[0].Level)
	}
}

func TestNewLoggerReplacesGlobal(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	logger, err := NewLogger("production")
	if err != nil {
		t.Fatal(err)
	}
	if zap.L() != logger {
		t.Fatal("global logger not replaced")
	}
}
