package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		store      fakePinger
		wantCode   int
		wantStatus string
	}{
		{"reachable", fakePinger{}, http.StatusOK, "healthy"},
		{"down", fakePinger{err: errors.New("database is locked")}, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)

			if err := HealthHandler("sqlite", tt.store)(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			var body map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["status"] != tt.wantStatus || body["backend"] != "sqlite" {
				t.Errorf("unexpected body %v", body)
			}
			if _, hasPool := body["pool"]; hasPool {
				t.Error("expected no pool stats for a non-pgx store")
			}
			if tt.store.err != nil && body["error"] != tt.store.err.Error() {
				t.Errorf("expected error %q, got %v", tt.store.err, body["error"])
			}
		})
	}
}

func TestPoolStats_JSONTags(t *testing.T) {
	data, err := json.Marshal(&PoolStats{TotalConns: 3, MaxConns: 10, AcquireDuration: "1ms"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	json.Unmarshal(data, &m)
	for _, key := range []string{"total_conns", "idle_conns", "acquired_conns", "max_conns", "acquire_count", "acquire_duration"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing json key %q in %s", key, data)
		}
	}
}
