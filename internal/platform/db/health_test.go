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

func runHealth(t *testing.T, h echo.HandlerFunc) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec, body
}

func TestHealthHandler_Healthy(t *testing.T) {
	rec, body := runHealth(t, HealthHandler(HealthInfo{
		Driver:             "postgres",
		Storage:            fakePinger{},
		HealthieConfigured: true,
		HealthieURL:        "https://staging-api.gethealthie.com/graphql",
	}))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
	storage := body["storage"].(map[string]interface{})
	if storage["connected"] != true || storage["driver"] != "postgres" {
		t.Errorf("unexpected storage block: %v", storage)
	}
}

func TestHealthHandler_HealthieNotConfigured(t *testing.T) {
	rec, body := runHealth(t, HealthHandler(HealthInfo{Driver: "sqlite", Storage: fakePinger{}}))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "degraded" {
		t.Errorf("expected degraded, got %v", body["status"])
	}
	healthie := body["healthie"].(map[string]interface{})
	if healthie["configured"] != false {
		t.Errorf("expected configured=false, got %v", healthie["configured"])
	}
}

func TestHealthHandler_StorageDown(t *testing.T) {
	rec, body := runHealth(t, HealthHandler(HealthInfo{
		Driver:             "postgres",
		Storage:            fakePinger{err: errors.New("connection refused")},
		HealthieConfigured: true,
	}))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	storage := body["storage"].(map[string]interface{})
	if storage["connected"] != false || storage["error"] != "connection refused" {
		t.Errorf("unexpected storage block: %v", storage)
	}
}

func TestPoolHealthHandler(t *testing.T) {
	stats := func() *PoolStats { return &PoolStats{TotalConns: 2, MaxConns: 10, Healthy: true} }

	rec, body := runHealth(t, PoolHealthHandler(fakePinger{}, stats))
	if rec.Code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("expected healthy 200, got %d %v", rec.Code, body)
	}
	pool := body["pool"].(map[string]interface{})
	if pool["max_conns"] != float64(10) {
		t.Errorf("unexpected pool block: %v", pool)
	}

	rec, body = runHealth(t, PoolHealthHandler(fakePinger{err: errors.New("down")}, stats))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	pool = body["pool"].(map[string]interface{})
	if pool["healthy"] != false {
		t.Error("expected pool to be reported unhealthy")
	}
}

func TestPoolStats_JSONTags(t *testing.T) {
	b, err := json.Marshal(PoolStats{TotalConns: 1, AcquireDuration: "250ms", Healthy: true})
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]interface{}
	_ = json.Unmarshal(b, &out)
	for _, key := range []string{"total_conns", "idle_conns", "acquired_conns", "max_conns", "acquire_count", "acquire_duration", "healthy"} {
		if _, ok := out[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
}
