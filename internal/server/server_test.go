package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"gridsight-go/internal/config"
)

func TestHandleConfig(t *testing.T) {
	srv := &Server{
		cfg: config.AppConfig{
			GridSize: 13,
			CanvasW:  600,
			CanvasH:  600,
			MinScore: 0.4,
			Port:     9999,
		},
	}

	req := httptest.NewRequest("GET", "/config", nil)
	rec := httptest.NewRecorder()
	srv.handleConfig(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if payload["grid_size"].(float64) != 13 {
		t.Fatalf("unexpected grid_size: %v", payload["grid_size"])
	}
	if payload["min_score"].(float64) != 0.4 {
		t.Fatalf("unexpected min_score: %v", payload["min_score"])
	}
	if payload["port"].(float64) != 9999 {
		t.Fatalf("unexpected port: %v", payload["port"])
	}
}

func TestHandleStatusAddsClientCount(t *testing.T) {
	srv := &Server{
		statusFn: func() map[string]any {
			return map[string]any{
				"source":  "simulator",
				"metrics": map[string]any{"frames_processed_total": uint64(7)},
			}
		},
	}

	req := httptest.NewRequest("GET", "/status", nil)
	rec := httptest.NewRecorder()
	srv.handleStatus(rec, req)

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	metrics, ok := payload["metrics"].(map[string]any)
	if !ok {
		t.Fatalf("status lost the metrics map: %v", payload)
	}
	if metrics["ws_clients"].(float64) != 0 {
		t.Fatalf("unexpected ws_clients: %v", metrics["ws_clients"])
	}
}

func TestHandleHealth(t *testing.T) {
	srv := &Server{}
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 200 || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}
