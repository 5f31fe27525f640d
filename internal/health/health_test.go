package health

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestHandleHealthAllHealthy(t *testing.T) {
	s := NewServer(0, "test")
	s.RegisterCheck("books", func(ctx context.Context) (bool, string) {
		return true, "42 cached"
	})

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != 200 {
		t.Errorf("status = %d", rec.Code)
	}
	var status Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != "ok" || status.Version != "test" {
		t.Errorf("status = %+v", status)
	}
	if c := status.Checks["books"]; !c.Healthy || c.Message != "42 cached" {
		t.Errorf("books check = %+v", c)
	}
}

func TestHandleHealthDegraded(t *testing.T) {
	s := NewServer(0, "test")
	s.RegisterCheck("markets", func(ctx context.Context) (bool, string) {
		return false, "catalog empty"
	})

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != 503 {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	var status Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != "degraded" {
		t.Errorf("Status = %q", status.Status)
	}
}

func TestHandleReady(t *testing.T) {
	s := NewServer(0, "test")

	rec := httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest("GET", "/ready", nil))
	if rec.Code != 200 {
		t.Errorf("no checks registered, status = %d", rec.Code)
	}

	s.RegisterCheck("down", func(ctx context.Context) (bool, string) { return false, "" })
	rec = httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest("GET", "/ready", nil))
	if rec.Code != 503 {
		t.Errorf("failing check, status = %d, want 503", rec.Code)
	}
}

func TestHandleLive(t *testing.T) {
	rec := httptest.NewRecorder()
	NewServer(0, "test").handleLive(rec, httptest.NewRequest("GET", "/live", nil))
	if rec.Code != 200 || rec.Body.String() != "alive" {
		t.Errorf("live = %d %q", rec.Code, rec.Body.String())
	}
}
