package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/varad2005/AI-IS13-HealthNova/internal/config"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/auth"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/blobstore"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/db"
)

func newTestServer(t *testing.T) *server {
	t.Helper()
	store := auth.NewMemoryRevocationStore()
	t.Cleanup(store.Close)
	cfg := &config.Config{
		Env:           "development",
		SessionSecret: "test-secret-test-secret-test-secret",
		SessionTTL:    time.Hour,
		CORSOrigins:   []string{"http://localhost:3000"},
	}
	// No handler below touches the database.
	return newServer(cfg, nil, store, blobstore.NewMemoryStore(), zerolog.Nop())
}

func TestNewServer_RegistersRoutes(t *testing.T) {
	srv := newTestServer(t)
	routes := make(map[string]bool)
	for _, r := range srv.echo.Routes() {
		routes[r.Method+" "+r.Path] = true
	}

	for _, want := range []string{
		"POST /auth/login",
		"POST /patient/visits",
		"POST /doctor/visits/:id/diagnose",
		"POST /doctor/patients/:id/history/add",
		"GET /lab/tests",
		"POST /lab/tests/:id/approve",
		"POST /patient/ai-guidance",
		"POST /patient/ai-chat",
		"POST /chat/doctor",
		"POST /appointments",
		"POST /video/start-meeting/:id",
		"POST /video/end-meeting/:id",
		"GET /video/meeting-status/:id",
		"POST /payment/create-order",
		"POST /payment/verify",
		"POST /payment/webhook",
		"GET /ws/signaling",
		"GET /ws/notifications",
		"GET /health",
		"GET /metrics",
	} {
		if !routes[want] {
			t.Errorf("route %q not registered", want)
		}
	}
}

func TestNewServer_Middleware(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id missing")
	}

	rec = httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/patient/history", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous history: expected 401, got %d", rec.Code)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := db.NewMigrator(nil, migrationSource("")).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 5 {
		t.Fatalf("expected 5 migrations, got %d", len(migrations))
	}
	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("migration %s has version %d, want %d", m.Name, m.Version, i+1)
		}
	}
}
