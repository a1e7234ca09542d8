package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/apperr"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/auth"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	h := RequestID()(func(c echo.Context) error {
		if rid, _ := c.Get("request_id").(string); rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	})

	rec, err := doRequest(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")

	rec, _ := doRequest(t, RequestID()(okHandler), req)
	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_ReplacesOversized(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 500))

	rec, _ := doRequest(t, RequestID()(okHandler), req)
	if len(rec.Header().Get(RequestIDHeader)) > 128 {
		t.Error("expected oversized request id to be replaced")
	}
}

func TestLogger_LogsRequestWithIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/doctor/visits", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: userID, Role: auth.RoleDoctor}))

	if _, err := doRequest(t, Logger(logger)(okHandler), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["user_id"] != userID.String() || line["role"] != auth.RoleDoctor {
		t.Errorf("expected identity in log line, got %v", line)
	}
	if line["path"] != "/doctor/visits" {
		t.Errorf("expected path in log line, got %v", line["path"])
	}
}

func TestLogger_WritesErrorResponse(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := Logger(zerolog.Nop())(func(c echo.Context) error {
		return apperr.Forbidden("Not the assigned doctor")
	})
	if err := h(c); err != nil {
		t.Fatalf("expected logger to consume the error, got %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 to be written, got %d", rec.Code)
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	h := Recovery(zerolog.Nop())(func(c echo.Context) error {
		panic("test panic")
	})

	_, err := doRequest(t, h, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if apperr.KindOf(err) != apperr.KindInternal || err == nil {
		t.Fatalf("expected internal error from recovered panic, got %v", err)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	if _, err := doRequest(t, Recovery(zerolog.Nop())(okHandler), httptest.NewRequest(http.MethodGet, "/ok", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMetrics_PassesThrough(t *testing.T) {
	h := Metrics()(func(c echo.Context) error {
		return apperr.NotFound("visit")
	})
	_, err := doRequest(t, h, httptest.NewRequest(http.MethodGet, "/x", nil))
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("expected error to propagate, got %v", err)
	}
}

func TestMetricsHandler_ExposesCounters(t *testing.T) {
	e := echo.New()
	e.Use(Metrics())
	e.GET("/ping", okHandler)
	e.GET("/metrics", MetricsHandler())

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "healthnova_http_requests_total") {
		t.Error("expected request counter in metrics output")
	}
}
