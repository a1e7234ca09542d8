package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestKind_HTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{Unauthenticated(""), http.StatusUnauthorized},
		{Forbidden(""), http.StatusForbidden},
		{NotFound("visit"), http.StatusNotFound},
		{InvalidState("lab test", "approve", "approved"), http.StatusBadRequest},
		{Validation("symptoms are required"), http.StatusBadRequest},
		{Conflict("phone number already registered"), http.StatusConflict},
		{Internal(errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.err.Kind.HTTPStatus(); got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.err.Kind, tt.want, got)
		}
	}
}

func TestInvalidState_NamesCurrentState(t *testing.T) {
	err := InvalidState("visit", "update", "completed")
	if !strings.Contains(err.Message, "completed") {
		t.Errorf("expected message to mention current state, got %q", err.Message)
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("diagnose: %w", NotFound("visit"))
	if KindOf(err) != KindNotFound {
		t.Errorf("expected not_found, got %s", KindOf(err))
	}
	if !Is(err, KindNotFound) {
		t.Error("expected Is to match wrapped kind")
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("expected plain errors to be internal")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil) != nil {
		t.Error("nil should stay nil")
	}
	nf := NotFound("visit")
	if err := Wrap(fmt.Errorf("load: %w", nf)); KindOf(err) != KindNotFound {
		t.Errorf("expected classified error to pass through, got %v", err)
	}
	err := Wrap(errors.New("connection reset"))
	if !Is(err, KindInternal) {
		t.Errorf("expected internal, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Error("internal error should keep its cause")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert user: %w", &pgconn.PgError{Code: "23505"})
	if !IsUniqueViolation(err) {
		t.Error("expected unique violation to be detected")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation is not a unique violation")
	}
}

func serveError(t *testing.T, err error) (int, Response) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	HTTPErrorHandler(zerolog.Nop())(err, c)

	var body Response
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec.Code, body
}

func TestHTTPErrorHandler_AppError(t *testing.T) {
	code, body := serveError(t, Forbidden("Not the assigned lab"))
	if code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}
	if body.Status != "error" || body.Message != "Not the assigned lab" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestHTTPErrorHandler_InternalHidesCause(t *testing.T) {
	code, body := serveError(t, Internal(errors.New("connection refused on 10.0.0.3")))
	if code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", code)
	}
	if strings.Contains(body.Message, "10.0.0.3") {
		t.Errorf("internal cause leaked: %q", body.Message)
	}
}

func TestHTTPErrorHandler_EchoHTTPError(t *testing.T) {
	code, body := serveError(t, echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded"))
	if code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", code)
	}
	if body.Message != "rate limit exceeded" {
		t.Errorf("unexpected message %q", body.Message)
	}
}

func TestHTTPErrorHandler_UnknownError(t *testing.T) {
	code, body := serveError(t, errors.New("something odd"))
	if code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", code)
	}
	if body.Message != "internal server error" {
		t.Errorf("unexpected message %q", body.Message)
	}
}
