package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/apperr"
)

func TestAuthorize(t *testing.T) {
	doctor := WithIdentity(context.Background(), Identity{UserID: uuid.New(), Role: RoleDoctor})

	tests := []struct {
		name  string
		ctx   context.Context
		roles []string
		want  Decision
	}{
		{"no session", context.Background(), []string{RoleDoctor}, Unauthenticated},
		{"nil user id", WithIdentity(context.Background(), Identity{Role: RoleDoctor}), []string{RoleDoctor}, Unauthenticated},
		{"matching role", doctor, []string{RoleDoctor}, Allowed},
		{"one of several", doctor, []string{RolePatient, RoleDoctor}, Allowed},
		{"wrong role", doctor, []string{RoleLab}, Forbidden},
		{"any session", doctor, nil, Allowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Authorize(tt.ctx, tt.roles...); got != tt.want {
				t.Errorf("Authorize() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAuthorize_AdminIsNotASuperuser(t *testing.T) {
	admin := WithIdentity(context.Background(), Identity{UserID: uuid.New(), Role: RoleAdmin})
	if got := Authorize(admin, RoleDoctor); got != Forbidden {
		t.Errorf("expected admin to be forbidden on doctor routes, got %s", got)
	}
}

func runRequireRole(t *testing.T, ctx context.Context, roles ...string) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return RequireRole(roles...)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
}

func TestRequireRole_Kinds(t *testing.T) {
	if err := runRequireRole(t, context.Background(), RoleLab); apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Errorf("expected unauthenticated, got %v", err)
	}

	patient := WithIdentity(context.Background(), Identity{UserID: uuid.New(), Role: RolePatient})
	if err := runRequireRole(t, patient, RoleLab); apperr.KindOf(err) != apperr.KindForbidden {
		t.Errorf("expected forbidden, got %v", err)
	}
	if err := runRequireRole(t, patient, RolePatient); err != nil {
		t.Errorf("expected allowed, got %v", err)
	}
}

func TestSelfRegisterable(t *testing.T) {
	for _, r := range []string{RolePatient, RoleDoctor, RoleLab} {
		if !SelfRegisterable(r) {
			t.Errorf("expected %s to be self-registerable", r)
		}
	}
	if SelfRegisterable(RoleAdmin) {
		t.Error("admin must not be self-registerable")
	}
}
