package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/apperr"
)

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleLab     = "lab"
	RoleAdmin   = "admin"
)

func validRole(role string) bool {
	switch role {
	case RolePatient, RoleDoctor, RoleLab, RoleAdmin:
		return true
	}
	return false
}

// SelfRegisterable reports whether a user may sign up with role.
func SelfRegisterable(role string) bool {
	return role == RolePatient || role == RoleDoctor || role == RoleLab
}

// Decision is the outcome of an authorization check.
type Decision int

const (
	Allowed Decision = iota
	Unauthenticated
	Forbidden
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "forbidden"
	}
}

// Authorize checks the request identity against the required roles. With no
// roles any authenticated caller is allowed.
func Authorize(ctx context.Context, roles ...string) Decision {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return Unauthenticated
	}
	if len(roles) == 0 {
		return Allowed
	}
	for _, r := range roles {
		if id.Role == r {
			return Allowed
		}
	}
	return Forbidden
}

// Err converts a denial into the matching application error.
func (d Decision) Err(roles ...string) error {
	switch d {
	case Allowed:
		return nil
	case Unauthenticated:
		return apperr.Unauthenticated("")
	default:
		return apperr.Forbidden(fmt.Sprintf("Access denied: requires %s role", strings.Join(roles, " or ")))
	}
}

// RequireRole returns middleware that rejects callers without a session (401)
// or without one of the roles (403).
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := Authorize(c.Request().Context(), roles...).Err(roles...); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// RequireSession admits any authenticated caller.
func RequireSession() echo.MiddlewareFunc {
	return RequireRole()
}
