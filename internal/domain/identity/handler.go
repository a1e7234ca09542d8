package identity

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/apperr"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/auth"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/httpx"
)

type Handler struct {
	svc          *Service
	cookieSecure bool
}

func NewHandler(svc *Service, cookieSecure bool) *Handler {
	return &Handler{svc: svc, cookieSecure: cookieSecure}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	a := g.Group("/auth")
	a.POST("/register", h.Register)
	a.POST("/login", h.Login)
	a.GET("/check-session", h.CheckSession)
	a.POST("/logout", h.Logout, auth.RequireSession())
	a.GET("/me", h.Me, auth.RequireSession())

	p := g.Group("/patient", auth.RequireRole(auth.RolePatient))
	p.GET("/profile", h.GetProfile)
	p.PUT("/profile", h.UpdateProfile)
	p.GET("/doctors", h.ListDoctors)
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	u, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return httpx.OKMessage(c, http.StatusCreated, "User registered successfully", map[string]interface{}{
		"user_id": u.ID,
		"role":    u.Role,
	})
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	c.SetCookie(h.sessionCookie(res.Token, res.ExpiresAt))
	return httpx.OKMessage(c, http.StatusOK, "Login successful", res)
}

func (h *Handler) Logout(c echo.Context) error {
	id, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return apperr.Unauthenticated("")
	}
	if err := h.svc.Logout(c.Request().Context(), id); err != nil {
		return err
	}
	c.SetCookie(h.sessionCookie("", time.Unix(0, 0)))
	return httpx.OKMessage(c, http.StatusOK, "Logged out successfully", nil)
}

func (h *Handler) Me(c echo.Context) error {
	u, err := h.svc.GetUser(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, u)
}

// CheckSession never fails; it reports whether the request carries a live
// session.
func (h *Handler) CheckSession(c echo.Context) error {
	ctx := c.Request().Context()
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return c.JSON(http.StatusOK, map[string]interface{}{"status": "success", "authenticated": false})
	}
	u, err := h.svc.GetUser(ctx, id.UserID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return c.JSON(http.StatusOK, map[string]interface{}{"status": "success", "authenticated": false})
		}
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":        "success",
		"authenticated": true,
		"data": map[string]interface{}{
			"user_id":    u.ID,
			"role":       u.Role,
			"full_name":  u.FullName,
			"expires_at": id.ExpiresAt,
		},
	})
}

func (h *Handler) GetProfile(c echo.Context) error {
	v, err := h.svc.GetProfile(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, v)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	var upd ProfileUpdate
	if err := httpx.Bind(c, &upd); err != nil {
		return err
	}
	v, err := h.svc.UpdateProfile(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()), upd)
	if err != nil {
		return err
	}
	return httpx.OKMessage(c, http.StatusOK, "Profile updated successfully", v)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	doctors, err := h.svc.ListDoctors(c.Request().Context())
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, doctors)
}

func (h *Handler) sessionCookie(value string, expires time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		cookie.MaxAge = -1
	}
	return cookie
}
