package assistant

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/auth"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/httpx"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	patient := auth.RequireRole(auth.RolePatient)
	g.POST("/patient/ai-guidance", h.Ask, patient)
	g.POST("/patient/ai-chat", h.PatientChat, patient)
	g.POST("/chat/doctor", h.DoctorChat, auth.RequireRole(auth.RoleDoctor))
}

func (h *Handler) Ask(c echo.Context) error {
	var req GuidanceRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	resp, err := h.svc.Ask(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, resp)
}

func (h *Handler) PatientChat(c echo.Context) error {
	var req ChatRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	resp, err := h.svc.PatientChat(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, resp)
}

func (h *Handler) DoctorChat(c echo.Context) error {
	var req DoctorChatRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	resp, err := h.svc.DoctorChat(ctx, auth.UserIDFromContext(ctx), req)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, resp)
}
