package payment

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/apperr"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/auth"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/httpx"
)

const (
	signatureHeader = "X-Razorpay-Signature"
	maxWebhookBody  = 1 << 20
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	pay := g.Group("/payment")
	pay.POST("/create-order", h.CreateOrder, auth.RequireRole(auth.RolePatient))
	pay.POST("/verify", h.Verify, auth.RequireRole(auth.RolePatient))
	pay.GET("/order/:order_id", h.Get, auth.RequireRole(auth.RolePatient))
	pay.GET("/config", h.Config, auth.RequireSession())
	// Signed by the gateway, not by a session.
	pay.POST("/webhook", h.Webhook)
}

func (h *Handler) CreateOrder(c echo.Context) error {
	var req CreateOrderRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	id, _ := auth.IdentityFromContext(ctx)
	out, err := h.svc.CreateOrder(ctx, id, req)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, out)
}

func (h *Handler) Verify(c echo.Context) error {
	var req VerifyRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.svc.Verify(ctx, auth.UserIDFromContext(ctx), req)
	if err != nil {
		return err
	}
	return httpx.OKMessage(c, http.StatusOK, "Payment verified", p)
}

func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := h.svc.Get(ctx, auth.UserIDFromContext(ctx), c.Param("order_id"))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, p)
}

func (h *Handler) Config(c echo.Context) error {
	return httpx.OK(c, http.StatusOK, h.svc.Config())
}

func (h *Handler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return apperr.Validation("unreadable webhook body")
	}
	res, err := h.svc.HandleWebhook(c.Request().Context(), body, c.Request().Header.Get(signatureHeader))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, res)
}
