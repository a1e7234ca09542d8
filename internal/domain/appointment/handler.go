package appointment

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/apperr"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/auth"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/httpx"
	"github.com/varad2005/AI-IS13-HealthNova/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	patient := auth.RequireRole(auth.RolePatient)
	doctor := auth.RequireRole(auth.RoleDoctor)

	a := g.Group("/appointments", auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	a.POST("", h.Book, patient)
	a.GET("", h.List)
	a.GET("/:id", h.Get)
	a.POST("/:id/cancel", h.Cancel)
	a.POST("/:id/no-show", h.MarkNoShow, doctor)

	v := g.Group("/video", auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	v.POST("/instant-appointment", h.CreateInstant, doctor)
	v.POST("/start-meeting/:id", h.StartMeeting, doctor)
	v.POST("/end-meeting/:id", h.EndMeeting, doctor)
	v.GET("/meeting-status/:id", h.MeetingStatus)
	v.GET("/my-appointments", h.List)
}

func caller(c echo.Context) (auth.Identity, error) {
	id, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return auth.Identity{}, apperr.Unauthenticated("")
	}
	return id, nil
}

func (h *Handler) Book(c echo.Context) error {
	var req BookRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	a, err := h.svc.Book(ctx, auth.UserIDFromContext(ctx), req)
	if err != nil {
		return err
	}
	return httpx.OKMessage(c, http.StatusCreated, "Appointment created successfully", a)
}

func (h *Handler) CreateInstant(c echo.Context) error {
	var req InstantRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	a, created, err := h.svc.CreateInstant(ctx, auth.UserIDFromContext(ctx), req)
	if err != nil {
		return err
	}
	if !created {
		return httpx.OKMessage(c, http.StatusOK, "Using existing live meeting", a)
	}
	return httpx.OKMessage(c, http.StatusCreated, "Instant appointment created", a)
}

func (h *Handler) List(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	q := ListQuery{
		Status:        c.QueryParam("status"),
		MeetingStatus: c.QueryParam("meeting_status"),
		Upcoming:      strings.EqualFold(c.QueryParam("upcoming"), "true"),
	}
	page, err := h.svc.ListMine(c.Request().Context(), id, q, pagination.FromContext(c))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, page)
}

func (h *Handler) Get(c echo.Context) error {
	apptID, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	id, err := caller(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), id, apptID)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	apptID, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	id, err := caller(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Cancel(c.Request().Context(), id, apptID)
	if err != nil {
		return err
	}
	return httpx.OKMessage(c, http.StatusOK, "Appointment cancelled", a)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	apptID, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	a, err := h.svc.MarkNoShow(ctx, auth.UserIDFromContext(ctx), apptID)
	if err != nil {
		return err
	}
	return httpx.OKMessage(c, http.StatusOK, "Appointment marked as no-show", a)
}

func (h *Handler) StartMeeting(c echo.Context) error {
	apptID, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	a, err := h.svc.StartMeeting(ctx, auth.UserIDFromContext(ctx), apptID)
	if err != nil {
		return err
	}
	return httpx.OKMessage(c, http.StatusOK, "Meeting started successfully", map[string]interface{}{
		"room_id":     a.RoomID(),
		"appointment": a,
	})
}

func (h *Handler) EndMeeting(c echo.Context) error {
	apptID, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	a, err := h.svc.EndMeeting(ctx, auth.UserIDFromContext(ctx), apptID)
	if err != nil {
		return err
	}
	return httpx.OKMessage(c, http.StatusOK, "Meeting ended successfully", a)
}

func (h *Handler) MeetingStatus(c echo.Context) error {
	apptID, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	id, err := caller(c)
	if err != nil {
		return err
	}
	st, err := h.svc.MeetingStatus(c.Request().Context(), id, apptID)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, st)
}
