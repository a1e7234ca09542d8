package labtest

import (
	"fmt"
	"net/http"

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
	lab := g.Group("/lab", auth.RequireRole(auth.RoleLab))
	lab.GET("/dashboard", h.Dashboard)
	lab.GET("/tests", h.List)
	lab.GET("/tests/:id", h.Get)
	lab.POST("/tests/:id/approve", h.Approve)
	lab.POST("/tests/:id/reject", h.Reject)
	lab.POST("/tests/:id/schedule", h.Schedule)
	lab.PUT("/tests/:id/update", h.Update)
	lab.POST("/tests/:id/update", h.Update)
	lab.POST("/tests/:id/complete", h.Complete)
	lab.GET("/tests/:id/reports", h.ListReports)
	lab.POST("/tests/:id/reports", h.UploadReport)
	lab.GET("/reports/:report_id/file", h.DownloadReport)

	patient := g.Group("/patient", auth.RequireRole(auth.RolePatient))
	patient.GET("/lab-tests", h.ListForPatient)
	patient.GET("/lab-tests/reports/:report_id/file", h.DownloadReport)
}

func (h *Handler) Dashboard(c echo.Context) error {
	ctx := c.Request().Context()
	d, err := h.svc.Dashboard(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, d)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	page, err := h.svc.List(ctx, auth.UserIDFromContext(ctx), c.QueryParam("status"), pagination.FromContext(c))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, page)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	t, err := h.svc.Get(ctx, auth.UserIDFromContext(ctx), id)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, t)
}

func (h *Handler) Approve(c echo.Context) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	t, err := h.svc.Approve(ctx, auth.UserIDFromContext(ctx), id)
	if err != nil {
		return err
	}
	return httpx.OKMessage(c, http.StatusOK, "Test approved successfully", t)
}

func (h *Handler) Reject(c echo.Context) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req RejectRequest
	if c.Request().ContentLength != 0 {
		if err := httpx.Bind(c, &req); err != nil {
			return err
		}
	}
	t, err := h.svc.Reject(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return httpx.OKMessage(c, http.StatusOK, "Test rejected", t)
}

func (h *Handler) Schedule(c echo.Context) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req ScheduleRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	t, err := h.svc.Schedule(ctx, auth.UserIDFromContext(ctx), id, req)
	if err != nil {
		return err
	}
	return httpx.OKMessage(c, http.StatusOK, "Test scheduled successfully", t)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	t, err := h.svc.Update(ctx, auth.UserIDFromContext(ctx), id, req)
	if err != nil {
		return err
	}
	return httpx.OKMessage(c, http.StatusOK, "Test updated successfully", t)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req CompleteRequest
	if c.Request().ContentLength != 0 {
		if err := httpx.Bind(c, &req); err != nil {
			return err
		}
	}
	ctx := c.Request().Context()
	t, err := h.svc.Complete(ctx, auth.UserIDFromContext(ctx), id, req)
	if err != nil {
		return err
	}
	return httpx.OKMessage(c, http.StatusOK, "Test marked as completed", t)
}

func (h *Handler) ListReports(c echo.Context) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	reports, err := h.svc.ListReports(ctx, auth.UserIDFromContext(ctx), id)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, reports)
}

// UploadReport accepts a multipart form with the report in field "file".
func (h *Handler) UploadReport(c echo.Context) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return apperr.Validation("No file provided")
	}
	f, err := fh.Open()
	if err != nil {
		return apperr.Validation("could not read uploaded file")
	}
	defer f.Close()

	ctx := c.Request().Context()
	rep, err := h.svc.UploadReport(ctx, auth.UserIDFromContext(ctx), id, fh.Filename, f)
	if err != nil {
		return err
	}
	return httpx.OKMessage(c, http.StatusCreated, "Report uploaded successfully", rep)
}

func (h *Handler) DownloadReport(c echo.Context) error {
	reportID, err := httpx.ParamUUID(c, "report_id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	caller, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return apperr.Unauthenticated("")
	}
	rep, rc, err := h.svc.OpenReport(ctx, caller, reportID)
	if err != nil {
		return err
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", rep.FileName))
	return c.Stream(http.StatusOK, rep.ContentType, rc)
}

func (h *Handler) ListForPatient(c echo.Context) error {
	ctx := c.Request().Context()
	page, err := h.svc.ListForPatient(ctx, auth.UserIDFromContext(ctx), pagination.FromContext(c))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, page)
}
