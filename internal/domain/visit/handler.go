package visit

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/varad2005/AI-IS13-HealthNova/internal/domain/labtest"
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
	p := g.Group("/patient", auth.RequireRole(auth.RolePatient))
	p.POST("/visits", h.CreateVisit)
	p.GET("/visits", h.ListPatientVisits)
	p.GET("/visits/:id", h.GetPatientVisit)
	p.GET("/history", h.History)
	p.GET("/summary", h.Summary)
	p.GET("/history/summary", h.Summary)
	p.GET("/prescriptions", h.Prescriptions)

	d := g.Group("/doctor", auth.RequireRole(auth.RoleDoctor))
	d.GET("/dashboard", h.DoctorDashboard)
	d.GET("/visits", h.ListDoctorVisits)
	d.GET("/visits/open", h.ListOpenVisits)
	d.GET("/visits/:id", h.GetDoctorVisit)
	d.POST("/visits/:id/diagnose", h.Diagnose)
	d.PUT("/visits/:id/diagnose", h.Diagnose)
	d.POST("/visits/:id/notes", h.AddNotes)
	d.POST("/visits/:id/notes/append", h.AddNotes)
	d.POST("/visits/:id/prescriptions", h.AddPrescription)
	d.POST("/visits/:id/lab-tests", h.RequestLabTest)
	d.POST("/visits/:id/complete", h.Complete)
	d.GET("/patients", h.DoctorPatients)
	d.GET("/patients/:id/timeline", h.DoctorTimeline)
	d.POST("/patients/:id/history/add", h.AddHistoryEntry)
	d.POST("/patients/:id/history", h.AddHistoryEntry)

	m := g.Group("/visits", auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	m.GET("/:id/messages", h.ListMessages)
	m.POST("/:id/messages", h.PostMessage)
}

// -- Patient --

func (h *Handler) CreateVisit(c echo.Context) error {
	var req CreateRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	v, err := h.svc.CreateVisit(ctx, auth.UserIDFromContext(ctx), req)
	if err != nil {
		return err
	}
	return httpx.OKMessage(c, http.StatusCreated, "Visit created successfully. A doctor will review your symptoms.", v)
}

func (h *Handler) ListPatientVisits(c echo.Context) error {
	ctx := c.Request().Context()
	page, err := h.svc.ListForPatient(ctx, auth.UserIDFromContext(ctx), pagination.FromContext(c))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, page)
}

func (h *Handler) GetPatientVisit(c echo.Context) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	v, err := h.svc.GetForPatient(ctx, auth.UserIDFromContext(ctx), id)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, v)
}

func (h *Handler) History(c echo.Context) error {
	ctx := c.Request().Context()
	patientID := auth.UserIDFromContext(ctx)
	sum, err := h.svc.Summary(ctx, patientID)
	if err != nil {
		return err
	}
	visits, err := h.svc.History(ctx, patientID)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, map[string]interface{}{
		"summary": sum,
		"history": visits,
	})
}

func (h *Handler) Summary(c echo.Context) error {
	ctx := c.Request().Context()
	sum, err := h.svc.Summary(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, sum)
}

func (h *Handler) Prescriptions(c echo.Context) error {
	ctx := c.Request().Context()
	rx, err := h.svc.Prescriptions(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, map[string]interface{}{
		"prescriptions": rx,
		"total":         len(rx),
	})
}

// -- Doctor --

func (h *Handler) DoctorDashboard(c echo.Context) error {
	ctx := c.Request().Context()
	d, err := h.svc.DoctorDashboard(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, d)
}

func (h *Handler) ListDoctorVisits(c echo.Context) error {
	ctx := c.Request().Context()
	page, err := h.svc.ListForDoctor(ctx, auth.UserIDFromContext(ctx), c.QueryParam("status"), pagination.FromContext(c))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, page)
}

func (h *Handler) ListOpenVisits(c echo.Context) error {
	page, err := h.svc.ListOpen(c.Request().Context(), pagination.FromContext(c))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, page)
}

func (h *Handler) GetDoctorVisit(c echo.Context) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	v, err := h.svc.GetForDoctor(ctx, auth.UserIDFromContext(ctx), id)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, v)
}

func (h *Handler) Diagnose(c echo.Context) error {
	var req DiagnoseRequest
	return h.doctorWrite(c, &req, "Visit updated successfully", func(ctx context.Context, doctorID, visitID uuid.UUID) (*Visit, error) {
		return h.svc.Diagnose(ctx, doctorID, visitID, req)
	})
}

func (h *Handler) AddNotes(c echo.Context) error {
	var req NotesRequest
	return h.doctorWrite(c, &req, "Notes appended successfully", func(ctx context.Context, doctorID, visitID uuid.UUID) (*Visit, error) {
		return h.svc.AddNotes(ctx, doctorID, visitID, req)
	})
}

func (h *Handler) AddPrescription(c echo.Context) error {
	var req PrescriptionRequest
	return h.doctorWrite(c, &req, "Prescription added successfully", func(ctx context.Context, doctorID, visitID uuid.UUID) (*Visit, error) {
		return h.svc.AddPrescription(ctx, doctorID, visitID, req)
	})
}

func (h *Handler) RequestLabTest(c echo.Context) error {
	var req labtest.TestRequest
	return h.doctorWrite(c, &req, "Lab test requested successfully", func(ctx context.Context, doctorID, visitID uuid.UUID) (*Visit, error) {
		return h.svc.RequestLabTest(ctx, doctorID, visitID, req)
	})
}

func (h *Handler) Complete(c echo.Context) error {
	return h.doctorWrite(c, nil, "Visit marked as completed", h.svc.Complete)
}

// doctorWrite parses the visit id and, when body is non-nil, the request
// body, then runs fn as the calling doctor.
func (h *Handler) doctorWrite(c echo.Context, body interface{}, msg string, fn func(ctx context.Context, doctorID, visitID uuid.UUID) (*Visit, error)) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	if body != nil {
		if err := httpx.Bind(c, body); err != nil {
			return err
		}
	}
	ctx := c.Request().Context()
	v, err := fn(ctx, auth.UserIDFromContext(ctx), id)
	if err != nil {
		return err
	}
	return httpx.OKMessage(c, http.StatusOK, msg, v)
}

func (h *Handler) DoctorPatients(c echo.Context) error {
	ctx := c.Request().Context()
	patients, err := h.svc.DoctorPatients(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, map[string]interface{}{
		"patients": patients,
		"total":    len(patients),
	})
}

func (h *Handler) DoctorTimeline(c echo.Context) error {
	patientID, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tl, err := h.svc.DoctorTimeline(ctx, auth.UserIDFromContext(ctx), patientID)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, tl)
}

func (h *Handler) AddHistoryEntry(c echo.Context) error {
	patientID, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req HistoryEntryRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	v, err := h.svc.AddHistoryEntry(ctx, auth.UserIDFromContext(ctx), patientID, req)
	if err != nil {
		return err
	}
	return httpx.OKMessage(c, http.StatusCreated, "Medical history entry added successfully", v)
}

// -- Messages --

func (h *Handler) ListMessages(c echo.Context) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	caller, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return apperr.Unauthenticated("")
	}
	msgs, err := h.svc.ListMessages(ctx, caller, id)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, msgs)
}

func (h *Handler) PostMessage(c echo.Context) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req MessageRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	caller, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return apperr.Unauthenticated("")
	}
	m, err := h.svc.PostMessage(ctx, caller, id, req)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, m)
}
