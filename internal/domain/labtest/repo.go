package labtest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/varad2005/AI-IS13-HealthNova/pkg/pagination"
)

// Repository defines the data access interface for lab tests and reports.
type Repository interface {
	Create(ctx context.Context, t *LabTest) error
	Get(ctx context.Context, id uuid.UUID) (*LabTest, error)
	// GetForUpdate locks the row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*LabTest, error)
	// Approve assigns labID to a requested, unassigned test. It reports
	// false when no row matched.
	Approve(ctx context.Context, id, labID uuid.UUID, now time.Time) (bool, error)
	// Reject moves a requested, unassigned test to rejected.
	Reject(ctx context.Context, id uuid.UUID, remarks string, now time.Time) (bool, error)
	Update(ctx context.Context, t *LabTest) error
	List(ctx context.Context, f ListFilter, p pagination.Params) ([]*LabTest, int, error)
	CountByStatus(ctx context.Context, labID uuid.UUID) (map[string]int, error)
	ListByVisits(ctx context.Context, visitIDs []uuid.UUID) ([]*LabTest, error)

	AddReport(ctx context.Context, r *TestReport) error
	ListReports(ctx context.Context, labTestIDs []uuid.UUID) ([]*TestReport, error)
	GetReport(ctx context.Context, id uuid.UUID) (*TestReport, error)
	// ReportKeysByPatient returns the blob keys of every report on the
	// patient's tests.
	ReportKeysByPatient(ctx context.Context, patientID uuid.UUID) ([]string, error)
}
