package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/varad2005/AI-IS13-HealthNova/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Update persists status, meeting status and meeting timestamps.
	Update(ctx context.Context, a *Appointment) error
	List(ctx context.Context, f ListFilter, p pagination.Params) ([]*Appointment, int, error)
	// FindLive returns a live appointment between the pair or db.ErrNotFound.
	FindLive(ctx context.Context, patientID, doctorID uuid.UUID) (*Appointment, error)
	// MarkNoShows moves scheduled appointments whose meeting never started
	// and that ended before cutoff to no_show.
	MarkNoShows(ctx context.Context, cutoff time.Time) (int64, error)
}
