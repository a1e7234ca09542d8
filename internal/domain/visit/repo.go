package visit

import (
	"context"

	"github.com/google/uuid"

	"github.com/varad2005/AI-IS13-HealthNova/pkg/pagination"
)

// Repository defines the data access interface for visits and their
// append-only children.
type Repository interface {
	Create(ctx context.Context, v *Visit) error
	Get(ctx context.Context, id uuid.UUID) (*Visit, error)
	// GetForUpdate locks the visit row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Visit, error)
	// Claim assigns doctorID to an unassigned visit. It reports false when
	// the visit already has a doctor.
	Claim(ctx context.Context, id, doctorID uuid.UUID) (bool, error)
	// UpdateState persists severity, status and completed_at.
	UpdateState(ctx context.Context, v *Visit) error
	List(ctx context.Context, f ListFilter, p pagination.Params) ([]*Visit, int, error)
	PatientStats(ctx context.Context, patientID uuid.UUID) (*Stats, error)
	HasDoctorPatient(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)
	ListDoctorPatients(ctx context.Context, doctorID uuid.UUID) ([]*DoctorPatient, error)
	// DeleteByPatient removes a patient's visits and, by cascade, all their
	// children. It returns the number of visits removed.
	DeleteByPatient(ctx context.Context, patientID uuid.UUID) (int64, error)

	AddEntry(ctx context.Context, e *Entry) error
	ListEntries(ctx context.Context, visitIDs []uuid.UUID) ([]*Entry, error)
	AddPrescription(ctx context.Context, p *Prescription) error
	ListPrescriptions(ctx context.Context, visitIDs []uuid.UUID) ([]*Prescription, error)
	AddMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, visitID uuid.UUID) ([]*Message, error)
}
