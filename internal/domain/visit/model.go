package visit

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/varad2005/AI-IS13-HealthNova/internal/domain/identity"
	"github.com/varad2005/AI-IS13-HealthNova/internal/domain/labtest"
)

const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// statusRank orders visit statuses. Transitions never decrease the rank.
var statusRank = map[string]int{
	StatusOpen:       0,
	StatusInProgress: 1,
	StatusCompleted:  2,
}

const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

var validSeverities = map[string]bool{
	SeverityLow:      true,
	SeverityMedium:   true,
	SeverityHigh:     true,
	SeverityCritical: true,
}

// Append-only text fields of a visit.
const (
	FieldDiagnosis = "diagnosis"
	FieldNotes     = "notes"
)

// entryTimeLayout stamps every appended entry after the first.
const entryTimeLayout = "2006-01-02 15:04"

// Visit is one health complaint episode. Diagnosis and Notes are rendered
// from Entries on read.
type Visit struct {
	ID            uuid.UUID          `json:"id"`
	PatientID     uuid.UUID          `json:"patient_id"`
	DoctorID      *uuid.UUID         `json:"doctor_id"`
	Symptoms      string             `json:"symptoms"`
	AISummary     *string            `json:"ai_summary"`
	Severity      string             `json:"severity"`
	Status        string             `json:"status"`
	Diagnosis     *string            `json:"diagnosis"`
	Notes         *string            `json:"notes"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	CompletedAt   *time.Time         `json:"completed_at"`
	Entries       []*Entry           `json:"entries"`
	Prescriptions []*Prescription    `json:"prescriptions"`
	LabTests      []*labtest.LabTest `json:"lab_tests"`
}

// AssignedTo reports whether doctorID holds the visit.
func (v *Visit) AssignedTo(doctorID uuid.UUID) bool {
	return v.DoctorID != nil && *v.DoctorID == doctorID
}

// Entry is one append to a visit's diagnosis or notes.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	VisitID   uuid.UUID `json:"visit_id"`
	Field     string    `json:"field"`
	Body      string    `json:"body"`
	AuthorID  uuid.UUID `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

// render joins the entries of one field in order. The first entry stands
// alone; later ones are prefixed with their UTC timestamp.
func render(entries []*Entry, field string) *string {
	var b strings.Builder
	n := 0
	for _, e := range entries {
		if e.Field != field {
			continue
		}
		if n > 0 {
			b.WriteString("\n\n[")
			b.WriteString(e.CreatedAt.UTC().Format(entryTimeLayout))
			b.WriteString("] ")
		}
		b.WriteString(e.Body)
		n++
	}
	if n == 0 {
		return nil
	}
	s := b.String()
	return &s
}

type Prescription struct {
	ID             uuid.UUID `json:"id"`
	VisitID        uuid.UUID `json:"visit_id"`
	MedicationName string    `json:"medication_name"`
	Dosage         string    `json:"dosage"`
	Frequency      string    `json:"frequency"`
	Duration       string    `json:"duration"`
	Instructions   *string   `json:"instructions"`
	CreatedAt      time.Time `json:"created_at"`
}

type Message struct {
	ID         uuid.UUID `json:"id"`
	VisitID    uuid.UUID `json:"visit_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderRole string    `json:"sender_role"`
	Body       string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

type CreateRequest struct {
	Symptoms string  `json:"symptoms"`
	Severity *string `json:"severity"`
}

type PrescriptionRequest struct {
	MedicationName string  `json:"medication_name"`
	Dosage         string  `json:"dosage"`
	Frequency      string  `json:"frequency"`
	Duration       string  `json:"duration"`
	Instructions   *string `json:"instructions"`
}

// DiagnoseRequest is a doctor's write to a visit. Every field is optional
// but at least one must be set.
type DiagnoseRequest struct {
	Diagnosis     *string               `json:"diagnosis"`
	Notes         *string               `json:"notes"`
	Severity      *string               `json:"severity"`
	Status        *string               `json:"status"`
	Prescriptions []PrescriptionRequest `json:"prescriptions"`
	LabTests      []labtest.TestRequest `json:"lab_tests"`
}

type NotesRequest struct {
	Diagnosis *string `json:"diagnosis"`
	Notes     *string `json:"notes"`
}

// HistoryEntryRequest opens a visit on a doctor's initiative for a patient
// they already treat.
type HistoryEntryRequest struct {
	Symptoms string `json:"symptoms"`
	DiagnoseRequest
}

type MessageRequest struct {
	Body string `json:"message"`
}

// ListFilter narrows List. Unassigned restricts to visits without a doctor.
type ListFilter struct {
	PatientID  *uuid.UUID
	DoctorID   *uuid.UUID
	Unassigned bool
	Statuses   []string
}

// Stats aggregates a patient's visits.
type Stats struct {
	ByStatus         map[string]int
	DoctorsConsulted int
}

// Summary is the patient's medical history at a glance.
type Summary struct {
	TotalVisits      int    `json:"total_visits"`
	OpenVisits       int    `json:"open_visits"`
	InProgressVisits int    `json:"in_progress_visits"`
	CompletedVisits  int    `json:"completed_visits"`
	DoctorsConsulted int    `json:"doctors_consulted"`
	LatestVisit      *Visit `json:"latest_visit"`
}

// DoctorPatient is a patient a doctor has at least one visit with.
type DoctorPatient struct {
	PatientID   uuid.UUID `json:"patient_id"`
	FullName    string    `json:"full_name"`
	PhoneNumber string    `json:"phone_number"`
	TotalVisits int       `json:"total_visits"`
	LastVisitAt time.Time `json:"last_visit_at"`
}

// Timeline is the doctor's view of a patient's whole history.
type Timeline struct {
	Patient *identity.ProfileView `json:"patient"`
	Summary *Summary              `json:"summary"`
	Visits  []*Visit              `json:"timeline"`
}

type DoctorDashboard struct {
	TotalPatients    int      `json:"total_patients"`
	TotalVisits      int      `json:"total_visits"`
	OpenPool         int      `json:"open_unassigned_visits"`
	InProgressVisits []*Visit `json:"in_progress_visits"`
}
