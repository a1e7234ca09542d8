package labtest

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusRequested = "requested"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
)

// DefaultRejectRemarks is stored when a lab rejects a test without remarks.
const DefaultRejectRemarks = "Rejected by lab"

// LabTest is a test a doctor ordered during a visit. LabID stays nil while
// the test is requested or rejected.
type LabTest struct {
	ID            uuid.UUID     `json:"id"`
	VisitID       uuid.UUID     `json:"visit_id"`
	PatientID     uuid.UUID     `json:"patient_id"`
	RequestedBy   uuid.UUID     `json:"requested_by"`
	LabID         *uuid.UUID    `json:"lab_id"`
	TestName      string        `json:"test_name"`
	TestType      *string       `json:"test_type,omitempty"`
	Instructions  *string       `json:"instructions,omitempty"`
	Status        string        `json:"status"`
	ScheduledTime *time.Time    `json:"scheduled_time"`
	Result        *string       `json:"result"`
	Remarks       *string       `json:"remarks"`
	CompletedAt   *time.Time    `json:"completed_at"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Reports       []*TestReport `json:"reports,omitempty"`
}

// AssignedTo reports whether the test is held by labID.
func (t *LabTest) AssignedTo(labID uuid.UUID) bool {
	return t.LabID != nil && *t.LabID == labID
}

// TestReport is an uploaded result file. Reports are never modified.
type TestReport struct {
	ID          uuid.UUID `json:"id"`
	LabTestID   uuid.UUID `json:"lab_test_id"`
	UploadedBy  uuid.UUID `json:"uploaded_by"`
	FileName    string    `json:"file_name"`
	FileKey     string    `json:"file_path"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	SHA256      string    `json:"sha256"`
	CreatedAt   time.Time `json:"created_at"`
}

// TestRequest is a doctor's order for a single test.
type TestRequest struct {
	TestName     string  `json:"test_name"`
	TestType     *string `json:"test_type"`
	Instructions *string `json:"instructions"`
}

type RejectRequest struct {
	Remarks *string `json:"remarks"`
}

type ScheduleRequest struct {
	ScheduledTime string `json:"scheduled_time"`
}

// UpdateRequest sets result and remarks. Status, when present, must be
// scheduled or completed.
type UpdateRequest struct {
	Result  *string `json:"result"`
	Remarks *string `json:"remarks"`
	Status  *string `json:"status"`
}

type CompleteRequest struct {
	Result  *string `json:"result"`
	Remarks *string `json:"remarks"`
}

// ListFilter narrows List. BySchedule orders by scheduled_time instead of
// newest first.
type ListFilter struct {
	LabID      *uuid.UUID
	PatientID  *uuid.UUID
	Statuses   []string
	BySchedule bool
}

// Dashboard is the lab's landing view.
type Dashboard struct {
	Counts         map[string]int `json:"counts"`
	RequestedTests []*LabTest     `json:"requested_tests"`
	PendingTests   []*LabTest     `json:"pending_tests"`
	RecentTests    []*LabTest     `json:"recent_tests"`
	TotalAssigned  int            `json:"total_assigned"`
}
