package labtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/apperr"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/auth"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/blobstore"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/db"
	"github.com/varad2005/AI-IS13-HealthNova/pkg/pagination"
)

const (
	// scheduleTolerance lets a lab pick "now" from a form without racing the clock.
	scheduleTolerance = time.Minute
	dashboardSize     = 10
)

// scheduleLayouts are tried in order; the zone-less forms are read as UTC.
var scheduleLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

type Service struct {
	repo  Repository
	tx    db.Transactor
	blobs blobstore.Store
	now   func() time.Time
}

func NewService(repo Repository, tx db.Transactor, blobs blobstore.Store) *Service {
	return &Service{repo: repo, tx: tx, blobs: blobs, now: time.Now}
}

// ValidateRequests checks doctor orders before anything is written.
func ValidateRequests(reqs []TestRequest) error {
	for i, r := range reqs {
		if strings.TrimSpace(r.TestName) == "" {
			return apperr.Validation("lab_tests[%d]: test_name is required", i)
		}
	}
	return nil
}

// RequestTests records doctor orders for a visit. It joins the caller's
// transaction when there is one.
func (s *Service) RequestTests(ctx context.Context, visitID, patientID, requestedBy uuid.UUID, reqs []TestRequest) ([]*LabTest, error) {
	if err := ValidateRequests(reqs); err != nil {
		return nil, err
	}
	out := make([]*LabTest, 0, len(reqs))
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		for _, r := range reqs {
			t := &LabTest{
				ID:           uuid.New(),
				VisitID:      visitID,
				PatientID:    patientID,
				RequestedBy:  requestedBy,
				TestName:     strings.TrimSpace(r.TestName),
				TestType:     trimmed(r.TestType),
				Instructions: trimmed(r.Instructions),
				Status:       StatusRequested,
			}
			if err := s.repo.Create(ctx, t); err != nil {
				return fmt.Errorf("create lab test: %w", err)
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return out, nil
}

// ListByVisits returns the tests of the given visits with their reports.
func (s *Service) ListByVisits(ctx context.Context, visitIDs []uuid.UUID) ([]*LabTest, error) {
	tests, err := s.repo.ListByVisits(ctx, visitIDs)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list lab tests by visit: %w", err))
	}
	if err := s.attachReports(ctx, tests); err != nil {
		return nil, err
	}
	return tests, nil
}

// Get returns a test visible to labID: unassigned or held by that lab.
func (s *Service) Get(ctx context.Context, labID, id uuid.UUID) (*LabTest, error) {
	t, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if t.LabID != nil && *t.LabID != labID {
		return nil, apperr.Forbidden("Lab test is assigned to another lab")
	}
	if err := s.attachReports(ctx, []*LabTest{t}); err != nil {
		return nil, err
	}
	return t, nil
}

// List returns the requested pool when status is requested, otherwise the
// tests held by labID, optionally narrowed to one status.
func (s *Service) List(ctx context.Context, labID uuid.UUID, status string, p pagination.Params) (pagination.Page[*LabTest], error) {
	f := ListFilter{}
	switch status {
	case StatusRequested:
		f.Statuses = []string{StatusRequested}
	case "":
		f.LabID = &labID
	case StatusApproved, StatusScheduled, StatusCompleted, StatusRejected:
		f.LabID = &labID
		f.Statuses = []string{status}
	default:
		return pagination.Page[*LabTest]{}, apperr.Validation("invalid status filter %q", status)
	}
	tests, total, err := s.repo.List(ctx, f, p)
	if err != nil {
		return pagination.Page[*LabTest]{}, apperr.Internal(fmt.Errorf("list lab tests: %w", err))
	}
	return pagination.NewPage(tests, total, p), nil
}

// Dashboard summarizes the lab's queue.
func (s *Service) Dashboard(ctx context.Context, labID uuid.UUID) (*Dashboard, error) {
	counts, err := s.repo.CountByStatus(ctx, labID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("count lab tests: %w", err))
	}
	d := &Dashboard{Counts: map[string]int{
		StatusApproved:  counts[StatusApproved],
		StatusScheduled: counts[StatusScheduled],
		StatusCompleted: counts[StatusCompleted],
	}}
	for _, n := range counts {
		d.TotalAssigned += n
	}

	page := pagination.Params{Limit: dashboardSize}
	pool, poolTotal, err := s.repo.List(ctx, ListFilter{Statuses: []string{StatusRequested}}, page)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list requested tests: %w", err))
	}
	d.Counts[StatusRequested] = poolTotal
	d.RequestedTests = nonNil(pool)

	pending, _, err := s.repo.List(ctx, ListFilter{
		LabID:      &labID,
		Statuses:   []string{StatusApproved, StatusScheduled},
		BySchedule: true,
	}, page)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list pending tests: %w", err))
	}
	d.PendingTests = nonNil(pending)

	recent, _, err := s.repo.List(ctx, ListFilter{LabID: &labID}, page)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list recent tests: %w", err))
	}
	d.RecentTests = nonNil(recent)
	return d, nil
}

// Approve claims a requested test for labID. Only one lab can win.
func (s *Service) Approve(ctx context.Context, labID, id uuid.UUID) (*LabTest, error) {
	ok, err := s.repo.Approve(ctx, id, labID, s.now())
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("approve lab test: %w", err))
	}
	if !ok {
		return nil, s.claimFailure(ctx, id, "approve")
	}
	return s.load(ctx, id, false)
}

// Reject declines a requested test. The test stays unassigned.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, req RejectRequest) (*LabTest, error) {
	remarks := DefaultRejectRemarks
	if req.Remarks != nil && strings.TrimSpace(*req.Remarks) != "" {
		remarks = strings.TrimSpace(*req.Remarks)
	}
	ok, err := s.repo.Reject(ctx, id, remarks, s.now())
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("reject lab test: %w", err))
	}
	if !ok {
		return nil, s.claimFailure(ctx, id, "reject")
	}
	return s.load(ctx, id, false)
}

func (s *Service) claimFailure(ctx context.Context, id uuid.UUID, action string) error {
	t, err := s.load(ctx, id, false)
	if err != nil {
		return err
	}
	return apperr.InvalidState("lab test", action, t.Status)
}

// Schedule sets the collection time of an approved test.
func (s *Service) Schedule(ctx context.Context, labID, id uuid.UUID, req ScheduleRequest) (*LabTest, error) {
	raw := strings.TrimSpace(req.ScheduledTime)
	if raw == "" {
		return nil, apperr.Validation("scheduled_time is required")
	}
	at, err := parseScheduleTime(raw)
	if err != nil {
		return nil, apperr.Validation("Invalid date format: scheduled_time must be RFC 3339")
	}
	if at.Before(s.now().Add(-scheduleTolerance)) {
		return nil, apperr.Validation("scheduled_time cannot be in the past")
	}

	return s.mutate(ctx, labID, id, func(t *LabTest) error {
		if t.Status != StatusApproved {
			return apperr.InvalidState("lab test", "schedule", t.Status)
		}
		at := at.UTC()
		t.ScheduledTime = &at
		t.Status = StatusScheduled
		return nil
	})
}

// Update records results and remarks, and optionally moves the test forward.
func (s *Service) Update(ctx context.Context, labID, id uuid.UUID, req UpdateRequest) (*LabTest, error) {
	if req.Result == nil && req.Remarks == nil && req.Status == nil {
		return nil, apperr.Validation("at least one of result, remarks or status is required")
	}
	if req.Status != nil && *req.Status != StatusScheduled && *req.Status != StatusCompleted {
		return nil, apperr.Validation("Invalid status. Allowed: scheduled, completed")
	}

	return s.mutate(ctx, labID, id, func(t *LabTest) error {
		if req.Status != nil {
			if err := s.advance(t, *req.Status); err != nil {
				return err
			}
		}
		if req.Result != nil {
			t.Result = trimmed(req.Result)
		}
		if req.Remarks != nil {
			t.Remarks = trimmed(req.Remarks)
		}
		return nil
	})
}

func (s *Service) advance(t *LabTest, to string) error {
	switch to {
	case StatusScheduled:
		switch t.Status {
		case StatusScheduled:
			return nil
		case StatusApproved:
			if t.ScheduledTime == nil {
				return apperr.Validation("schedule the test before marking it scheduled")
			}
			t.Status = StatusScheduled
			return nil
		}
		return apperr.InvalidState("lab test", "mark scheduled", t.Status)
	case StatusCompleted:
		switch t.Status {
		case StatusCompleted:
			return nil
		case StatusApproved, StatusScheduled:
			now := s.now().UTC()
			t.Status = StatusCompleted
			t.CompletedAt = &now
			return nil
		}
		return apperr.InvalidState("lab test", "complete", t.Status)
	}
	return apperr.Validation("Invalid status. Allowed: scheduled, completed")
}

// Complete marks an approved or scheduled test as done.
func (s *Service) Complete(ctx context.Context, labID, id uuid.UUID, req CompleteRequest) (*LabTest, error) {
	return s.mutate(ctx, labID, id, func(t *LabTest) error {
		if t.Status != StatusApproved && t.Status != StatusScheduled {
			return apperr.InvalidState("lab test", "complete", t.Status)
		}
		if err := s.advance(t, StatusCompleted); err != nil {
			return err
		}
		if req.Result != nil {
			t.Result = trimmed(req.Result)
		}
		if req.Remarks != nil {
			t.Remarks = trimmed(req.Remarks)
		}
		return nil
	})
}

// mutate loads a test held by labID under a row lock, applies fn and saves.
func (s *Service) mutate(ctx context.Context, labID, id uuid.UUID, fn func(t *LabTest) error) (*LabTest, error) {
	var out *LabTest
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := s.loadAssigned(ctx, labID, id, true)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, t); err != nil {
			return fmt.Errorf("update lab test: %w", err)
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if err := s.attachReports(ctx, []*LabTest{out}); err != nil {
		return nil, err
	}
	return out, nil
}

// UploadReport stores a result file for a test held by labID.
func (s *Service) UploadReport(ctx context.Context, labID, id uuid.UUID, fileName string, content io.Reader) (*TestReport, error) {
	t, err := s.loadAssigned(ctx, labID, id, false)
	if err != nil {
		return nil, err
	}
	obj, err := s.blobs.Put(ctx, fileName, content)
	if err != nil {
		return nil, uploadError(err)
	}
	rep := &TestReport{
		ID:          uuid.New(),
		LabTestID:   t.ID,
		UploadedBy:  labID,
		FileName:    obj.FileName,
		FileKey:     obj.Key,
		ContentType: obj.ContentType,
		SizeBytes:   obj.Size,
		SHA256:      obj.SHA256,
	}
	if err := s.repo.AddReport(ctx, rep); err != nil {
		err = fmt.Errorf("record report: %w", err)
		if derr := s.blobs.Delete(ctx, obj.Key); derr != nil {
			err = errors.Join(err, derr)
		}
		return nil, apperr.Internal(err)
	}
	return rep, nil
}

// ReportKeysForPatient lists the stored files behind a patient's reports.
func (s *Service) ReportKeysForPatient(ctx context.Context, patientID uuid.UUID) ([]string, error) {
	keys, err := s.repo.ReportKeysByPatient(ctx, patientID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list report files: %w", err))
	}
	return keys, nil
}

// DeleteReportFiles removes stored report files, continuing past failures.
func (s *Service) DeleteReportFiles(ctx context.Context, keys []string) error {
	var errs []error
	for _, k := range keys {
		if err := s.blobs.Delete(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func uploadError(err error) error {
	switch {
	case errors.Is(err, blobstore.ErrMissingFileName):
		return apperr.Validation("No file selected")
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return apperr.Validation("File too large. Maximum size is %d MB", blobstore.MaxFileSize/(1024*1024))
	case errors.Is(err, blobstore.ErrFileTooSmall):
		return apperr.Validation("File is empty or too small")
	case errors.Is(err, blobstore.ErrInvalidContentType):
		return apperr.Validation("Invalid file type. Allowed: pdf, jpg, jpeg, png")
	}
	return apperr.Internal(fmt.Errorf("store report: %w", err))
}

// ListReports returns the reports of a test visible to labID.
func (s *Service) ListReports(ctx context.Context, labID, id uuid.UUID) ([]*TestReport, error) {
	t, err := s.Get(ctx, labID, id)
	if err != nil {
		return nil, err
	}
	if t.Reports == nil {
		return []*TestReport{}, nil
	}
	return t.Reports, nil
}

// OpenReport returns a report file to the lab holding the test or to the
// patient it belongs to. Anyone else gets NotFound.
func (s *Service) OpenReport(ctx context.Context, caller auth.Identity, reportID uuid.UUID) (*TestReport, io.ReadCloser, error) {
	rep, err := s.repo.GetReport(ctx, reportID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil, apperr.NotFound("Report")
	}
	if err != nil {
		return nil, nil, apperr.Internal(fmt.Errorf("get report: %w", err))
	}
	t, err := s.load(ctx, rep.LabTestID, false)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case caller.Role == auth.RoleLab && t.AssignedTo(caller.UserID):
	case caller.Role == auth.RolePatient && t.PatientID == caller.UserID:
	default:
		return nil, nil, apperr.NotFound("Report")
	}

	rc, err := s.blobs.Open(ctx, rep.FileKey)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, apperr.NotFound("Report file")
	}
	if err != nil {
		return nil, nil, apperr.Internal(fmt.Errorf("open report: %w", err))
	}
	return rep, rc, nil
}

// ListForPatient returns the patient's own tests with reports.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) (pagination.Page[*LabTest], error) {
	tests, total, err := s.repo.List(ctx, ListFilter{PatientID: &patientID}, p)
	if err != nil {
		return pagination.Page[*LabTest]{}, apperr.Internal(fmt.Errorf("list patient lab tests: %w", err))
	}
	if err := s.attachReports(ctx, tests); err != nil {
		return pagination.Page[*LabTest]{}, err
	}
	return pagination.NewPage(tests, total, p), nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID, forUpdate bool) (*LabTest, error) {
	get := s.repo.Get
	if forUpdate {
		get = s.repo.GetForUpdate
	}
	t, err := get(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("Lab test")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("get lab test: %w", err))
	}
	return t, nil
}

// loadAssigned returns a test only if labID holds it. Unassigned tests have
// to be approved first.
func (s *Service) loadAssigned(ctx context.Context, labID, id uuid.UUID, forUpdate bool) (*LabTest, error) {
	t, err := s.load(ctx, id, forUpdate)
	if err != nil {
		return nil, err
	}
	if t.LabID == nil {
		return nil, apperr.InvalidState("lab test", "modify", t.Status)
	}
	if *t.LabID != labID {
		return nil, apperr.Forbidden("Lab test is assigned to another lab")
	}
	return t, nil
}

func (s *Service) attachReports(ctx context.Context, tests []*LabTest) error {
	if len(tests) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(tests))
	byID := make(map[uuid.UUID]*LabTest, len(tests))
	for i, t := range tests {
		ids[i] = t.ID
		byID[t.ID] = t
	}
	reports, err := s.repo.ListReports(ctx, ids)
	if err != nil {
		return apperr.Internal(fmt.Errorf("list reports: %w", err))
	}
	for _, r := range reports {
		if t, ok := byID[r.LabTestID]; ok {
			t.Reports = append(t.Reports, r)
		}
	}
	return nil
}

func parseScheduleTime(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range scheduleLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func nonNil(tests []*LabTest) []*LabTest {
	if tests == nil {
		return []*LabTest{}
	}
	return tests
}
