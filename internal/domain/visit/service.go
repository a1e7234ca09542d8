package visit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/varad2005/AI-IS13-HealthNova/internal/domain/identity"
	"github.com/varad2005/AI-IS13-HealthNova/internal/domain/labtest"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/apperr"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/auth"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/db"
	"github.com/varad2005/AI-IS13-HealthNova/pkg/pagination"
)

const (
	summaryTimeout = 5 * time.Second
	maxMessageLen  = 2000
	// historyLimit caps the visits loaded into one history or timeline.
	historyLimit = 500
)

// LabRequester creates and reads the lab tests attached to visits.
type LabRequester interface {
	RequestTests(ctx context.Context, visitID, patientID, requestedBy uuid.UUID, reqs []labtest.TestRequest) ([]*labtest.LabTest, error)
	ListByVisits(ctx context.Context, visitIDs []uuid.UUID) ([]*labtest.LabTest, error)
	ReportKeysForPatient(ctx context.Context, patientID uuid.UUID) ([]string, error)
	DeleteReportFiles(ctx context.Context, keys []string) error
}

// Summarizer produces a short triage summary of reported symptoms.
type Summarizer interface {
	Summarize(ctx context.Context, symptoms string) (string, error)
}

// PatientDirectory resolves a patient's profile for the doctor timeline.
type PatientDirectory interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*identity.ProfileView, error)
}

type Service struct {
	repo       Repository
	tx         db.Transactor
	labs       LabRequester
	patients   PatientDirectory
	summarizer Summarizer
	logger     zerolog.Logger
	now        func() time.Time
}

// NewService wires the visit ledger. summarizer may be nil.
func NewService(repo Repository, tx db.Transactor, labs LabRequester, patients PatientDirectory, summarizer Summarizer, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		tx:         tx,
		labs:       labs,
		patients:   patients,
		summarizer: summarizer,
		logger:     logger.With().Str("component", "visit").Logger(),
		now:        time.Now,
	}
}

// CreateVisit records a patient's complaint. The AI summary is best effort.
func (s *Service) CreateVisit(ctx context.Context, patientID uuid.UUID, req CreateRequest) (*Visit, error) {
	symptoms := strings.TrimSpace(req.Symptoms)
	if symptoms == "" {
		return nil, apperr.Validation("Symptoms are required and cannot be empty")
	}
	severity, err := severityOrDefault(req.Severity)
	if err != nil {
		return nil, err
	}

	v := &Visit{
		ID:        uuid.New(),
		PatientID: patientID,
		Symptoms:  symptoms,
		AISummary: s.summarize(ctx, symptoms),
		Severity:  severity,
		Status:    StatusOpen,
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, apperr.Internal(fmt.Errorf("create visit: %w", err))
	}
	s.logger.Info().Str("visit_id", v.ID.String()).Str("severity", v.Severity).Msg("visit created")
	return v, nil
}

func (s *Service) summarize(ctx context.Context, symptoms string) *string {
	if s.summarizer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, summaryTimeout)
	defer cancel()
	summary, err := s.summarizer.Summarize(ctx, symptoms)
	if err != nil {
		s.logger.Warn().Err(err).Msg("symptom summary unavailable")
		return nil
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil
	}
	return &summary
}

// Diagnose applies a doctor's write to a visit. An unassigned visit is
// claimed by the doctor; a visit held by another doctor is reported as
// missing. All writes commit together.
func (s *Service) Diagnose(ctx context.Context, doctorID, visitID uuid.UUID, req DiagnoseRequest) (*Visit, error) {
	w, err := newWrite(req)
	if err != nil {
		return nil, err
	}

	var out *Visit
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		v, err := s.load(ctx, visitID, true)
		if err != nil {
			return err
		}
		if v.DoctorID != nil && *v.DoctorID != doctorID {
			return apperr.NotFound("Visit")
		}
		if v.Status == StatusCompleted {
			return apperr.InvalidState("visit", "update", v.Status)
		}
		if v.DoctorID == nil {
			ok, err := s.repo.Claim(ctx, v.ID, doctorID)
			if err != nil {
				return fmt.Errorf("claim visit: %w", err)
			}
			if !ok {
				return apperr.NotFound("Visit")
			}
			v.DoctorID = &doctorID
		}
		if err := s.apply(ctx, v, doctorID, w); err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return s.withDetails(ctx, out)
}

// AddNotes appends diagnosis and/or notes.
func (s *Service) AddNotes(ctx context.Context, doctorID, visitID uuid.UUID, req NotesRequest) (*Visit, error) {
	return s.Diagnose(ctx, doctorID, visitID, DiagnoseRequest{Diagnosis: req.Diagnosis, Notes: req.Notes})
}

func (s *Service) AddPrescription(ctx context.Context, doctorID, visitID uuid.UUID, req PrescriptionRequest) (*Visit, error) {
	return s.Diagnose(ctx, doctorID, visitID, DiagnoseRequest{Prescriptions: []PrescriptionRequest{req}})
}

func (s *Service) RequestLabTest(ctx context.Context, doctorID, visitID uuid.UUID, req labtest.TestRequest) (*Visit, error) {
	return s.Diagnose(ctx, doctorID, visitID, DiagnoseRequest{LabTests: []labtest.TestRequest{req}})
}

func (s *Service) Complete(ctx context.Context, doctorID, visitID uuid.UUID) (*Visit, error) {
	completed := StatusCompleted
	return s.Diagnose(ctx, doctorID, visitID, DiagnoseRequest{Status: &completed})
}

// write is a validated DiagnoseRequest.
type write struct {
	diagnosis     string
	notes         string
	severity      string
	status        string
	prescriptions []PrescriptionRequest
	labTests      []labtest.TestRequest
}

func newWrite(req DiagnoseRequest) (*write, error) {
	w := &write{
		diagnosis:     trim(req.Diagnosis),
		notes:         trim(req.Notes),
		severity:      strings.ToLower(trim(req.Severity)),
		status:        strings.ToLower(trim(req.Status)),
		prescriptions: req.Prescriptions,
		labTests:      req.LabTests,
	}
	if w.diagnosis == "" && w.notes == "" && w.severity == "" && w.status == "" &&
		len(w.prescriptions) == 0 && len(w.labTests) == 0 {
		return nil, apperr.Validation("at least one of diagnosis, notes, severity, status, prescriptions or lab_tests is required")
	}
	if w.severity != "" && !validSeverities[w.severity] {
		return nil, apperr.Validation("Invalid severity. Must be low, medium, high, or critical")
	}
	if _, ok := statusRank[w.status]; w.status != "" && !ok {
		return nil, apperr.Validation("Invalid status. Must be open, in_progress, or completed")
	}
	for i, p := range w.prescriptions {
		for _, f := range [][2]string{
			{"medication_name", p.MedicationName},
			{"dosage", p.Dosage},
			{"frequency", p.Frequency},
			{"duration", p.Duration},
		} {
			if strings.TrimSpace(f[1]) == "" {
				return nil, apperr.Validation("prescriptions[%d]: %s is required", i, f[0])
			}
		}
	}
	if err := labtest.ValidateRequests(w.labTests); err != nil {
		return nil, err
	}
	return w, nil
}

// apply writes w to a visit the doctor holds. It must run inside a
// transaction with v locked.
func (s *Service) apply(ctx context.Context, v *Visit, doctorID uuid.UUID, w *write) error {
	if v.Status == StatusCompleted {
		return apperr.InvalidState("visit", "update", v.Status)
	}

	target := v.Status
	if w.status != "" {
		if statusRank[w.status] < statusRank[v.Status] {
			return apperr.InvalidState("visit", "move to "+w.status, v.Status)
		}
		target = w.status
	} else if v.Status == StatusOpen {
		target = StatusInProgress
	}

	for _, e := range []struct{ field, body string }{
		{FieldDiagnosis, w.diagnosis},
		{FieldNotes, w.notes},
	} {
		if e.body == "" {
			continue
		}
		entry := &Entry{ID: uuid.New(), VisitID: v.ID, Field: e.field, Body: e.body, AuthorID: doctorID}
		if err := s.repo.AddEntry(ctx, entry); err != nil {
			return fmt.Errorf("append %s: %w", e.field, err)
		}
	}

	if w.severity != "" {
		v.Severity = w.severity
	}
	if target == StatusCompleted {
		now := s.now().UTC()
		v.CompletedAt = &now
	}
	v.Status = target
	if err := s.repo.UpdateState(ctx, v); err != nil {
		return fmt.Errorf("update visit: %w", err)
	}

	for _, p := range w.prescriptions {
		rx := &Prescription{
			ID:             uuid.New(),
			VisitID:        v.ID,
			MedicationName: strings.TrimSpace(p.MedicationName),
			Dosage:         strings.TrimSpace(p.Dosage),
			Frequency:      strings.TrimSpace(p.Frequency),
			Duration:       strings.TrimSpace(p.Duration),
			Instructions:   optional(trim(p.Instructions)),
		}
		if err := s.repo.AddPrescription(ctx, rx); err != nil {
			return fmt.Errorf("add prescription: %w", err)
		}
	}
	if len(w.labTests) > 0 {
		if _, err := s.labs.RequestTests(ctx, v.ID, v.PatientID, doctorID, w.labTests); err != nil {
			return err
		}
	}
	return nil
}

// AddHistoryEntry opens a visit on the doctor's initiative, already
// assigned to them, for a patient they have treated before.
func (s *Service) AddHistoryEntry(ctx context.Context, doctorID, patientID uuid.UUID, req HistoryEntryRequest) (*Visit, error) {
	if err := s.requirePatientAccess(ctx, doctorID, patientID); err != nil {
		return nil, err
	}
	symptoms := strings.TrimSpace(req.Symptoms)
	if symptoms == "" {
		return nil, apperr.Validation("Symptoms are required")
	}
	severity, err := severityOrDefault(req.Severity)
	if err != nil {
		return nil, err
	}
	var w *write
	if req.Diagnosis != nil || req.Notes != nil || req.Status != nil ||
		len(req.Prescriptions) > 0 || len(req.LabTests) > 0 {
		req.Severity = nil
		if w, err = newWrite(req.DiagnoseRequest); err != nil {
			return nil, err
		}
	}

	v := &Visit{
		ID:        uuid.New(),
		PatientID: patientID,
		DoctorID:  &doctorID,
		Symptoms:  symptoms,
		Severity:  severity,
		Status:    StatusOpen,
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, v); err != nil {
			return fmt.Errorf("create visit: %w", err)
		}
		if w == nil {
			return nil
		}
		return s.apply(ctx, v, doctorID, w)
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return s.withDetails(ctx, v)
}

// GetForPatient returns the patient's own visit. Other visits are NotFound.
func (s *Service) GetForPatient(ctx context.Context, patientID, visitID uuid.UUID) (*Visit, error) {
	v, err := s.load(ctx, visitID, false)
	if err != nil {
		return nil, err
	}
	if v.PatientID != patientID {
		return nil, apperr.NotFound("Visit")
	}
	return s.withDetails(ctx, v)
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) (pagination.Page[*Visit], error) {
	return s.list(ctx, ListFilter{PatientID: &patientID}, p)
}

// GetForDoctor returns a visit the doctor holds or one still waiting for a
// doctor.
func (s *Service) GetForDoctor(ctx context.Context, doctorID, visitID uuid.UUID) (*Visit, error) {
	v, err := s.load(ctx, visitID, false)
	if err != nil {
		return nil, err
	}
	if v.DoctorID != nil && *v.DoctorID != doctorID {
		return nil, apperr.NotFound("Visit")
	}
	return s.withDetails(ctx, v)
}

func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID, status string, p pagination.Params) (pagination.Page[*Visit], error) {
	f := ListFilter{DoctorID: &doctorID}
	if status != "" {
		if _, ok := statusRank[status]; !ok {
			return pagination.Page[*Visit]{}, apperr.Validation("invalid status filter %q", status)
		}
		f.Statuses = []string{status}
	}
	return s.list(ctx, f, p)
}

// ListOpen returns the triage queue: open visits no doctor has taken.
func (s *Service) ListOpen(ctx context.Context, p pagination.Params) (pagination.Page[*Visit], error) {
	return s.list(ctx, ListFilter{Unassigned: true, Statuses: []string{StatusOpen}}, p)
}

func (s *Service) list(ctx context.Context, f ListFilter, p pagination.Params) (pagination.Page[*Visit], error) {
	visits, total, err := s.repo.List(ctx, f, p)
	if err != nil {
		return pagination.Page[*Visit]{}, apperr.Internal(fmt.Errorf("list visits: %w", err))
	}
	if err := s.attachDetails(ctx, visits); err != nil {
		return pagination.Page[*Visit]{}, err
	}
	return pagination.NewPage(visits, total, p), nil
}

// History returns every visit of the patient, newest first, with
// prescriptions and lab tests.
func (s *Service) History(ctx context.Context, patientID uuid.UUID) ([]*Visit, error) {
	page, err := s.list(ctx, ListFilter{PatientID: &patientID}, pagination.Params{Limit: historyLimit})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// Summary counts the patient's visits by status and returns the latest one.
func (s *Service) Summary(ctx context.Context, patientID uuid.UUID) (*Summary, error) {
	st, err := s.repo.PatientStats(ctx, patientID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("visit stats: %w", err))
	}
	sum := &Summary{
		OpenVisits:       st.ByStatus[StatusOpen],
		InProgressVisits: st.ByStatus[StatusInProgress],
		CompletedVisits:  st.ByStatus[StatusCompleted],
		DoctorsConsulted: st.DoctorsConsulted,
	}
	sum.TotalVisits = sum.OpenVisits + sum.InProgressVisits + sum.CompletedVisits

	latest, err := s.list(ctx, ListFilter{PatientID: &patientID}, pagination.Params{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(latest.Items) > 0 {
		sum.LatestVisit = latest.Items[0]
	}
	return sum, nil
}

// Prescriptions returns every prescription written for the patient.
func (s *Service) Prescriptions(ctx context.Context, patientID uuid.UUID) ([]*Prescription, error) {
	visits, _, err := s.repo.List(ctx, ListFilter{PatientID: &patientID}, pagination.Params{Limit: historyLimit})
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list visits: %w", err))
	}
	rx, err := s.repo.ListPrescriptions(ctx, visitIDs(visits))
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list prescriptions: %w", err))
	}
	if rx == nil {
		rx = []*Prescription{}
	}
	return rx, nil
}

// DoctorPatients lists the distinct patients the doctor has visits with.
func (s *Service) DoctorPatients(ctx context.Context, doctorID uuid.UUID) ([]*DoctorPatient, error) {
	patients, err := s.repo.ListDoctorPatients(ctx, doctorID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list doctor patients: %w", err))
	}
	if patients == nil {
		patients = []*DoctorPatient{}
	}
	return patients, nil
}

// DoctorTimeline returns a patient's full history to a doctor who has
// treated them.
func (s *Service) DoctorTimeline(ctx context.Context, doctorID, patientID uuid.UUID) (*Timeline, error) {
	if err := s.requirePatientAccess(ctx, doctorID, patientID); err != nil {
		return nil, err
	}
	profile, err := s.patients.GetProfile(ctx, patientID)
	if err != nil {
		return nil, err
	}
	sum, err := s.Summary(ctx, patientID)
	if err != nil {
		return nil, err
	}
	visits, err := s.History(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return &Timeline{Patient: profile, Summary: sum, Visits: visits}, nil
}

func (s *Service) DoctorDashboard(ctx context.Context, doctorID uuid.UUID) (*DoctorDashboard, error) {
	patients, err := s.DoctorPatients(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	_, total, err := s.repo.List(ctx, ListFilter{DoctorID: &doctorID}, pagination.Params{Limit: 1})
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("count visits: %w", err))
	}
	_, pool, err := s.repo.List(ctx, ListFilter{Unassigned: true, Statuses: []string{StatusOpen}}, pagination.Params{Limit: 1})
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("count open visits: %w", err))
	}
	active, err := s.list(ctx, ListFilter{DoctorID: &doctorID, Statuses: []string{StatusInProgress}},
		pagination.Params{Limit: pagination.DefaultLimit})
	if err != nil {
		return nil, err
	}
	return &DoctorDashboard{
		TotalPatients:    len(patients),
		TotalVisits:      total,
		OpenPool:         pool,
		InProgressVisits: active.Items,
	}, nil
}

func (s *Service) requirePatientAccess(ctx context.Context, doctorID, patientID uuid.UUID) error {
	ok, err := s.repo.HasDoctorPatient(ctx, doctorID, patientID)
	if err != nil {
		return apperr.Internal(fmt.Errorf("check doctor access: %w", err))
	}
	if !ok {
		return apperr.Forbidden("Access denied. You must have at least one visit with this patient.")
	}
	return nil
}

// ListMessages returns the visit thread to its patient or assigned doctor.
func (s *Service) ListMessages(ctx context.Context, caller auth.Identity, visitID uuid.UUID) ([]*Message, error) {
	if _, err := s.participantVisit(ctx, caller, visitID); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, visitID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list messages: %w", err))
	}
	if msgs == nil {
		msgs = []*Message{}
	}
	return msgs, nil
}

func (s *Service) PostMessage(ctx context.Context, caller auth.Identity, visitID uuid.UUID, req MessageRequest) (*Message, error) {
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, apperr.Validation("message cannot be empty")
	}
	if len([]rune(body)) > maxMessageLen {
		return nil, apperr.Validation("message must be at most %d characters", maxMessageLen)
	}
	if _, err := s.participantVisit(ctx, caller, visitID); err != nil {
		return nil, err
	}
	m := &Message{
		ID:         uuid.New(),
		VisitID:    visitID,
		SenderID:   caller.UserID,
		SenderRole: caller.Role,
		Body:       body,
	}
	if err := s.repo.AddMessage(ctx, m); err != nil {
		return nil, apperr.Internal(fmt.Errorf("add message: %w", err))
	}
	return m, nil
}

func (s *Service) participantVisit(ctx context.Context, caller auth.Identity, visitID uuid.UUID) (*Visit, error) {
	v, err := s.load(ctx, visitID, false)
	if err != nil {
		return nil, err
	}
	switch caller.Role {
	case auth.RolePatient:
		if v.PatientID == caller.UserID {
			return v, nil
		}
	case auth.RoleDoctor:
		if v.AssignedTo(caller.UserID) {
			return v, nil
		}
	}
	return nil, apperr.NotFound("Visit")
}

// AssignDoctor hands an unclaimed, open visit to an active doctor. A visit
// already held by another doctor is a Conflict; assigning the current holder
// again is a no-op.
func (s *Service) AssignDoctor(ctx context.Context, visitID uuid.UUID, doctor *identity.User) error {
	if doctor == nil || doctor.Role != auth.RoleDoctor {
		return apperr.Validation("assignee must be a doctor")
	}
	if !doctor.IsActive {
		return apperr.Validation("doctor %s is not active", doctor.ID)
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		v, err := s.load(ctx, visitID, true)
		if err != nil {
			return err
		}
		if v.AssignedTo(doctor.ID) {
			return nil
		}
		if v.DoctorID != nil {
			return apperr.Conflict(fmt.Sprintf("Visit is already assigned to doctor %s", *v.DoctorID))
		}
		if v.Status == StatusCompleted {
			return apperr.InvalidState("visit", "assign", v.Status)
		}
		ok, err := s.repo.Claim(ctx, v.ID, doctor.ID)
		if err != nil {
			return fmt.Errorf("claim visit: %w", err)
		}
		if !ok {
			return apperr.Conflict("Visit is already assigned")
		}
		return nil
	})
	if err != nil {
		return apperr.Wrap(err)
	}
	s.logger.Info().Str("visit_id", visitID.String()).Str("doctor_id", doctor.ID.String()).Msg("visit assigned")
	return nil
}

// PurgePatient deletes every visit of a patient with all their children.
// Stored report files are removed once the rows are gone.
func (s *Service) PurgePatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	var keys []string
	if s.labs != nil {
		var err error
		if keys, err = s.labs.ReportKeysForPatient(ctx, patientID); err != nil {
			return 0, err
		}
	}
	var n int64
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.repo.DeleteByPatient(ctx, patientID)
		return err
	})
	if err != nil {
		return 0, apperr.Internal(fmt.Errorf("purge visits: %w", err))
	}
	s.logger.Warn().Str("patient_id", patientID.String()).Int64("visits", n).Msg("patient visits purged")
	if len(keys) > 0 {
		if err := s.labs.DeleteReportFiles(ctx, keys); err != nil {
			s.logger.Error().Err(err).Str("patient_id", patientID.String()).Msg("failed to remove report files")
		}
	}
	return n, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID, forUpdate bool) (*Visit, error) {
	get := s.repo.Get
	if forUpdate {
		get = s.repo.GetForUpdate
	}
	v, err := get(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("Visit")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("get visit: %w", err))
	}
	return v, nil
}

func (s *Service) withDetails(ctx context.Context, v *Visit) (*Visit, error) {
	fresh, err := s.load(ctx, v.ID, false)
	if err != nil {
		return nil, err
	}
	if err := s.attachDetails(ctx, []*Visit{fresh}); err != nil {
		return nil, err
	}
	return fresh, nil
}

// attachDetails loads entries, prescriptions and lab tests for visits and
// renders diagnosis and notes.
func (s *Service) attachDetails(ctx context.Context, visits []*Visit) error {
	if len(visits) == 0 {
		return nil
	}
	ids := visitIDs(visits)
	byID := make(map[uuid.UUID]*Visit, len(visits))
	for _, v := range visits {
		v.Entries = []*Entry{}
		v.Prescriptions = []*Prescription{}
		v.LabTests = []*labtest.LabTest{}
		byID[v.ID] = v
	}

	entries, err := s.repo.ListEntries(ctx, ids)
	if err != nil {
		return apperr.Internal(fmt.Errorf("list visit entries: %w", err))
	}
	for _, e := range entries {
		if v, ok := byID[e.VisitID]; ok {
			v.Entries = append(v.Entries, e)
		}
	}

	rx, err := s.repo.ListPrescriptions(ctx, ids)
	if err != nil {
		return apperr.Internal(fmt.Errorf("list prescriptions: %w", err))
	}
	for _, p := range rx {
		if v, ok := byID[p.VisitID]; ok {
			v.Prescriptions = append(v.Prescriptions, p)
		}
	}

	tests, err := s.labs.ListByVisits(ctx, ids)
	if err != nil {
		return err
	}
	for _, t := range tests {
		if v, ok := byID[t.VisitID]; ok {
			v.LabTests = append(v.LabTests, t)
		}
	}

	for _, v := range visits {
		v.Diagnosis = render(v.Entries, FieldDiagnosis)
		v.Notes = render(v.Entries, FieldNotes)
	}
	return nil
}

func severityOrDefault(sev *string) (string, error) {
	s := strings.ToLower(trim(sev))
	if s == "" {
		return SeverityMedium, nil
	}
	if !validSeverities[s] {
		return "", apperr.Validation("Invalid severity. Must be low, medium, high, or critical")
	}
	return s, nil
}

func visitIDs(visits []*Visit) []uuid.UUID {
	ids := make([]uuid.UUID, len(visits))
	for i, v := range visits {
		ids[i] = v.ID
	}
	return ids
}

func trim(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
