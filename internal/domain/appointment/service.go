package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/varad2005/AI-IS13-HealthNova/internal/domain/identity"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/apperr"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/auth"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/db"
	"github.com/varad2005/AI-IS13-HealthNova/pkg/pagination"
)

// pastTolerance absorbs clock skew between the browser and the server when
// booking for "now".
const pastTolerance = time.Minute

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// Directory resolves users. identity.Service satisfies it.
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

// Notifier pushes real-time events to a user's open connections.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, eventType string, payload interface{}) error
}

// RoomCloser drops the signaling room of an ended meeting.
type RoomCloser interface {
	CloseRoom(roomID string) int
}

type Service struct {
	repo     Repository
	tx       db.Transactor
	users    Directory
	notifier Notifier
	rooms    RoomCloser
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, tx db.Transactor, users Directory, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		users:    users,
		notifier: notifier,
		logger:   logger.With().Str("component", "appointment").Logger(),
		now:      time.Now,
	}
}

// SetRoomCloser registers the relay whose rooms close with their meeting.
// The relay gates joins through this service, so it is attached after both
// exist.
func (s *Service) SetRoomCloser(rooms RoomCloser) {
	s.rooms = rooms
}

// Book schedules an appointment for the patient with an active doctor.
func (s *Service) Book(ctx context.Context, patientID uuid.UUID, req BookRequest) (*Appointment, error) {
	if req.DoctorID == uuid.Nil {
		return nil, apperr.Validation("doctor_id is required")
	}
	raw := strings.TrimSpace(req.AppointmentDate)
	if raw == "" {
		return nil, apperr.Validation("appointment_date is required")
	}
	date, err := parseDate(raw)
	if err != nil {
		return nil, apperr.Validation("Invalid appointment_date format. Use ISO format")
	}
	if date.Before(s.now().Add(-pastTolerance)) {
		return nil, apperr.Validation("appointment_date cannot be in the past")
	}
	duration := DefaultDuration
	if req.DurationMinutes != nil {
		duration = *req.DurationMinutes
	}
	if duration < minDuration || duration > maxDuration {
		return nil, apperr.Validation("duration_minutes must be between %d and %d", minDuration, maxDuration)
	}
	if err := s.requireUser(ctx, req.DoctorID, auth.RoleDoctor, "Doctor"); err != nil {
		return nil, err
	}

	a := &Appointment{
		ID:              uuid.New(),
		PatientID:       patientID,
		DoctorID:        req.DoctorID,
		AppointmentDate: date.UTC(),
		DurationMinutes: duration,
		Reason:          trimmed(req.Reason),
		Status:          StatusScheduled,
		MeetingStatus:   MeetingNotStarted,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, apperr.Internal(fmt.Errorf("create appointment: %w", err))
	}
	s.logger.Info().Str("appointment_id", a.ID.String()).Msg("appointment booked")
	return a, nil
}

// CreateInstant opens an appointment dated now so the doctor can start a
// meeting straight away. A meeting already live between the pair is reused
// and created is false.
func (s *Service) CreateInstant(ctx context.Context, doctorID uuid.UUID, req InstantRequest) (a *Appointment, created bool, err error) {
	if req.PatientID == uuid.Nil {
		return nil, false, apperr.Validation("Patient ID is required")
	}
	if err := s.requireUser(ctx, req.PatientID, auth.RolePatient, "Patient"); err != nil {
		return nil, false, err
	}

	live, err := s.repo.FindLive(ctx, req.PatientID, doctorID)
	if err == nil {
		return live, false, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, false, apperr.Internal(fmt.Errorf("find live appointment: %w", err))
	}

	reason := trimmed(req.Reason)
	if reason == nil {
		r := defaultInstantReason
		reason = &r
	}
	a = &Appointment{
		ID:              uuid.New(),
		PatientID:       req.PatientID,
		DoctorID:        doctorID,
		AppointmentDate: s.now().UTC(),
		DurationMinutes: DefaultDuration,
		Reason:          reason,
		Status:          StatusScheduled,
		MeetingStatus:   MeetingNotStarted,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, false, apperr.Internal(fmt.Errorf("create appointment: %w", err))
	}
	return a, true, nil
}

func (s *Service) requireUser(ctx context.Context, id uuid.UUID, role, entity string) error {
	u, err := s.users.GetUser(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.NotFound(entity)
	}
	if err != nil {
		return apperr.Wrap(err)
	}
	if u.Role != role || !u.IsActive {
		return apperr.NotFound(entity)
	}
	return nil
}

// ListMine lists the caller's appointments as patient or doctor.
func (s *Service) ListMine(ctx context.Context, caller auth.Identity, q ListQuery, p pagination.Params) (pagination.Page[*Appointment], error) {
	var f ListFilter
	switch caller.Role {
	case auth.RolePatient:
		f.PatientID = &caller.UserID
	case auth.RoleDoctor:
		f.DoctorID = &caller.UserID
	default:
		return pagination.Page[*Appointment]{}, apperr.Forbidden("Invalid user role")
	}
	if q.Status != "" {
		if !validStatuses[q.Status] {
			return pagination.Page[*Appointment]{}, apperr.Validation("invalid status filter %q", q.Status)
		}
		f.Status = q.Status
	}
	if q.MeetingStatus != "" {
		if !validMeetingStatuses[q.MeetingStatus] {
			return pagination.Page[*Appointment]{}, apperr.Validation("invalid meeting_status filter %q", q.MeetingStatus)
		}
		f.MeetingStatus = q.MeetingStatus
	}
	if q.Upcoming {
		now := s.now().UTC()
		f.From = &now
	}

	items, total, err := s.repo.List(ctx, f, p)
	if err != nil {
		return pagination.Page[*Appointment]{}, apperr.Internal(fmt.Errorf("list appointments: %w", err))
	}
	return pagination.NewPage(items, total, p), nil
}

// Get returns an appointment to one of its participants.
func (s *Service) Get(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Appointment, error) {
	a, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if !a.Participant(caller.UserID) {
		return nil, errNotParticipant
	}
	return a, nil
}

var errNotParticipant = apperr.Forbidden("You are not authorized to access this appointment")

// Cancel is open to both participants while the appointment is scheduled
// and its meeting is not live.
func (s *Service) Cancel(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Appointment, error) {
	return s.mutate(ctx, id, func(a *Appointment) error {
		if !a.Participant(caller.UserID) {
			return errNotParticipant
		}
		if a.Status != StatusScheduled {
			return apperr.InvalidState("appointment", "cancel", a.Status)
		}
		if a.MeetingStatus == MeetingLive {
			return apperr.InvalidState("appointment", "cancel", "meeting "+a.MeetingStatus)
		}
		a.Status = StatusCancelled
		return nil
	})
}

func (s *Service) MarkNoShow(ctx context.Context, doctorID, id uuid.UUID) (*Appointment, error) {
	return s.mutate(ctx, id, func(a *Appointment) error {
		if a.DoctorID != doctorID {
			return apperr.Forbidden("You can only update your own appointments")
		}
		if a.Status != StatusScheduled {
			return apperr.InvalidState("appointment", "mark as no-show", a.Status)
		}
		if a.MeetingStatus != MeetingNotStarted {
			return apperr.InvalidState("appointment", "mark as no-show", "meeting "+a.MeetingStatus)
		}
		a.Status = StatusNoShow
		return nil
	})
}

// StartMeeting moves the meeting to live and tells the patient. Starting a
// live meeting returns it unchanged.
func (s *Service) StartMeeting(ctx context.Context, doctorID, id uuid.UUID) (*Appointment, error) {
	started := false
	a, err := s.mutate(ctx, id, func(a *Appointment) error {
		if a.DoctorID != doctorID {
			return apperr.Forbidden("You can only start your own appointments")
		}
		switch a.Status {
		case StatusCancelled, StatusCompleted, StatusNoShow:
			return apperr.InvalidState("meeting", "start", a.Status)
		}
		switch a.MeetingStatus {
		case MeetingLive:
			return nil
		case MeetingEnded:
			return apperr.InvalidState("meeting", "start", a.MeetingStatus)
		}
		now := s.now().UTC()
		a.MeetingStatus = MeetingLive
		a.MeetingStartedAt = &now
		started = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if started {
		s.notify(ctx, a, EventMeetingStarted)
	}
	return a, nil
}

// EndMeeting closes a live meeting and completes the appointment.
func (s *Service) EndMeeting(ctx context.Context, doctorID, id uuid.UUID) (*Appointment, error) {
	a, err := s.mutate(ctx, id, func(a *Appointment) error {
		if a.DoctorID != doctorID {
			return apperr.Forbidden("You can only end your own appointments")
		}
		if a.MeetingStatus != MeetingLive {
			return apperr.InvalidState("meeting", "end", a.MeetingStatus)
		}
		now := s.now().UTC()
		a.MeetingStatus = MeetingEnded
		a.MeetingEndedAt = &now
		a.Status = StatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, a, EventMeetingEnded)
	if s.rooms != nil {
		if n := s.rooms.CloseRoom(a.RoomID()); n > 0 {
			s.logger.Debug().Str("appointment_id", a.ID.String()).Int("peers", n).Msg("signaling room closed")
		}
	}
	return a, nil
}

func (s *Service) notify(ctx context.Context, a *Appointment, event string) {
	if s.notifier == nil {
		return
	}
	payload := MeetingEvent{
		AppointmentID: a.ID,
		RoomID:        a.RoomID(),
		DoctorID:      a.DoctorID,
		MeetingStatus: a.MeetingStatus,
	}
	if err := s.notifier.Notify(ctx, a.PatientID, event, payload); err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Str("event", event).Msg("meeting notification failed")
	}
}

// MeetingStatus tells a participant whether they may enter the room now.
func (s *Service) MeetingStatus(ctx context.Context, caller auth.Identity, id uuid.UUID) (*MeetingState, error) {
	a, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	canJoin, msg := joinState(a.MeetingStatus, caller.Role)
	return &MeetingState{
		AppointmentID: a.ID,
		RoomID:        a.RoomID(),
		MeetingStatus: a.MeetingStatus,
		CanJoin:       canJoin,
		Message:       msg,
		Appointment:   a,
	}, nil
}

func joinState(meetingStatus, role string) (bool, string) {
	switch meetingStatus {
	case MeetingNotStarted:
		if role == auth.RoleDoctor {
			return true, "Click Start Consultation to begin"
		}
		return false, "Waiting for doctor to start consultation..."
	case MeetingLive:
		return true, "Consultation is live - Click to join"
	default:
		return false, "Consultation has ended"
	}
}

// CanJoinRoom gates the signaling relay: roomID must name an appointment
// the user participates in whose meeting they may enter now.
func (s *Service) CanJoinRoom(ctx context.Context, userID uuid.UUID, role, roomID string) error {
	id, err := uuid.Parse(roomID)
	if err != nil {
		return apperr.NotFound("Appointment")
	}
	a, err := s.Get(ctx, auth.Identity{UserID: userID, Role: role}, id)
	if err != nil {
		return err
	}
	if ok, msg := joinState(a.MeetingStatus, role); !ok {
		return apperr.Forbidden(msg)
	}
	return nil
}

// SweepNoShows marks scheduled appointments whose meeting never started
// and that ended more than grace ago as no_show.
func (s *Service) SweepNoShows(ctx context.Context, grace time.Duration) (int64, error) {
	n, err := s.repo.MarkNoShows(ctx, s.now().UTC().Add(-grace))
	if err != nil {
		return 0, fmt.Errorf("mark no-shows: %w", err)
	}
	if n > 0 {
		s.logger.Info().Int64("appointments", n).Msg("no-show sweep")
	}
	return n, nil
}

func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(a *Appointment) error) (*Appointment, error) {
	var out *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.load(ctx, id, true)
		if err != nil {
			return err
		}
		before := *a
		if err := fn(a); err != nil {
			return err
		}
		if a.Status != before.Status || a.MeetingStatus != before.MeetingStatus {
			if err := s.repo.Update(ctx, a); err != nil {
				return fmt.Errorf("update appointment: %w", err)
			}
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID, forUpdate bool) (*Appointment, error) {
	get := s.repo.Get
	if forUpdate {
		get = s.repo.GetForUpdate
	}
	a, err := get(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("Appointment")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("get appointment: %w", err))
	}
	return a, nil
}

func parseDate(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
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
