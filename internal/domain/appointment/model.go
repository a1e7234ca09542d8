package appointment

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

var validStatuses = map[string]bool{
	StatusScheduled: true,
	StatusCompleted: true,
	StatusCancelled: true,
	StatusNoShow:    true,
}

// Meeting states of the video consultation attached to an appointment.
const (
	MeetingNotStarted = "not_started"
	MeetingLive       = "live"
	MeetingEnded      = "ended"
)

var validMeetingStatuses = map[string]bool{
	MeetingNotStarted: true,
	MeetingLive:       true,
	MeetingEnded:      true,
}

const (
	DefaultDuration = 30
	minDuration     = 5
	maxDuration     = 240

	defaultInstantReason = "Instant consultation"
)

// Event types pushed to the patient.
const (
	EventMeetingStarted = "meeting_started"
	EventMeetingEnded   = "meeting_ended"
)

// Appointment is a booked consultation between a patient and a doctor. Its
// id doubles as the signaling room id of the video meeting.
type Appointment struct {
	ID               uuid.UUID  `json:"id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	DoctorID         uuid.UUID  `json:"doctor_id"`
	AppointmentDate  time.Time  `json:"appointment_date"`
	DurationMinutes  int        `json:"duration_minutes"`
	Reason           *string    `json:"reason"`
	Status           string     `json:"status"`
	MeetingStatus    string     `json:"meeting_status"`
	MeetingStartedAt *time.Time `json:"meeting_started_at"`
	MeetingEndedAt   *time.Time `json:"meeting_ended_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Participant reports whether userID is the patient or the doctor.
func (a *Appointment) Participant(userID uuid.UUID) bool {
	return a.PatientID == userID || a.DoctorID == userID
}

// RoomID is the signaling room of the appointment's meeting.
func (a *Appointment) RoomID() string {
	return a.ID.String()
}

type BookRequest struct {
	DoctorID        uuid.UUID `json:"doctor_id"`
	AppointmentDate string    `json:"appointment_date"`
	DurationMinutes *int      `json:"duration_minutes"`
	Reason          *string   `json:"reason"`
}

type InstantRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	Reason    *string   `json:"reason"`
}

// ListQuery holds the caller-supplied list filters.
type ListQuery struct {
	Status        string
	MeetingStatus string
	Upcoming      bool
}

// ListFilter narrows List. From restricts to appointments dated at or after it.
type ListFilter struct {
	PatientID     *uuid.UUID
	DoctorID      *uuid.UUID
	Status        string
	MeetingStatus string
	From          *time.Time
}

// MeetingState tells a participant whether they can enter the video room.
type MeetingState struct {
	AppointmentID uuid.UUID    `json:"appointment_id"`
	RoomID        string       `json:"room_id"`
	MeetingStatus string       `json:"meeting_status"`
	CanJoin       bool         `json:"can_join"`
	Message       string       `json:"message"`
	Appointment   *Appointment `json:"appointment"`
}

// MeetingEvent is the payload pushed to the patient when the doctor starts
// or ends the meeting.
type MeetingEvent struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	RoomID        string    `json:"room_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	MeetingStatus string    `json:"meeting_status"`
}
