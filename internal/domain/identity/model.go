package identity

import (
	"time"

	"github.com/google/uuid"
)

// User maps to the users table.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PhoneNumber  string    `db:"phone_number" json:"phone_number"`
	Email        *string   `db:"email" json:"email,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	FullName     string    `db:"full_name" json:"full_name"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// PatientProfile maps to the patient_profiles table. One row per patient user.
type PatientProfile struct {
	UserID                uuid.UUID  `db:"user_id" json:"user_id"`
	DateOfBirth           *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender                *string    `db:"gender" json:"gender,omitempty"`
	BloodGroup            *string    `db:"blood_group" json:"blood_group,omitempty"`
	Address               *string    `db:"address" json:"address,omitempty"`
	Village               *string    `db:"village" json:"village,omitempty"`
	District              *string    `db:"district" json:"district,omitempty"`
	State                 *string    `db:"state" json:"state,omitempty"`
	Pincode               *string    `db:"pincode" json:"pincode,omitempty"`
	EmergencyContactName  *string    `db:"emergency_contact_name" json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string    `db:"emergency_contact_phone" json:"emergency_contact_phone,omitempty"`
	Allergies             *string    `db:"allergies" json:"allergies,omitempty"`
	ChronicConditions     *string    `db:"chronic_conditions" json:"chronic_conditions,omitempty"`
	CurrentMedications    *string    `db:"current_medications" json:"current_medications,omitempty"`
	MedicalHistory        *string    `db:"medical_history" json:"medical_history,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// Age returns the patient's age in whole years at now, or nil when the date
// of birth is unknown.
func (p *PatientProfile) Age(now time.Time) *int {
	if p.DateOfBirth == nil {
		return nil
	}
	dob := p.DateOfBirth.UTC()
	now = now.UTC()
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return &years
}

type RegisterRequest struct {
	PhoneNumber string  `json:"phone_number"`
	Password    string  `json:"password"`
	Role        string  `json:"role"`
	FullName    string  `json:"full_name"`
	Email       *string `json:"email,omitempty"`
}

type LoginRequest struct {
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User      *User     `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are left
// unchanged; an empty string clears a field.
type ProfileUpdate struct {
	FullName              *string `json:"full_name,omitempty"`
	Email                 *string `json:"email,omitempty"`
	DateOfBirth           *string `json:"date_of_birth,omitempty"`
	Gender                *string `json:"gender,omitempty"`
	BloodGroup            *string `json:"blood_group,omitempty"`
	Address               *string `json:"address,omitempty"`
	Village               *string `json:"village,omitempty"`
	District              *string `json:"district,omitempty"`
	State                 *string `json:"state,omitempty"`
	Pincode               *string `json:"pincode,omitempty"`
	EmergencyContactName  *string `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string `json:"emergency_contact_phone,omitempty"`
	Allergies             *string `json:"allergies,omitempty"`
	ChronicConditions     *string `json:"chronic_conditions,omitempty"`
	CurrentMedications    *string `json:"current_medications,omitempty"`
	MedicalHistory        *string `json:"medical_history,omitempty"`
}

// ProfileView is a patient profile joined with its user.
type ProfileView struct {
	User    *User           `json:"user"`
	Profile *PatientProfile `json:"profile"`
	Age     *int            `json:"age,omitempty"`
}

// DoctorSummary is the public view of a doctor for booking.
type DoctorSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Phone string    `json:"phone"`
	Email *string   `json:"email,omitempty"`
}
