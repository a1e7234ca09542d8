package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/apperr"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/auth"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/db"
)

var (
	phonePattern   = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	pincodePattern = regexp.MustCompile(`^[0-9]{6}$`)
)

var validBloodGroups = map[string]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}

var validGenders = map[string]bool{
	"male":   true,
	"female": true,
	"other":  true,
}

type Service struct {
	repo     Repository
	tx       db.Transactor
	sessions *auth.Sessions
	now      func() time.Time
}

func NewService(repo Repository, tx db.Transactor, sessions *auth.Sessions) *Service {
	return &Service{repo: repo, tx: tx, sessions: sessions, now: time.Now}
}

// Register signs up a patient, doctor or lab user. Patients get an empty
// profile in the same transaction.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if !auth.SelfRegisterable(req.Role) {
		return nil, apperr.Validation("Invalid role. Must be patient, doctor, or lab")
	}
	return s.createUser(ctx, req)
}

// Provision creates a user of any role, including admin. Used by the CLI.
func (s *Service) Provision(ctx context.Context, req RegisterRequest) (*User, error) {
	switch req.Role {
	case auth.RolePatient, auth.RoleDoctor, auth.RoleLab, auth.RoleAdmin:
	default:
		return nil, apperr.Validation("invalid role %q", req.Role)
	}
	return s.createUser(ctx, req)
}

func (s *Service) createUser(ctx context.Context, req RegisterRequest) (*User, error) {
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.FullName = strings.TrimSpace(req.FullName)
	for _, f := range [][2]string{
		{"phone_number", req.PhoneNumber},
		{"password", req.Password},
		{"full_name", req.FullName},
	} {
		if f[1] == "" {
			return nil, apperr.Validation("Missing required field: %s", f[0])
		}
	}
	if !phonePattern.MatchString(req.PhoneNumber) {
		return nil, apperr.Validation("phone_number must be 10 to 15 digits")
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		return nil, apperr.Validation("Password must be at least %d characters", auth.MinPasswordLength)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	u := &User{
		ID:           uuid.New(),
		PhoneNumber:  req.PhoneNumber,
		Email:        email,
		PasswordHash: hash,
		Role:         req.Role,
		FullName:     req.FullName,
		IsActive:     true,
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetUserByPhone(ctx, u.PhoneNumber); err == nil {
			return apperr.Conflict("Phone number already registered")
		} else if !errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("lookup phone: %w", err)
		}
		if email != nil {
			if _, err := s.repo.GetUserByEmail(ctx, *email); err == nil {
				return apperr.Conflict("Email already registered")
			} else if !errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("lookup email: %w", err)
			}
		}

		if err := s.repo.CreateUser(ctx, u); err != nil {
			if apperr.IsUniqueViolation(err) {
				return apperr.Conflict("Phone number or email already registered")
			}
			return fmt.Errorf("create user: %w", err)
		}
		if u.Role == auth.RolePatient {
			if err := s.repo.CreateProfile(ctx, &PatientProfile{UserID: u.ID}); err != nil {
				return fmt.Errorf("create patient profile: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return u, nil
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	phone := strings.TrimSpace(req.PhoneNumber)
	if phone == "" || req.Password == "" {
		return nil, apperr.Validation("Phone number and password are required")
	}

	u, err := s.repo.GetUserByPhone(ctx, phone)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.Unauthenticated("Invalid phone number or password")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("lookup user: %w", err))
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		return nil, apperr.Unauthenticated("Invalid phone number or password")
	}
	if !u.IsActive {
		return nil, apperr.Forbidden("Account is inactive. Please contact support")
	}

	token, claims, err := s.sessions.Issue(u.ID, u.Role)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &LoginResult{User: u, Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Logout revokes the caller's session.
func (s *Service) Logout(ctx context.Context, id auth.Identity) error {
	if err := s.sessions.Revoke(ctx, id); err != nil {
		return apperr.Internal(fmt.Errorf("revoke session: %w", err))
	}
	return nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("User")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("get user: %w", err))
	}
	return u, nil
}

// ListDoctors returns the active doctors patients can book with.
func (s *Service) ListDoctors(ctx context.Context) ([]DoctorSummary, error) {
	users, err := s.repo.ListByRole(ctx, auth.RoleDoctor, true)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list doctors: %w", err))
	}
	out := make([]DoctorSummary, 0, len(users))
	for _, u := range users {
		out = append(out, DoctorSummary{ID: u.ID, Name: u.FullName, Phone: u.PhoneNumber, Email: u.Email})
	}
	return out, nil
}

// GetProfile returns the patient's profile with their user record.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*ProfileView, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("Patient profile")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("get profile: %w", err))
	}
	return &ProfileView{User: u, Profile: p, Age: p.Age(s.now())}, nil
}

// UpdateProfile applies the non-nil fields of upd to the patient's profile
// and user record.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, upd ProfileUpdate) (*ProfileView, error) {
	var view *ProfileView
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		v, err := s.GetProfile(ctx, userID)
		if err != nil {
			return err
		}
		if err := applyUserUpdate(v.User, upd); err != nil {
			return err
		}
		if err := applyProfileUpdate(v.Profile, upd, s.now()); err != nil {
			return err
		}

		if upd.FullName != nil || upd.Email != nil {
			if v.User.Email != nil {
				other, err := s.repo.GetUserByEmail(ctx, *v.User.Email)
				if err == nil && other.ID != v.User.ID {
					return apperr.Conflict("Email already registered")
				}
				if err != nil && !errors.Is(err, db.ErrNotFound) {
					return fmt.Errorf("lookup email: %w", err)
				}
			}
			if err := s.repo.UpdateUser(ctx, v.User); err != nil {
				if apperr.IsUniqueViolation(err) {
					return apperr.Conflict("Email already registered")
				}
				return fmt.Errorf("update user: %w", err)
			}
		}
		if err := s.repo.UpdateProfile(ctx, v.Profile); err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		v.Age = v.Profile.Age(s.now())
		view = v
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return view, nil
}

func applyUserUpdate(u *User, upd ProfileUpdate) error {
	if upd.FullName != nil {
		name := strings.TrimSpace(*upd.FullName)
		if name == "" {
			return apperr.Validation("full_name cannot be empty")
		}
		u.FullName = name
	}
	if upd.Email != nil {
		email, err := normalizeEmail(upd.Email)
		if err != nil {
			return err
		}
		u.Email = email
	}
	return nil
}

func applyProfileUpdate(p *PatientProfile, upd ProfileUpdate, now time.Time) error {
	if upd.DateOfBirth != nil {
		if strings.TrimSpace(*upd.DateOfBirth) == "" {
			p.DateOfBirth = nil
		} else {
			dob, err := time.Parse("2006-01-02", strings.TrimSpace(*upd.DateOfBirth))
			if err != nil {
				return apperr.Validation("date_of_birth must be YYYY-MM-DD")
			}
			if dob.After(now) {
				return apperr.Validation("date_of_birth cannot be in the future")
			}
			p.DateOfBirth = &dob
		}
	}
	if upd.Gender != nil {
		g := strings.ToLower(strings.TrimSpace(*upd.Gender))
		if g != "" && !validGenders[g] {
			return apperr.Validation("gender must be male, female or other")
		}
		p.Gender = optional(g)
	}
	if upd.BloodGroup != nil {
		bg := strings.ToUpper(strings.TrimSpace(*upd.BloodGroup))
		if bg != "" && !validBloodGroups[bg] {
			return apperr.Validation("invalid blood_group %q", bg)
		}
		p.BloodGroup = optional(bg)
	}
	if upd.Pincode != nil {
		pc := strings.TrimSpace(*upd.Pincode)
		if pc != "" && !pincodePattern.MatchString(pc) {
			return apperr.Validation("pincode must be 6 digits")
		}
		p.Pincode = optional(pc)
	}
	if upd.EmergencyContactPhone != nil {
		ph := strings.TrimSpace(*upd.EmergencyContactPhone)
		if ph != "" && !phonePattern.MatchString(ph) {
			return apperr.Validation("emergency_contact_phone must be 10 to 15 digits")
		}
		p.EmergencyContactPhone = optional(ph)
	}

	text := []struct {
		src *string
		dst **string
	}{
		{upd.Address, &p.Address},
		{upd.Village, &p.Village},
		{upd.District, &p.District},
		{upd.State, &p.State},
		{upd.EmergencyContactName, &p.EmergencyContactName},
		{upd.Allergies, &p.Allergies},
		{upd.ChronicConditions, &p.ChronicConditions},
		{upd.CurrentMedications, &p.CurrentMedications},
		{upd.MedicalHistory, &p.MedicalHistory},
	}
	for _, f := range text {
		if f.src != nil {
			*f.dst = optional(strings.TrimSpace(*f.src))
		}
	}
	return nil
}

func normalizeEmail(email *string) (*string, error) {
	if email == nil {
		return nil, nil
	}
	e := strings.ToLower(strings.TrimSpace(*email))
	if e == "" {
		return nil, nil
	}
	if at := strings.Index(e, "@"); at < 1 || at == len(e)-1 || strings.Contains(e, " ") {
		return nil, apperr.Validation("invalid email address")
	}
	return &e, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
