package identity

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByPhone(ctx context.Context, phone string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	ListByRole(ctx context.Context, role string, activeOnly bool) ([]*User, error)

	// Patient profiles
	CreateProfile(ctx context.Context, p *PatientProfile) error
	GetProfile(ctx context.Context, userID uuid.UUID) (*PatientProfile, error)
	UpdateProfile(ctx context.Context, p *PatientProfile) error
}
