package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const userCols = `id, phone_number, email, password_hash, role, full_name, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.PhoneNumber, &u.Email, &u.PasswordHash, &u.Role,
		&u.FullName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, db.MapNoRows(err)
	}
	return &u, nil
}

func (r *repoPG) CreateUser(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (id, phone_number, email, password_hash, role, full_name, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		u.ID, u.PhoneNumber, u.Email, u.PasswordHash, u.Role, u.FullName, u.IsActive,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *repoPG) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *repoPG) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE phone_number = $1`, phone))
}

func (r *repoPG) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (r *repoPG) UpdateUser(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET full_name = $2, email = $3, is_active = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		u.ID, u.FullName, u.Email, u.IsActive,
	).Scan(&u.UpdatedAt)
	return db.MapNoRows(err)
}

func (r *repoPG) ListByRole(ctx context.Context, role string, activeOnly bool) ([]*User, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+userCols+` FROM users
		WHERE role = $1 AND (NOT $2 OR is_active)
		ORDER BY full_name`, role, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

const profileCols = `user_id, date_of_birth, gender, blood_group, address, village, district, state, pincode,
	emergency_contact_name, emergency_contact_phone, allergies, chronic_conditions,
	current_medications, medical_history, created_at, updated_at`

func (r *repoPG) CreateProfile(ctx context.Context, p *PatientProfile) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_profiles (user_id) VALUES ($1)
		RETURNING created_at, updated_at`, p.UserID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetProfile(ctx context.Context, userID uuid.UUID) (*PatientProfile, error) {
	var p PatientProfile
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+profileCols+` FROM patient_profiles WHERE user_id = $1`, userID).Scan(
		&p.UserID, &p.DateOfBirth, &p.Gender, &p.BloodGroup, &p.Address, &p.Village, &p.District,
		&p.State, &p.Pincode, &p.EmergencyContactName, &p.EmergencyContactPhone, &p.Allergies,
		&p.ChronicConditions, &p.CurrentMedications, &p.MedicalHistory, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, db.MapNoRows(err)
	}
	return &p, nil
}

func (r *repoPG) UpdateProfile(ctx context.Context, p *PatientProfile) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient_profiles SET
			date_of_birth=$2, gender=$3, blood_group=$4, address=$5, village=$6, district=$7,
			state=$8, pincode=$9, emergency_contact_name=$10, emergency_contact_phone=$11,
			allergies=$12, chronic_conditions=$13, current_medications=$14, medical_history=$15,
			updated_at=NOW()
		WHERE user_id = $1
		RETURNING updated_at`,
		p.UserID, p.DateOfBirth, p.Gender, p.BloodGroup, p.Address, p.Village, p.District,
		p.State, p.Pincode, p.EmergencyContactName, p.EmergencyContactPhone,
		p.Allergies, p.ChronicConditions, p.CurrentMedications, p.MedicalHistory,
	).Scan(&p.UpdatedAt)
	return db.MapNoRows(err)
}
