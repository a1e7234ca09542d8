package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/db"
	"github.com/varad2005/AI-IS13-HealthNova/pkg/pagination"
)

var dialect = goqu.Dialect("postgres")

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

const apptCols = `id, patient_id, doctor_id, appointment_date, duration_minutes, reason, status,
	meeting_status, meeting_started_at, meeting_ended_at, created_at, updated_at`

var apptColumns = []interface{}{
	"id", "patient_id", "doctor_id", "appointment_date", "duration_minutes", "reason", "status",
	"meeting_status", "meeting_started_at", "meeting_ended_at", "created_at", "updated_at",
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.AppointmentDate, &a.DurationMinutes,
		&a.Reason, &a.Status, &a.MeetingStatus, &a.MeetingStartedAt, &a.MeetingEndedAt,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, db.MapNoRows(err)
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_date, duration_minutes, reason, status, meeting_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.AppointmentDate, a.DurationMinutes, a.Reason, a.Status, a.MeetingStatus,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET
			status = $2, meeting_status = $3, meeting_started_at = $4, meeting_ended_at = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.Status, a.MeetingStatus, a.MeetingStartedAt, a.MeetingEndedAt,
	).Scan(&a.UpdatedAt)
	return db.MapNoRows(err)
}

func filterExpressions(f ListFilter) []exp.Expression {
	var where []exp.Expression
	if f.PatientID != nil {
		where = append(where, goqu.C("patient_id").Eq(f.PatientID.String()))
	}
	if f.DoctorID != nil {
		where = append(where, goqu.C("doctor_id").Eq(f.DoctorID.String()))
	}
	if f.Status != "" {
		where = append(where, goqu.C("status").Eq(f.Status))
	}
	if f.MeetingStatus != "" {
		where = append(where, goqu.C("meeting_status").Eq(f.MeetingStatus))
	}
	if f.From != nil {
		where = append(where, goqu.C("appointment_date").Gte(*f.From))
	}
	return where
}

func (r *repoPG) List(ctx context.Context, f ListFilter, p pagination.Params) ([]*Appointment, int, error) {
	where := filterExpressions(f)

	countSQL, countArgs, err := dialect.From("appointments").Select(goqu.COUNT("*")).
		Where(where...).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	ds := dialect.From("appointments").Select(apptColumns...).Where(where...)
	if f.From != nil {
		ds = ds.Order(goqu.C("appointment_date").Asc())
	} else {
		ds = ds.Order(goqu.C("appointment_date").Desc())
	}
	query, args, err := p.Apply(ds).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *repoPG) FindLive(ctx context.Context, patientID, doctorID uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `
		SELECT `+apptCols+` FROM appointments
		WHERE patient_id = $1 AND doctor_id = $2 AND meeting_status = $3
		ORDER BY meeting_started_at DESC
		LIMIT 1`,
		patientID, doctorID, MeetingLive))
}

func (r *repoPG) MarkNoShows(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status = $1, updated_at = NOW()
		WHERE status = $2 AND meeting_status = $3
		  AND appointment_date + duration_minutes * INTERVAL '1 minute' < $4`,
		StatusNoShow, StatusScheduled, MeetingNotStarted, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
