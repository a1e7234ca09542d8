package visit

import (
	"context"
	"fmt"

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

const visitCols = `id, patient_id, doctor_id, symptoms, ai_summary, severity, status, created_at, updated_at, completed_at`

var visitColumns = []interface{}{
	"id", "patient_id", "doctor_id", "symptoms", "ai_summary", "severity", "status",
	"created_at", "updated_at", "completed_at",
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.PatientID, &v.DoctorID, &v.Symptoms, &v.AISummary, &v.Severity,
		&v.Status, &v.CreatedAt, &v.UpdatedAt, &v.CompletedAt)
	if err != nil {
		return nil, db.MapNoRows(err)
	}
	return &v, nil
}

func (r *repoPG) Create(ctx context.Context, v *Visit) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO visits (id, patient_id, doctor_id, symptoms, ai_summary, severity, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		v.ID, v.PatientID, v.DoctorID, v.Symptoms, v.AISummary, v.Severity, v.Status,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visits WHERE id = $1`, id))
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visits WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) Claim(ctx context.Context, id, doctorID uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE visits SET doctor_id = $2, updated_at = NOW()
		WHERE id = $1 AND doctor_id IS NULL`, id, doctorID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) UpdateState(ctx context.Context, v *Visit) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE visits SET severity = $2, status = $3, completed_at = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		v.ID, v.Severity, v.Status, v.CompletedAt,
	).Scan(&v.UpdatedAt)
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
	if f.Unassigned {
		where = append(where, goqu.C("doctor_id").IsNull())
	}
	if len(f.Statuses) > 0 {
		where = append(where, goqu.C("status").In(f.Statuses))
	}
	return where
}

func (r *repoPG) List(ctx context.Context, f ListFilter, p pagination.Params) ([]*Visit, int, error) {
	where := filterExpressions(f)

	countSQL, countArgs, err := dialect.From("visits").Select(goqu.COUNT("*")).
		Where(where...).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	ds := dialect.From("visits").Select(visitColumns...).Where(where...).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc())
	query, args, err := p.Apply(ds).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var visits []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, 0, err
		}
		visits = append(visits, v)
	}
	return visits, total, rows.Err()
}

func (r *repoPG) PatientStats(ctx context.Context, patientID uuid.UUID) (*Stats, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT status, COUNT(*) FROM visits WHERE patient_id = $1 GROUP BY status`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	st := &Stats{ByStatus: make(map[string]int)}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		st.ByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(DISTINCT doctor_id) FROM visits WHERE patient_id = $1 AND doctor_id IS NOT NULL`,
		patientID).Scan(&st.DoctorsConsulted)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (r *repoPG) HasDoctorPatient(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM visits WHERE doctor_id = $1 AND patient_id = $2)`,
		doctorID, patientID).Scan(&ok)
	return ok, err
}

func (r *repoPG) ListDoctorPatients(ctx context.Context, doctorID uuid.UUID) ([]*DoctorPatient, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT u.id, u.full_name, u.phone_number, COUNT(v.id), MAX(v.created_at)
		FROM visits v JOIN users u ON u.id = v.patient_id
		WHERE v.doctor_id = $1
		GROUP BY u.id, u.full_name, u.phone_number
		ORDER BY MAX(v.created_at) DESC`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DoctorPatient
	for rows.Next() {
		var p DoctorPatient
		if err := rows.Scan(&p.PatientID, &p.FullName, &p.PhoneNumber, &p.TotalVisits, &p.LastVisitAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *repoPG) DeleteByPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM visits WHERE patient_id = $1`, patientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) AddEntry(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO visit_entries (id, visit_id, field, body, author_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		e.ID, e.VisitID, e.Field, e.Body, e.AuthorID,
	).Scan(&e.CreatedAt)
}

// ListEntries returns entries in insertion order.
func (r *repoPG) ListEntries(ctx context.Context, visitIDs []uuid.UUID) ([]*Entry, error) {
	if len(visitIDs) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, visit_id, field, body, author_id, created_at
		FROM visit_entries WHERE visit_id = ANY($1) ORDER BY seq`, visitIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.VisitID, &e.Field, &e.Body, &e.AuthorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *repoPG) AddPrescription(ctx context.Context, p *Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescriptions (id, visit_id, medication_name, dosage, frequency, duration, instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		p.ID, p.VisitID, p.MedicationName, p.Dosage, p.Frequency, p.Duration, p.Instructions,
	).Scan(&p.CreatedAt)
}

func (r *repoPG) ListPrescriptions(ctx context.Context, visitIDs []uuid.UUID) ([]*Prescription, error) {
	if len(visitIDs) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, visit_id, medication_name, dosage, frequency, duration, instructions, created_at
		FROM prescriptions WHERE visit_id = ANY($1) ORDER BY created_at DESC`, visitIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Prescription
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.ID, &p.VisitID, &p.MedicationName, &p.Dosage, &p.Frequency,
			&p.Duration, &p.Instructions, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *repoPG) AddMessage(ctx context.Context, m *Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO messages (id, visit_id, sender_id, sender_role, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		m.ID, m.VisitID, m.SenderID, m.SenderRole, m.Body,
	).Scan(&m.CreatedAt)
}

func (r *repoPG) ListMessages(ctx context.Context, visitID uuid.UUID) ([]*Message, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, visit_id, sender_id, sender_role, body, created_at
		FROM messages WHERE visit_id = $1 ORDER BY seq`, visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.VisitID, &m.SenderID, &m.SenderRole, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
