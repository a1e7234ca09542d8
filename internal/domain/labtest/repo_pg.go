package labtest

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

const testCols = `id, visit_id, patient_id, requested_by, lab_id, test_name, test_type, instructions,
	status, scheduled_time, result, remarks, completed_at, created_at, updated_at`

var testColumns = []interface{}{
	"id", "visit_id", "patient_id", "requested_by", "lab_id", "test_name", "test_type", "instructions",
	"status", "scheduled_time", "result", "remarks", "completed_at", "created_at", "updated_at",
}

func scanTest(row pgx.Row) (*LabTest, error) {
	var t LabTest
	err := row.Scan(&t.ID, &t.VisitID, &t.PatientID, &t.RequestedBy, &t.LabID, &t.TestName,
		&t.TestType, &t.Instructions, &t.Status, &t.ScheduledTime, &t.Result, &t.Remarks,
		&t.CompletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, db.MapNoRows(err)
	}
	return &t, nil
}

func collectTests(rows pgx.Rows) ([]*LabTest, error) {
	defer rows.Close()
	var out []*LabTest
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, t *LabTest) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = StatusRequested
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_tests (id, visit_id, patient_id, requested_by, test_name, test_type, instructions, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		t.ID, t.VisitID, t.PatientID, t.RequestedBy, t.TestName, t.TestType, t.Instructions, t.Status,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	return scanTest(r.conn(ctx).QueryRow(ctx, `SELECT `+testCols+` FROM lab_tests WHERE id = $1`, id))
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	return scanTest(r.conn(ctx).QueryRow(ctx, `SELECT `+testCols+` FROM lab_tests WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) Approve(ctx context.Context, id, labID uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE lab_tests SET status = $3, lab_id = $2, updated_at = $4
		WHERE id = $1 AND status = $5 AND lab_id IS NULL`,
		id, labID, StatusApproved, now, StatusRequested)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) Reject(ctx context.Context, id uuid.UUID, remarks string, now time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE lab_tests SET status = $2, remarks = $3, updated_at = $4
		WHERE id = $1 AND status = $5 AND lab_id IS NULL`,
		id, StatusRejected, remarks, now, StatusRequested)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) Update(ctx context.Context, t *LabTest) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE lab_tests SET
			status = $2, scheduled_time = $3, result = $4, remarks = $5, completed_at = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.Status, t.ScheduledTime, t.Result, t.Remarks, t.CompletedAt,
	).Scan(&t.UpdatedAt)
	return db.MapNoRows(err)
}

func filterExpressions(f ListFilter) []exp.Expression {
	var where []exp.Expression
	if f.LabID != nil {
		where = append(where, goqu.C("lab_id").Eq(f.LabID.String()))
	}
	if f.PatientID != nil {
		where = append(where, goqu.C("patient_id").Eq(f.PatientID.String()))
	}
	if len(f.Statuses) > 0 {
		where = append(where, goqu.C("status").In(f.Statuses))
	}
	return where
}

func (r *repoPG) List(ctx context.Context, f ListFilter, p pagination.Params) ([]*LabTest, int, error) {
	where := filterExpressions(f)

	countSQL, countArgs, err := dialect.From("lab_tests").Select(goqu.COUNT("*")).
		Where(where...).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	ds := dialect.From("lab_tests").Select(testColumns...).Where(where...)
	if f.BySchedule {
		ds = ds.Order(goqu.C("scheduled_time").Asc().NullsLast(), goqu.C("created_at").Asc())
	} else {
		ds = ds.Order(goqu.C("created_at").Desc())
	}
	query, args, err := p.Apply(ds).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	tests, err := collectTests(rows)
	return tests, total, err
}

func (r *repoPG) CountByStatus(ctx context.Context, labID uuid.UUID) (map[string]int, error) {
	query, args, err := dialect.From("lab_tests").
		Select(goqu.C("status"), goqu.COUNT("*")).
		Where(goqu.C("lab_id").Eq(labID.String())).
		GroupBy(goqu.C("status")).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build count query: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *repoPG) ListByVisits(ctx context.Context, visitIDs []uuid.UUID) ([]*LabTest, error) {
	if len(visitIDs) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+testCols+` FROM lab_tests WHERE visit_id = ANY($1) ORDER BY created_at`, visitIDs)
	if err != nil {
		return nil, err
	}
	return collectTests(rows)
}

const reportCols = `id, lab_test_id, uploaded_by, file_name, file_path, content_type, size_bytes, sha256, created_at`

func scanReport(row pgx.Row) (*TestReport, error) {
	var rep TestReport
	err := row.Scan(&rep.ID, &rep.LabTestID, &rep.UploadedBy, &rep.FileName, &rep.FileKey,
		&rep.ContentType, &rep.SizeBytes, &rep.SHA256, &rep.CreatedAt)
	if err != nil {
		return nil, db.MapNoRows(err)
	}
	return &rep, nil
}

func (r *repoPG) AddReport(ctx context.Context, rep *TestReport) error {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO test_reports (id, lab_test_id, uploaded_by, file_name, file_path, content_type, size_bytes, sha256)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		rep.ID, rep.LabTestID, rep.UploadedBy, rep.FileName, rep.FileKey, rep.ContentType, rep.SizeBytes, rep.SHA256,
	).Scan(&rep.CreatedAt)
}

func (r *repoPG) ListReports(ctx context.Context, labTestIDs []uuid.UUID) ([]*TestReport, error) {
	if len(labTestIDs) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+reportCols+` FROM test_reports WHERE lab_test_id = ANY($1) ORDER BY created_at`, labTestIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TestReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (r *repoPG) GetReport(ctx context.Context, id uuid.UUID) (*TestReport, error) {
	return scanReport(r.conn(ctx).QueryRow(ctx, `SELECT `+reportCols+` FROM test_reports WHERE id = $1`, id))
}

func (r *repoPG) ReportKeysByPatient(ctx context.Context, patientID uuid.UUID) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT r.file_path FROM test_reports r
		JOIN lab_tests t ON t.id = r.lab_test_id
		WHERE t.patient_id = $1`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
