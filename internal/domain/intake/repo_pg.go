package intake

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthie-intake/intake-api/internal/platform/apperr"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Repository backed by PostgreSQL.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn() querier { return r.pool }

const intakeCols = `id, patient_external_id, first_name, last_name, email, date_of_birth, phone,
	schema_version, status, current_step, form_data, created_at, updated_at, last_updated_at, submitted_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec    Record
		status string
		raw    []byte
	)
	err := row.Scan(&rec.ID, &rec.PatientExternalID, &rec.FirstName, &rec.LastName, &rec.Email,
		&rec.DateOfBirth, &rec.Phone, &rec.SchemaVersion, &status, &rec.CurrentStep, &raw,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.LastUpdatedAt, &rec.SubmittedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	if rec.FormData, err = decodeFormData(raw); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *repoPG) collect(ctx context.Context, op, sql string, args ...interface{}) ([]*Record, error) {
	rows, err := r.conn().Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, apperr.Storage(op, err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(op, err)
	}
	return items, nil
}

// The draft lookup, overwrite and fallback insert run as one statement: the
// locked target row is re-checked against status = 'draft' after any
// concurrent writer commits, so neither a racing draft save nor a racing
// submit can be lost. Timestamps use clock_timestamp() because NOW() is fixed
// before the statement waits on the row lock; GREATEST keeps last_updated_at
// from moving backwards. Two first saves for a patient with no draft at all
// both find an empty target and may each insert a row.
const saveDraftSQL = `
WITH target AS (
	SELECT id FROM intakes
	WHERE patient_external_id = $1 AND status = 'draft'
	ORDER BY last_updated_at DESC
	LIMIT 1
	FOR UPDATE
), updated AS (
	UPDATE intakes i SET
		first_name = $2, last_name = $3, email = $4, date_of_birth = $5, phone = $6,
		schema_version = $7, current_step = $8, form_data = $9::jsonb,
		updated_at = clock_timestamp(),
		last_updated_at = GREATEST(i.last_updated_at, clock_timestamp())
	FROM target
	WHERE i.id = target.id AND i.status = 'draft'
	RETURNING i.id, i.last_updated_at
), inserted AS (
	INSERT INTO intakes (id, patient_external_id, first_name, last_name, email, date_of_birth, phone,
		schema_version, status, current_step, form_data, created_at, last_updated_at)
	SELECT $10::uuid, $1, $2, $3, $4, $5, $6, $7, 'draft', $8, $9::jsonb, NOW(), clock_timestamp()
	WHERE NOT EXISTS (SELECT 1 FROM updated)
	RETURNING id, last_updated_at
)
SELECT id, last_updated_at, false FROM updated
UNION ALL
SELECT id, last_updated_at, false FROM inserted`

const submitSQL = `
WITH target AS (
	SELECT id FROM intakes
	WHERE patient_external_id = $1 AND status = 'draft'
	ORDER BY last_updated_at DESC
	LIMIT 1
	FOR UPDATE
), converted AS (
	UPDATE intakes i SET
		first_name = $2, last_name = $3, email = $4, date_of_birth = $5, phone = $6,
		schema_version = $7, current_step = NULL, form_data = $8::jsonb,
		status = 'completed', submitted_at = clock_timestamp(), updated_at = clock_timestamp(),
		last_updated_at = GREATEST(i.last_updated_at, clock_timestamp())
	FROM target
	WHERE i.id = target.id AND i.status = 'draft'
	RETURNING i.id, i.last_updated_at
), inserted AS (
	INSERT INTO intakes (id, patient_external_id, first_name, last_name, email, date_of_birth, phone,
		schema_version, status, form_data, created_at, last_updated_at, submitted_at)
	SELECT $9::uuid, $1, $2, $3, $4, $5, $6, $7, 'completed', $8::jsonb, NOW(), clock_timestamp(), clock_timestamp()
	WHERE NOT EXISTS (SELECT 1 FROM converted)
	RETURNING id, last_updated_at
)
SELECT id, last_updated_at, true FROM converted
UNION ALL
SELECT id, last_updated_at, false FROM inserted`

func (r *repoPG) SaveDraft(ctx context.Context, rec *Record) (*SaveResult, error) {
	const op = "intake.save_draft"
	fd, err := encodeFormData(rec.FormData)
	if err != nil {
		return nil, apperr.Validation(op, "form_data is not serializable: %v", err)
	}
	res := &SaveResult{Status: StatusDraft}
	err = r.conn().QueryRow(ctx, saveDraftSQL,
		rec.PatientExternalID, rec.FirstName, rec.LastName, rec.Email, rec.DateOfBirth, rec.Phone,
		rec.SchemaVersion, rec.CurrentStep, fd, uuid.New(),
	).Scan(&res.ID, &res.LastUpdatedAt, &res.Converted)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return res, nil
}

func (r *repoPG) Submit(ctx context.Context, rec *Record) (*SaveResult, error) {
	const op = "intake.submit"
	fd, err := encodeFormData(rec.FormData)
	if err != nil {
		return nil, apperr.Validation(op, "form_data is not serializable: %v", err)
	}
	res := &SaveResult{Status: StatusCompleted}
	err = r.conn().QueryRow(ctx, submitSQL,
		rec.PatientExternalID, rec.FirstName, rec.LastName, rec.Email, rec.DateOfBirth, rec.Phone,
		rec.SchemaVersion, fd, uuid.New(),
	).Scan(&res.ID, &res.LastUpdatedAt, &res.Converted)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return res, nil
}

func (r *repoPG) getOne(ctx context.Context, op, notFound, sql string, args ...interface{}) (*Record, error) {
	rec, err := scanRecord(r.conn().QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound(op, "%s", notFound)
	}
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return rec, nil
}

func (r *repoPG) GetDraft(ctx context.Context, externalID string) (*Record, error) {
	return r.getOne(ctx, "intake.get_draft", "No draft found for this patient",
		`SELECT `+intakeCols+` FROM intakes
		WHERE patient_external_id = $1 AND status = 'draft'
		ORDER BY last_updated_at DESC LIMIT 1`, externalID)
}

func (r *repoPG) GetCompleted(ctx context.Context, externalID string) (*Record, error) {
	return r.getOne(ctx, "intake.get_completed", "No completed intake found for this patient",
		`SELECT `+intakeCols+` FROM intakes
		WHERE patient_external_id = $1 AND status = 'completed'
		ORDER BY submitted_at DESC LIMIT 1`, externalID)
}

func (r *repoPG) DiscardDraft(ctx context.Context, externalID string) (int64, error) {
	tag, err := r.conn().Exec(ctx,
		`DELETE FROM intakes WHERE patient_external_id = $1 AND status = 'draft'`, externalID)
	if err != nil {
		return 0, apperr.Storage("intake.discard_draft", err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return r.getOne(ctx, "intake.get", "Intake not found",
		`SELECT `+intakeCols+` FROM intakes WHERE id = $1`, id)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn().Exec(ctx, `DELETE FROM intakes WHERE id = $1`, id)
	if err != nil {
		return false, apperr.Storage("intake.delete", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) ListRecent(ctx context.Context, limit int) ([]*Record, error) {
	return r.collect(ctx, "intake.list_recent",
		`SELECT `+intakeCols+` FROM intakes ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *repoPG) FindByEmail(ctx context.Context, email string, limit int) ([]*Record, error) {
	return r.collect(ctx, "intake.find_by_email",
		`SELECT `+intakeCols+` FROM intakes WHERE email = $1 ORDER BY created_at DESC LIMIT $2`, email, limit)
}

func (r *repoPG) FindByFieldPath(ctx context.Context, path []string, value string) ([]*Record, error) {
	return r.collect(ctx, "intake.find_by_field_path",
		`SELECT `+intakeCols+` FROM intakes WHERE form_data #>> $1::text[] = $2 ORDER BY created_at DESC`,
		path, value)
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.conn().QueryRow(ctx, `SELECT COUNT(*) FROM intakes`).Scan(&total); err != nil {
		return 0, apperr.Storage("intake.count", err)
	}
	return total, nil
}

func (r *repoPG) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.pool.Ping(ctx)
}
