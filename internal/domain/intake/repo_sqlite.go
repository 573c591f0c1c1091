package intake

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/healthie-intake/intake-api/internal/platform/apperr"
)

// tsLayout is fixed width so that text ordering matches time ordering.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRepo is a Repository backed by SQLite. It expects an *sql.DB opened
// with the "sqlite" driver (modernc.org/sqlite), see db.OpenSQLite.
type SQLiteRepo struct {
	db  *sql.DB
	now func() time.Time
}

var _ Repository = (*SQLiteRepo)(nil)

// NewRepoSQLite creates the intakes table if needed and returns the repo.
func NewRepoSQLite(ctx context.Context, db *sql.DB) (*SQLiteRepo, error) {
	r := &SQLiteRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := r.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return r, nil
}

func (r *SQLiteRepo) initSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS intakes (
			id TEXT PRIMARY KEY,
			patient_external_id TEXT NOT NULL,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			email TEXT NOT NULL,
			date_of_birth TEXT NOT NULL,
			phone TEXT,
			schema_version TEXT NOT NULL DEFAULT '1.0-poc',
			status TEXT NOT NULL CHECK (status IN ('draft', 'completed')),
			current_step TEXT,
			form_data TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT,
			last_updated_at TEXT NOT NULL,
			submitted_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_intakes_patient_status
			ON intakes (patient_external_id, status, last_updated_at);
		CREATE INDEX IF NOT EXISTS idx_intakes_email ON intakes (email);
		CREATE INDEX IF NOT EXISTS idx_intakes_created_at ON intakes (created_at);`,
	)
	return err
}

func (r *SQLiteRepo) stamp() (time.Time, string) {
	t := r.now().UTC()
	return t, t.Format(tsLayout)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// withTx runs fn in a transaction. The database is opened with a single
// connection, so transactions are serialized and the draft lookup and the
// write that follows cannot interleave with another writer. Writers stamp
// inside fn so that commit order and timestamp order agree.
func (r *SQLiteRepo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// fill sets the id and timestamp read back from an UPDATE ... RETURNING.
func (res *SaveResult) fill(id, lastUpdated string) error {
	var err error
	if res.ID, err = uuid.Parse(id); err != nil {
		return err
	}
	res.LastUpdatedAt, err = parseTS(lastUpdated)
	return err
}

func (r *SQLiteRepo) SaveDraft(ctx context.Context, rec *Record) (*SaveResult, error) {
	const op = "intake.save_draft"
	fd, err := encodeFormData(rec.FormData)
	if err != nil {
		return nil, apperr.Validation(op, "form_data is not serializable: %v", err)
	}
	res := &SaveResult{Status: StatusDraft}

	err = r.withTx(ctx, func(tx *sql.Tx) error {
		now, ts := r.stamp()
		var id, last string
		err := tx.QueryRowContext(ctx, `
			UPDATE intakes SET
				first_name = ?, last_name = ?, email = ?, date_of_birth = ?, phone = ?,
				schema_version = ?, current_step = ?, form_data = ?,
				updated_at = ?, last_updated_at = MAX(last_updated_at, ?)
			WHERE id = (
				SELECT id FROM intakes
				WHERE patient_external_id = ? AND status = 'draft'
				ORDER BY last_updated_at DESC
				LIMIT 1
			)
			RETURNING id, last_updated_at`,
			rec.FirstName, rec.LastName, rec.Email, rec.DateOfBirth, nullString(rec.Phone),
			rec.SchemaVersion, nullString(rec.CurrentStep), string(fd),
			ts, ts, rec.PatientExternalID,
		).Scan(&id, &last)
		if err == nil {
			return res.fill(id, last)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		res.ID, res.LastUpdatedAt = uuid.New(), now
		_, err = tx.ExecContext(ctx, `
			INSERT INTO intakes (id, patient_external_id, first_name, last_name, email, date_of_birth,
				phone, schema_version, status, current_step, form_data, created_at, last_updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'draft', ?, ?, ?, ?)`,
			res.ID.String(), rec.PatientExternalID, rec.FirstName, rec.LastName, rec.Email, rec.DateOfBirth,
			nullString(rec.Phone), rec.SchemaVersion, nullString(rec.CurrentStep), string(fd), ts, ts,
		)
		return err
	})
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return res, nil
}

func (r *SQLiteRepo) Submit(ctx context.Context, rec *Record) (*SaveResult, error) {
	const op = "intake.submit"
	fd, err := encodeFormData(rec.FormData)
	if err != nil {
		return nil, apperr.Validation(op, "form_data is not serializable: %v", err)
	}
	res := &SaveResult{Status: StatusCompleted}

	err = r.withTx(ctx, func(tx *sql.Tx) error {
		now, ts := r.stamp()
		var id, last string
		err := tx.QueryRowContext(ctx, `
			UPDATE intakes SET
				first_name = ?, last_name = ?, email = ?, date_of_birth = ?, phone = ?,
				schema_version = ?, current_step = NULL, form_data = ?,
				status = 'completed', submitted_at = ?, updated_at = ?,
				last_updated_at = MAX(last_updated_at, ?)
			WHERE id = (
				SELECT id FROM intakes
				WHERE patient_external_id = ? AND status = 'draft'
				ORDER BY last_updated_at DESC
				LIMIT 1
			)
			RETURNING id, last_updated_at`,
			rec.FirstName, rec.LastName, rec.Email, rec.DateOfBirth, nullString(rec.Phone),
			rec.SchemaVersion, string(fd), ts, ts, ts, rec.PatientExternalID,
		).Scan(&id, &last)
		if err == nil {
			res.Converted = true
			return res.fill(id, last)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		res.ID, res.LastUpdatedAt = uuid.New(), now
		_, err = tx.ExecContext(ctx, `
			INSERT INTO intakes (id, patient_external_id, first_name, last_name, email, date_of_birth,
				phone, schema_version, status, form_data, created_at, last_updated_at, submitted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'completed', ?, ?, ?, ?)`,
			res.ID.String(), rec.PatientExternalID, rec.FirstName, rec.LastName, rec.Email, rec.DateOfBirth,
			nullString(rec.Phone), rec.SchemaVersion, string(fd), ts, ts, ts,
		)
		return err
	})
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return res, nil
}

const sqliteCols = `id, patient_external_id, first_name, last_name, email, date_of_birth, phone,
	schema_version, status, current_step, form_data, created_at, updated_at, last_updated_at, submitted_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(tsLayout, s)
}

func parseNullTS(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTS(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanSQLiteRecord(row rowScanner) (*Record, error) {
	var (
		rec                      Record
		id, status, formData     string
		createdAt, lastUpdatedAt string
		phone, step              sql.NullString
		updatedAt, submittedAt   sql.NullString
	)
	err := row.Scan(&id, &rec.PatientExternalID, &rec.FirstName, &rec.LastName, &rec.Email,
		&rec.DateOfBirth, &phone, &rec.SchemaVersion, &status, &step, &formData,
		&createdAt, &updatedAt, &lastUpdatedAt, &submittedAt)
	if err != nil {
		return nil, err
	}
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	if phone.Valid {
		rec.Phone = &phone.String
	}
	if step.Valid {
		rec.CurrentStep = &step.String
	}
	if rec.FormData, err = decodeFormData([]byte(formData)); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseTS(createdAt); err != nil {
		return nil, err
	}
	if rec.LastUpdatedAt, err = parseTS(lastUpdatedAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseNullTS(updatedAt); err != nil {
		return nil, err
	}
	if rec.SubmittedAt, err = parseNullTS(submittedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *SQLiteRepo) getOne(ctx context.Context, op, notFound, query string, args ...interface{}) (*Record, error) {
	rec, err := scanSQLiteRecord(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(op, "%s", notFound)
	}
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return rec, nil
}

func (r *SQLiteRepo) collect(ctx context.Context, op, query string, keep func(*Record) bool, args ...interface{}) ([]*Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, apperr.Storage(op, err)
		}
		if keep == nil || keep(rec) {
			items = append(items, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(op, err)
	}
	return items, nil
}

func (r *SQLiteRepo) GetDraft(ctx context.Context, externalID string) (*Record, error) {
	return r.getOne(ctx, "intake.get_draft", "No draft found for this patient",
		`SELECT `+sqliteCols+` FROM intakes
		WHERE patient_external_id = ? AND status = 'draft'
		ORDER BY last_updated_at DESC LIMIT 1`, externalID)
}

func (r *SQLiteRepo) GetCompleted(ctx context.Context, externalID string) (*Record, error) {
	return r.getOne(ctx, "intake.get_completed", "No completed intake found for this patient",
		`SELECT `+sqliteCols+` FROM intakes
		WHERE patient_external_id = ? AND status = 'completed'
		ORDER BY submitted_at DESC LIMIT 1`, externalID)
}

func (r *SQLiteRepo) DiscardDraft(ctx context.Context, externalID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM intakes WHERE patient_external_id = ? AND status = 'draft'`, externalID)
	if err != nil {
		return 0, apperr.Storage("intake.discard_draft", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Storage("intake.discard_draft", err)
	}
	return n, nil
}

func (r *SQLiteRepo) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return r.getOne(ctx, "intake.get", "Intake not found",
		`SELECT `+sqliteCols+` FROM intakes WHERE id = ?`, id.String())
}

func (r *SQLiteRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM intakes WHERE id = ?`, id.String())
	if err != nil {
		return false, apperr.Storage("intake.delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Storage("intake.delete", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepo) ListRecent(ctx context.Context, limit int) ([]*Record, error) {
	return r.collect(ctx, "intake.list_recent",
		`SELECT `+sqliteCols+` FROM intakes ORDER BY created_at DESC LIMIT ?`, nil, limit)
}

func (r *SQLiteRepo) FindByEmail(ctx context.Context, email string, limit int) ([]*Record, error) {
	return r.collect(ctx, "intake.find_by_email",
		`SELECT `+sqliteCols+` FROM intakes WHERE email = ? ORDER BY created_at DESC LIMIT ?`, nil, email, limit)
}

// FindByFieldPath scans every row and matches in Go with the same text
// rendering Postgres applies for #>>.
func (r *SQLiteRepo) FindByFieldPath(ctx context.Context, path []string, value string) ([]*Record, error) {
	return r.collect(ctx, "intake.find_by_field_path",
		`SELECT `+sqliteCols+` FROM intakes ORDER BY created_at DESC`,
		func(rec *Record) bool { return MatchFieldPath(rec.FormData, path, value) })
}

func (r *SQLiteRepo) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM intakes`).Scan(&total); err != nil {
		return 0, apperr.Storage("intake.count", err)
	}
	return total, nil
}

func (r *SQLiteRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
