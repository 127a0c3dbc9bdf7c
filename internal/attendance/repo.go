package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Repository persists attendance records in Postgres. The unique index on
// (student_key, session_id) makes each write an atomic conditional insert.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `id, course_id, session_id, student_key, student_name, status, recorded_at`

// InsertIfAbsent writes rec unless the student already has a record for the session.
func (r *Repository) InsertIfAbsent(ctx context.Context, rec Record) (Record, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (student_key, session_id) DO NOTHING
		RETURNING `+recordColumns,
		rec.ID, rec.CourseID, rec.SessionID, rec.StudentKey, rec.StudentName, rec.Status, rec.Timestamp)
	stored, err := scanRecord(row)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, fmt.Errorf("insert record: %w", err)
	}
	existing, err := r.get(ctx, rec.StudentKey, rec.SessionID)
	if err != nil {
		return Record{}, false, err
	}
	return existing, false, nil
}

// UpsertStatus inserts rec or overwrites status and timestamp when they differ.
func (r *Repository) UpsertStatus(ctx context.Context, rec Record) (Record, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (student_key, session_id) DO UPDATE SET
			status = EXCLUDED.status,
			recorded_at = EXCLUDED.recorded_at
		WHERE attendance_records.status IS DISTINCT FROM EXCLUDED.status
		RETURNING `+recordColumns,
		rec.ID, rec.CourseID, rec.SessionID, rec.StudentKey, rec.StudentName, rec.Status, rec.Timestamp)
	stored, err := scanRecord(row)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, fmt.Errorf("upsert record: %w", err)
	}
	existing, err := r.get(ctx, rec.StudentKey, rec.SessionID)
	if err != nil {
		return Record{}, false, err
	}
	return existing, false, nil
}

// Mirror copies a record produced elsewhere. Older copies never overwrite newer ones.
func (r *Repository) Mirror(ctx context.Context, rec Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (student_key, session_id) DO UPDATE SET
			status = EXCLUDED.status,
			student_name = EXCLUDED.student_name,
			recorded_at = EXCLUDED.recorded_at
		WHERE attendance_records.recorded_at <= EXCLUDED.recorded_at
	`, rec.ID, rec.CourseID, rec.SessionID, rec.StudentKey, rec.StudentName, rec.Status, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("mirror record %s: %w", rec.ID, err)
	}
	return nil
}

// List returns every record, oldest first.
func (r *Repository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM attendance_records ORDER BY recorded_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// Reset deletes every record.
func (r *Repository) Reset(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records`)
	return err
}

func (r *Repository) get(ctx context.Context, studentKey, sessionID string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records WHERE student_key = $1 AND session_id = $2
	`, studentKey, sessionID)
	rec, err := scanRecord(row)
	if err != nil {
		return Record{}, fmt.Errorf("load record: %w", err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var rec Record
	err := s.Scan(&rec.ID, &rec.CourseID, &rec.SessionID, &rec.StudentKey, &rec.StudentName, &rec.Status, &rec.Timestamp)
	return rec, err
}
