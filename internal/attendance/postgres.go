package attendance

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresRepository implements Repository over the attendance table. The
// UNIQUE (subject_id, day) constraint in the schema backs the dedup
// invariant; the Go code only ever races up to the database, never past it.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repository over an existing connection pool.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the record for (subjectID, day), or (nil, nil) when absent.
func (r *PostgresRepository) Get(ctx context.Context, subjectID, day string) (*Record, error) {
	const q = `
		SELECT subject_id, day, outcome, level, captured_at
		FROM attendance
		WHERE subject_id = $1 AND day = $2
	`
	var rec Record
	var d time.Time
	err := r.db.QueryRowContext(ctx, q, subjectID, day).Scan(
		&rec.SubjectID, &d, &rec.Outcome, &rec.Level, &rec.CapturedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	rec.Day = d.Format("2006-01-02")
	return &rec, nil
}

// InsertIfAbsent stores rec unless its (subject, day) already exists.
func (r *PostgresRepository) InsertIfAbsent(ctx context.Context, rec Record) (bool, error) {
	const q = `
		INSERT INTO attendance (subject_id, day, outcome, level, captured_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subject_id, day) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, q, rec.SubjectID, rec.Day, rec.Outcome, rec.Level, rec.CapturedAt)
	if err != nil {
		return false, fmt.Errorf("insert attendance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert attendance: %w", err)
	}
	return n > 0, nil
}

// Downgrade flips a Present record to Proxy/Partial.
func (r *PostgresRepository) Downgrade(ctx context.Context, subjectID, day string) (bool, error) {
	const q = `
		UPDATE attendance
		SET outcome = $3, level = $4
		WHERE subject_id = $1 AND day = $2 AND outcome = $5
	`
	res, err := r.db.ExecContext(ctx, q, subjectID, day, OutcomeProxy, LevelPartial, OutcomePresent)
	if err != nil {
		return false, fmt.Errorf("downgrade attendance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("downgrade attendance: %w", err)
	}
	return n > 0, nil
}

// Recent returns the most recent records, newest first.
func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]Record, error) {
	const q = `
		SELECT subject_id, day, outcome, level, captured_at
		FROM attendance
		ORDER BY captured_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("recent attendance: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var d time.Time
		if err := rows.Scan(&rec.SubjectID, &d, &rec.Outcome, &rec.Level, &rec.CapturedAt); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		rec.Day = d.Format("2006-01-02")
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountForDay returns how many records exist for one day.
func (r *PostgresRepository) CountForDay(ctx context.Context, day string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance WHERE day = $1`, day).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count attendance: %w", err)
	}
	return n, nil
}

// CountSinceDay returns how many records exist on or after a day.
func (r *PostgresRepository) CountSinceDay(ctx context.Context, fromDay string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance WHERE day >= $1`, fromDay).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count attendance: %w", err)
	}
	return n, nil
}
