package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ferrovax/gatehouse/internal/attendance"
)

// PostgresRepository implements Repository over the attendance_outbox table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repository over an existing connection pool.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append enqueues a record snapshot for replication.
func (r *PostgresRepository) Append(ctx context.Context, rec attendance.Record) error {
	const q = `
		INSERT INTO attendance_outbox
			(id, subject_id, day, outcome, level, captured_at, attempts, next_retry_at, parked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, NOW(), FALSE, NOW())
	`
	_, err := r.db.ExecContext(ctx, q, uuid.New().String(), rec.SubjectID, rec.Day, rec.Outcome, rec.Level, rec.CapturedAt)
	if err != nil {
		return fmt.Errorf("append outbox item: %w", err)
	}
	return nil
}

// Due returns up to limit unparked items whose retry time has come.
func (r *PostgresRepository) Due(ctx context.Context, now time.Time, limit int) ([]Item, error) {
	const q = `
		SELECT id, subject_id, day, outcome, level, captured_at, attempts, next_retry_at, parked, created_at
		FROM attendance_outbox
		WHERE parked = FALSE AND next_retry_at <= $1
		ORDER BY created_at
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, q, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due outbox items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		var d time.Time
		if err := rows.Scan(&it.ID, &it.SubjectID, &d, &it.Outcome, &it.Level,
			&it.CapturedAt, &it.Attempts, &it.NextRetryAt, &it.Parked, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox item: %w", err)
		}
		it.Day = d.Format("2006-01-02")
		out = append(out, it)
	}
	return out, rows.Err()
}

// MarkDone removes an item.
func (r *PostgresRepository) MarkDone(ctx context.Context, id string) error {
	return r.exec(ctx, `DELETE FROM attendance_outbox WHERE id = $1`, id)
}

// Reschedule updates attempt metadata.
func (r *PostgresRepository) Reschedule(ctx context.Context, id string, attempts int, next time.Time) error {
	return r.exec(ctx, `UPDATE attendance_outbox SET attempts = $2, next_retry_at = $3 WHERE id = $1`, id, attempts, next)
}

// Park flags an item for manual inspection.
func (r *PostgresRepository) Park(ctx context.Context, id string, attempts int) error {
	return r.exec(ctx, `UPDATE attendance_outbox SET attempts = $2, parked = TRUE WHERE id = $1`, id, attempts)
}

// Counts returns pending and parked item counts.
func (r *PostgresRepository) Counts(ctx context.Context) (pending, parked int, err error) {
	const q = `
		SELECT
			COUNT(*) FILTER (WHERE parked = FALSE),
			COUNT(*) FILTER (WHERE parked = TRUE)
		FROM attendance_outbox
	`
	if err := r.db.QueryRowContext(ctx, q).Scan(&pending, &parked); err != nil {
		return 0, 0, fmt.Errorf("count outbox items: %w", err)
	}
	return pending, parked, nil
}

func (r *PostgresRepository) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update outbox item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update outbox item: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}
