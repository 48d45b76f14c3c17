package registry

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// PostgresRepository implements Repository backed by the students table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repository over an existing connection pool.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Lookup returns the entry for an external ID, or (nil, nil) when absent.
func (r *PostgresRepository) Lookup(ctx context.Context, externalID string) (*Entry, error) {
	const q = `
		SELECT id, external_id, name, course, email, created_at
		FROM students
		WHERE external_id = $1
	`
	var e Entry
	err := r.db.QueryRowContext(ctx, q, externalID).Scan(
		&e.ID, &e.ExternalID, &e.Name, &e.Course, &e.Email, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup student: %w", err)
	}
	return &e, nil
}

// List returns all entries ordered by name.
func (r *PostgresRepository) List(ctx context.Context) ([]Entry, error) {
	const q = `
		SELECT id, external_id, name, course, email, created_at
		FROM students
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ExternalID, &e.Name, &e.Course, &e.Email, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Insert stores a new entry.
func (r *PostgresRepository) Insert(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	const q = `
		INSERT INTO students (id, external_id, name, course, email, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (external_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, q, entry.ID, entry.ExternalID, entry.Name, entry.Course, entry.Email)
	if err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	if n == 0 {
		return ErrDuplicateExternalID
	}
	return nil
}

// Update modifies an existing entry by ID.
func (r *PostgresRepository) Update(ctx context.Context, entry *Entry) error {
	const q = `
		UPDATE students
		SET external_id = $2, name = $3, course = $4, email = $5
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, q, entry.ID, entry.ExternalID, entry.Name, entry.Course, entry.Email)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an entry by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of registered entries.
func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return n, nil
}
