package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campuskit/scheduler-api/internal/models"
)

// AvailabilityRepository persists the per-faculty availability gate. A faculty
// without a row is available; the default lives here, not in callers.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// Get returns the availability flag for a faculty, defaulting to true.
func (r *AvailabilityRepository) Get(ctx context.Context, facultyID string) (bool, error) {
	const query = `SELECT available FROM faculty_availability WHERE faculty_id = $1`
	var available bool
	if err := r.db.GetContext(ctx, &available, query, facultyID); err != nil {
		if err == sql.ErrNoRows {
			return true, nil
		}
		return false, fmt.Errorf("get availability: %w", err)
	}
	return available, nil
}

// GetMany returns availability flags for a set of faculties, defaulting any
// missing row to true.
func (r *AvailabilityRepository) GetMany(ctx context.Context, facultyIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(facultyIDs))
	for _, id := range facultyIDs {
		result[id] = true
	}
	if len(facultyIDs) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`SELECT faculty_id, available FROM faculty_availability WHERE faculty_id IN (?)`, facultyIDs)
	if err != nil {
		return nil, fmt.Errorf("build availability query: %w", err)
	}
	query = r.db.Rebind(query)
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get availability flags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var row models.FacultyAvailability
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan availability row: %w", err)
		}
		result[row.FacultyID] = row.Available
	}
	return result, rows.Err()
}

// Set upserts the availability flag for a faculty.
func (r *AvailabilityRepository) Set(ctx context.Context, facultyID string, available bool) error {
	const query = `INSERT INTO faculty_availability (faculty_id, available, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (faculty_id) DO UPDATE SET available = EXCLUDED.available, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, facultyID, available, time.Now().UTC()); err != nil {
		return fmt.Errorf("set availability: %w", err)
	}
	return nil
}
