package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campuskit/scheduler-api/internal/models"
	appErrors "github.com/campuskit/scheduler-api/pkg/errors"
)

// SlotRepository handles persistence of availability slots. Rule-enforcing
// methods (create, delete) run inside a transaction and surface typed domain
// errors; plain readers return raw store errors.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository constructs the repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

const slotColumns = `id, faculty_id, subject, start_time, end_time, created_at, updated_at`

// FindByID returns a slot by its ID.
func (r *SlotRepository) FindByID(ctx context.Context, id string) (*models.Slot, error) {
	query := fmt.Sprintf(`SELECT %s FROM slots WHERE id = $1`, slotColumns)
	var slot models.Slot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListByFaculty returns a faculty's slots with the most recent booking row
// attached, filtered by the provided criteria.
func (r *SlotRepository) ListByFaculty(ctx context.Context, filter models.SlotFilter, now time.Time) ([]models.SlotDetail, error) {
	conditions := []string{"s.faculty_id = $1"}
	args := []interface{}{filter.FacultyID}

	if filter.Date != nil {
		dayStart := filter.Date.UTC().Truncate(24 * time.Hour)
		conditions = append(conditions, fmt.Sprintf("s.start_time >= $%d", len(args)+1))
		args = append(args, dayStart)
		conditions = append(conditions, fmt.Sprintf("s.start_time < $%d", len(args)+1))
		args = append(args, dayStart.Add(24*time.Hour))
	}
	if filter.FutureOnly {
		conditions = append(conditions, fmt.Sprintf("s.start_time > $%d", len(args)+1))
		args = append(args, now)
	}

	query := fmt.Sprintf(`SELECT s.id, s.faculty_id, s.subject, s.start_time, s.end_time, s.created_at, s.updated_at,
        u.full_name AS faculty_name, u.email AS faculty_email,
        b.id AS booking_id, b.status AS booking_status, b.student_id AS booking_student_id
        FROM slots s
        JOIN users u ON u.id = s.faculty_id
        LEFT JOIN LATERAL (
            SELECT id, status, student_id FROM bookings
            WHERE slot_id = s.id ORDER BY created_at DESC LIMIT 1
        ) b ON TRUE
        WHERE %s ORDER BY s.start_time`, strings.Join(conditions, " AND "))

	var slots []models.SlotDetail
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, fmt.Errorf("list faculty slots: %w", err)
	}
	return slots, nil
}

// ListOpenForFaculties returns future slots of the given faculties that are
// not claimed by a confirmed booking and whose owner's availability gate is
// on. This is the base set the eligibility filter narrows per student.
func (r *SlotRepository) ListOpenForFaculties(ctx context.Context, facultyIDs []string, now time.Time, date *time.Time) ([]models.SlotDetail, error) {
	if len(facultyIDs) == 0 {
		return nil, nil
	}

	query := `SELECT s.id, s.faculty_id, s.subject, s.start_time, s.end_time, s.created_at, s.updated_at,
        u.full_name AS faculty_name, u.email AS faculty_email,
        NULL AS booking_id, NULL AS booking_status, NULL AS booking_student_id
        FROM slots s
        JOIN users u ON u.id = s.faculty_id
        LEFT JOIN faculty_availability fa ON fa.faculty_id = s.faculty_id
        WHERE s.faculty_id IN (?)
          AND s.start_time > ?
          AND COALESCE(fa.available, TRUE)
          AND NOT EXISTS (
              SELECT 1 FROM bookings b WHERE b.slot_id = s.id AND b.status = 'confirmed'
          )`
	args := []interface{}{facultyIDs, now}
	if date != nil {
		dayStart := date.UTC().Truncate(24 * time.Hour)
		query += " AND s.start_time >= ? AND s.start_time < ?"
		args = append(args, dayStart, dayStart.Add(24*time.Hour))
	}
	query += " ORDER BY s.start_time"

	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("build open slots query: %w", err)
	}
	expanded = r.db.Rebind(expanded)

	var slots []models.SlotDetail
	if err := r.db.SelectContext(ctx, &slots, expanded, expandedArgs...); err != nil {
		return nil, fmt.Errorf("list open slots: %w", err)
	}
	return slots, nil
}

// lockFacultySlots serializes slot writers for one faculty inside the current
// transaction. The lock is released at commit or rollback, so a second bulk
// create for the same faculty waits until the first one's intervals are
// visible, closing the read-then-insert race between transactions.
func lockFacultySlots(ctx context.Context, tx *sqlx.Tx, facultyID string) error {
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, facultyID); err != nil {
		return fmt.Errorf("lock faculty slots: %w", err)
	}
	return nil
}

func listIntervalsTx(ctx context.Context, tx *sqlx.Tx, facultyID string, from, to time.Time) ([]models.SlotInterval, error) {
	const query = `SELECT start_time, end_time FROM slots
        WHERE faculty_id = $1 AND start_time < $3 AND end_time > $2
        ORDER BY start_time`
	rows, err := tx.QueryxContext(ctx, query, facultyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list slot intervals: %w", err)
	}
	defer rows.Close()

	var intervals []models.SlotInterval
	for rows.Next() {
		var start, end time.Time
		if err := rows.Scan(&start, &end); err != nil {
			return nil, fmt.Errorf("scan slot interval: %w", err)
		}
		intervals = append(intervals, models.SlotInterval{Start: start, End: end})
	}
	return intervals, rows.Err()
}

// Create inserts a single slot after an overlap check against the faculty's
// existing slots. The faculty lock and the exclusion constraint together keep
// the check race-free across concurrent transactions.
func (r *SlotRepository) Create(ctx context.Context, slot *models.Slot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin slot create: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := lockFacultySlots(ctx, tx, slot.FacultyID); err != nil {
		return err
	}

	var overlap int
	err = tx.GetContext(ctx, &overlap,
		`SELECT 1 FROM slots WHERE faculty_id = $1 AND start_time < $3 AND end_time > $2 LIMIT 1`,
		slot.FacultyID, slot.StartTime, slot.EndTime)
	if err == nil {
		return appErrors.Clone(appErrors.ErrValidation, "this time slot overlaps with an existing slot")
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check slot overlap: %w", err)
	}

	prepareSlot(slot)
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO slots (id, faculty_id, subject, start_time, end_time, created_at, updated_at)
         VALUES (:id, :faculty_id, :subject, :start_time, :end_time, :created_at, :updated_at)`, slot); err != nil {
		return mapSlotError(err)
	}

	if err := tx.Commit(); err != nil {
		return mapSlotError(err)
	}
	return nil
}

// BulkInsert persists the candidates that do not collide with the faculty's
// existing slots in [from, to), as one atomic batch. The overlap decision and
// the inserts share a transaction under the faculty lock, so two interleaved
// bulk creates cannot both judge against the same pre-insert snapshot. Returns
// the persisted slots and the number of skipped candidates.
func (r *SlotRepository) BulkInsert(ctx context.Context, facultyID string, from, to time.Time, candidates []models.Slot) ([]models.Slot, int, error) {
	if len(candidates) == 0 {
		return nil, 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin bulk insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := lockFacultySlots(ctx, tx, facultyID); err != nil {
		return nil, 0, err
	}

	existing, err := listIntervalsTx(ctx, tx, facultyID, from, to)
	if err != nil {
		return nil, 0, err
	}

	var persisted []models.Slot
	skipped := 0
	for i := range candidates {
		if overlapsAny(candidates[i], existing) {
			skipped++
			continue
		}
		prepareSlot(&candidates[i])
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO slots (id, faculty_id, subject, start_time, end_time, created_at, updated_at)
             VALUES (:id, :faculty_id, :subject, :start_time, :end_time, :created_at, :updated_at)`, &candidates[i]); err != nil {
			return nil, 0, mapSlotError(err)
		}
		persisted = append(persisted, candidates[i])
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, mapSlotError(err)
	}
	return persisted, skipped, nil
}

func overlapsAny(candidate models.Slot, existing []models.SlotInterval) bool {
	for _, interval := range existing {
		if candidate.Overlaps(interval.Start, interval.End) {
			return true
		}
	}
	return false
}

// Delete removes a slot when it is safe: future start, owned by the caller,
// and no confirmed, completed or absent booking references it. Cancelled
// booking rows do not protect a slot.
func (r *SlotRepository) Delete(ctx context.Context, facultyID, slotID string, now time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin slot delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var slot models.Slot
	err = tx.GetContext(ctx, &slot,
		fmt.Sprintf(`SELECT %s FROM slots WHERE id = $1 FOR UPDATE`, slotColumns), slotID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.ErrSlotNotFound
		}
		return fmt.Errorf("load slot for delete: %w", err)
	}
	if slot.FacultyID != facultyID {
		return appErrors.ErrForbidden
	}
	if !slot.StartTime.After(now) {
		return appErrors.Clone(appErrors.ErrValidation, "cannot delete a slot that has already started")
	}

	var history int
	err = tx.GetContext(ctx, &history,
		`SELECT 1 FROM bookings WHERE slot_id = $1 AND status IN ('confirmed', 'completed', 'absent') LIMIT 1`,
		slotID)
	if err == nil {
		return appErrors.Clone(appErrors.ErrValidation, "cannot delete a slot that has booking history")
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check booking history: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM slots WHERE id = $1`, slotID); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit slot delete: %w", err)
	}
	return nil
}

// DeleteDayOpen atomically removes the faculty's slots starting in
// [dayStart, dayEnd) that carry no booking history. It refuses to run while
// confirmed bookings exist in the range; completed and absent history is
// skipped, not deleted.
func (r *SlotRepository) DeleteDayOpen(ctx context.Context, facultyID string, dayStart, dayEnd time.Time) (deleted, skipped int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin day cleanup: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var confirmed int
	err = tx.GetContext(ctx, &confirmed,
		`SELECT COUNT(*) FROM slots s
         JOIN bookings b ON b.slot_id = s.id AND b.status = 'confirmed'
         WHERE s.faculty_id = $1 AND s.start_time >= $2 AND s.start_time < $3`,
		facultyID, dayStart, dayEnd)
	if err != nil {
		return 0, 0, fmt.Errorf("count confirmed bookings: %w", err)
	}
	if confirmed > 0 {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("cannot delete today's slots: %d confirmed booking(s) exist, cancel those first", confirmed))
	}

	var total int
	err = tx.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM slots WHERE faculty_id = $1 AND start_time >= $2 AND start_time < $3`,
		facultyID, dayStart, dayEnd)
	if err != nil {
		return 0, 0, fmt.Errorf("count day slots: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM slots s WHERE s.faculty_id = $1 AND s.start_time >= $2 AND s.start_time < $3
         AND NOT EXISTS (
             SELECT 1 FROM bookings b WHERE b.slot_id = s.id AND b.status IN ('confirmed', 'completed', 'absent')
         )`,
		facultyID, dayStart, dayEnd)
	if err != nil {
		return 0, 0, fmt.Errorf("delete day slots: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("day cleanup rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit day cleanup: %w", err)
	}
	return int(affected), total - int(affected), nil
}

// mapSlotError surfaces an exclusion-constraint hit as the same validation
// error the in-transaction overlap check produces.
func mapSlotError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23P01" && pqErr.Constraint == "ex_slots_faculty_no_overlap" {
		return appErrors.Clone(appErrors.ErrValidation, "this time slot overlaps with an existing slot")
	}
	return err
}

func prepareSlot(slot *models.Slot) {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now
}
