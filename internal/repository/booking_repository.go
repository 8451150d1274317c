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

// ErrTransientConflict marks a lock/serialization conflict worth a bounded
// retry. All other claim failures are terminal to the request.
var ErrTransientConflict = errors.New("transient store conflict")

// BookingRepository handles persistence of bookings. Claim is the only write
// path that creates a confirmed booking; it holds a row lock on the slot for
// the whole check-then-insert so two racing students cannot both win.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `id, slot_id, student_id, group_id, subject, status, cancellation_reason,
        cancelled_at, marked_absent_at, rebooking_allowed, created_at, updated_at`

const bookingDetailSelect = `SELECT b.id, b.slot_id, b.student_id, b.group_id, b.subject, b.status,
        b.cancellation_reason, b.cancelled_at, b.marked_absent_at, b.rebooking_allowed, b.created_at, b.updated_at,
        s.start_time AS slot_start, s.end_time AS slot_end, s.faculty_id,
        uf.full_name AS faculty_name, us.full_name AS student_name, us.email AS student_email
        FROM bookings b
        JOIN slots s ON s.id = b.slot_id
        JOIN users uf ON uf.id = s.faculty_id
        JOIN users us ON us.id = b.student_id`

// Claim atomically reserves a slot for a student. The slot row is locked for
// the duration of the precondition checks and the insert; the partial unique
// indexes on bookings backstop the checks, so a concurrent claim that slips
// past them still loses at commit. Which of two racers wins is
// store-dependent and deliberately unspecified.
func (r *BookingRepository) Claim(ctx context.Context, booking *models.Booking, now time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var slot models.Slot
	err = tx.GetContext(ctx, &slot,
		fmt.Sprintf(`SELECT %s FROM slots WHERE id = $1 FOR UPDATE`, slotColumns), booking.SlotID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.ErrSlotNotFound
		}
		return mapClaimError(fmt.Errorf("lock slot: %w", err))
	}

	if !slot.StartTime.After(now) {
		return appErrors.Clone(appErrors.ErrValidation, "cannot book a slot in the past")
	}

	var available bool
	err = tx.GetContext(ctx, &available,
		`SELECT available FROM faculty_availability WHERE faculty_id = $1`, slot.FacultyID)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("check availability gate: %w", err)
	}
	if err == nil && !available {
		return appErrors.ErrFacultyUnavailable
	}

	var taken int
	err = tx.GetContext(ctx, &taken,
		`SELECT 1 FROM bookings WHERE slot_id = $1 AND status = 'confirmed' LIMIT 1`, booking.SlotID)
	if err == nil {
		return appErrors.ErrSlotAlreadyBooked
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check slot claim: %w", err)
	}

	var active int
	err = tx.GetContext(ctx, &active,
		`SELECT 1 FROM bookings WHERE student_id = $1 AND subject = $2 AND status = 'confirmed' LIMIT 1`,
		booking.StudentID, slot.Subject)
	if err == nil {
		return appErrors.ErrDuplicateActiveBooking
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check student booking: %w", err)
	}

	if booking.GroupID != "" {
		var groupActive int
		err = tx.GetContext(ctx, &groupActive,
			`SELECT 1 FROM bookings WHERE group_id = $1 AND subject = $2 AND status = 'confirmed' LIMIT 1`,
			booking.GroupID, slot.Subject)
		if err == nil {
			return appErrors.Clone(appErrors.ErrDuplicateActiveBooking, "your group already has a booking for this subject")
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check group booking: %w", err)
		}
	}

	// Only the most recent absence per (student, subject) decides the block;
	// older absent rows are history.
	var rebookable bool
	err = tx.GetContext(ctx, &rebookable,
		`SELECT rebooking_allowed FROM bookings
         WHERE student_id = $1 AND subject = $2 AND status = 'absent'
         ORDER BY marked_absent_at DESC NULLS LAST, updated_at DESC LIMIT 1`,
		booking.StudentID, slot.Subject)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("check absence block: %w", err)
	}
	if err == nil && !rebookable {
		return appErrors.Clone(appErrors.ErrSubjectBlocked,
			fmt.Sprintf("booking for %s is blocked because you were marked absent; your faculty must allow rebooking first", slot.Subject))
	}

	booking.ID = uuid.NewString()
	booking.Subject = slot.Subject
	booking.Status = models.BookingStatusConfirmed
	booking.CreatedAt = now
	booking.UpdatedAt = now
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO bookings (id, slot_id, student_id, group_id, subject, status, cancellation_reason,
             cancelled_at, marked_absent_at, rebooking_allowed, created_at, updated_at)
         VALUES (:id, :slot_id, :student_id, :group_id, :subject, :status, :cancellation_reason,
             :cancelled_at, :marked_absent_at, :rebooking_allowed, :created_at, :updated_at)`, booking); err != nil {
		return mapClaimError(err)
	}

	if err := tx.Commit(); err != nil {
		return mapClaimError(err)
	}
	return nil
}

// FindByID returns a booking by its ID.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE id = $1`, bookingColumns)
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindDetailByID returns a booking with slot and user context.
func (r *BookingRepository) FindDetailByID(ctx context.Context, id string) (*models.BookingDetail, error) {
	query := bookingDetailSelect + ` WHERE b.id = $1`
	var detail models.BookingDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns booking details filtered by student, faculty and status.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.BookingDetail, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("b.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.FacultyID != "" {
		conditions = append(conditions, fmt.Sprintf("s.faculty_id = $%d", len(args)+1))
		args = append(args, filter.FacultyID)
	}
	if filter.ConfirmedOnly {
		conditions = append(conditions, "b.status = 'confirmed'")
	} else if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("b.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	query := bookingDetailSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY b.created_at DESC"

	var bookings []models.BookingDetail
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// ListConfirmedByStudent returns the student's confirmed bookings ordered by
// slot start.
func (r *BookingRepository) ListConfirmedByStudent(ctx context.Context, studentID string) ([]models.BookingDetail, error) {
	query := bookingDetailSelect + ` WHERE b.student_id = $1 AND b.status = 'confirmed' ORDER BY s.start_time`
	var bookings []models.BookingDetail
	if err := r.db.SelectContext(ctx, &bookings, query, studentID); err != nil {
		return nil, fmt.Errorf("list confirmed bookings: %w", err)
	}
	return bookings, nil
}

// ConfirmedSubjects returns the subjects for which the student currently
// holds a confirmed booking.
func (r *BookingRepository) ConfirmedSubjects(ctx context.Context, studentID string) ([]string, error) {
	const query = `SELECT DISTINCT subject FROM bookings WHERE student_id = $1 AND status = 'confirmed'`
	var subjects []string
	if err := r.db.SelectContext(ctx, &subjects, query, studentID); err != nil {
		return nil, fmt.Errorf("confirmed subjects: %w", err)
	}
	return subjects, nil
}

// ListLatestAbsences returns the most recent absent booking per subject for a
// student, the rows the absence block is judged on.
func (r *BookingRepository) ListLatestAbsences(ctx context.Context, studentID string) ([]models.BookingDetail, error) {
	query := `SELECT DISTINCT ON (b.subject) b.id, b.slot_id, b.student_id, b.group_id, b.subject, b.status,
        b.cancellation_reason, b.cancelled_at, b.marked_absent_at, b.rebooking_allowed, b.created_at, b.updated_at,
        s.start_time AS slot_start, s.end_time AS slot_end, s.faculty_id,
        uf.full_name AS faculty_name, us.full_name AS student_name, us.email AS student_email
        FROM bookings b
        JOIN slots s ON s.id = b.slot_id
        JOIN users uf ON uf.id = s.faculty_id
        JOIN users us ON us.id = b.student_id
        WHERE b.student_id = $1 AND b.status = 'absent'
        ORDER BY b.subject, b.marked_absent_at DESC NULLS LAST, b.updated_at DESC`
	var bookings []models.BookingDetail
	if err := r.db.SelectContext(ctx, &bookings, query, studentID); err != nil {
		return nil, fmt.Errorf("list latest absences: %w", err)
	}
	return bookings, nil
}

// ListAbsentForFaculty returns, per (student, subject), the latest absent
// booking on the faculty's slots that has not been cleared for rebooking.
func (r *BookingRepository) ListAbsentForFaculty(ctx context.Context, facultyID string) ([]models.BookingDetail, error) {
	query := `SELECT DISTINCT ON (b.student_id, b.subject) b.id, b.slot_id, b.student_id, b.group_id, b.subject, b.status,
        b.cancellation_reason, b.cancelled_at, b.marked_absent_at, b.rebooking_allowed, b.created_at, b.updated_at,
        s.start_time AS slot_start, s.end_time AS slot_end, s.faculty_id,
        uf.full_name AS faculty_name, us.full_name AS student_name, us.email AS student_email
        FROM bookings b
        JOIN slots s ON s.id = b.slot_id
        JOIN users uf ON uf.id = s.faculty_id
        JOIN users us ON us.id = b.student_id
        WHERE s.faculty_id = $1 AND b.status = 'absent' AND NOT b.rebooking_allowed
        ORDER BY b.student_id, b.subject, b.marked_absent_at DESC NULLS LAST, b.updated_at DESC`
	var bookings []models.BookingDetail
	if err := r.db.SelectContext(ctx, &bookings, query, facultyID); err != nil {
		return nil, fmt.Errorf("list faculty absences: %w", err)
	}
	return bookings, nil
}

// Cancel marks a booking cancelled and records reason and timestamp.
func (r *BookingRepository) Cancel(ctx context.Context, id, reason string, at time.Time) error {
	const query = `UPDATE bookings SET status = 'cancelled', cancellation_reason = $2, cancelled_at = $3, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, reason, at); err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}
	return nil
}

// Complete marks a booking completed.
func (r *BookingRepository) Complete(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE bookings SET status = 'completed', updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("complete booking: %w", err)
	}
	return nil
}

// MarkAbsent marks a booking absent and resets the rebooking flag.
func (r *BookingRepository) MarkAbsent(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE bookings SET status = 'absent', marked_absent_at = $2, rebooking_allowed = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark booking absent: %w", err)
	}
	return nil
}

// AllowRebooking lifts the absence block carried by this specific booking.
func (r *BookingRepository) AllowRebooking(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE bookings SET rebooking_allowed = TRUE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("allow rebooking: %w", err)
	}
	return nil
}

// mapClaimError normalises store failures from the claim transaction.
// Serialization and deadlock conditions are retryable; unique violations on
// the partial indexes mean another caller won the race.
func mapClaimError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return ErrTransientConflict
		case "23505":
			switch pqErr.Constraint {
			case "uq_bookings_confirmed_student_subject", "uq_bookings_confirmed_group_subject":
				return appErrors.ErrDuplicateActiveBooking
			default:
				return appErrors.ErrSlotAlreadyBooked
			}
		}
	}
	return err
}
