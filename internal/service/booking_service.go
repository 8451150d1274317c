package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/campuskit/scheduler-api/internal/models"
	"github.com/campuskit/scheduler-api/internal/repository"
	"github.com/campuskit/scheduler-api/pkg/clock"
	appErrors "github.com/campuskit/scheduler-api/pkg/errors"
)

type bookingRepository interface {
	Claim(ctx context.Context, booking *models.Booking, now time.Time) error
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	FindDetailByID(ctx context.Context, id string) (*models.BookingDetail, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.BookingDetail, error)
	ListConfirmedByStudent(ctx context.Context, studentID string) ([]models.BookingDetail, error)
	ListLatestAbsences(ctx context.Context, studentID string) ([]models.BookingDetail, error)
	ListAbsentForFaculty(ctx context.Context, facultyID string) ([]models.BookingDetail, error)
	Cancel(ctx context.Context, id, reason string, at time.Time) error
	Complete(ctx context.Context, id string, at time.Time) error
	MarkAbsent(ctx context.Context, id string, at time.Time) error
	AllowRebooking(ctx context.Context, id string, at time.Time) error
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type bookingMetrics interface {
	IncBookingsCreated()
	IncBookingConflicts(reason string)
}

// Actor identifies the authenticated caller of a booking operation.
type Actor struct {
	ID   string
	Role models.UserRole
}

// CreateBookingRequest carries the student's claim on a slot. GroupID is
// optional; when supplied it must match the group stored on the student
// record, which stays the authoritative value.
type CreateBookingRequest struct {
	SlotID  string `json:"slot_id" validate:"required,uuid4"`
	GroupID string `json:"group_id" validate:"max=100"`
}

// CancelBookingRequest carries an optional reason.
type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// BookingService drives the booking lifecycle: claim, cancel, complete,
// absence marking and the rebooking unlock.
type BookingService struct {
	repo      bookingRepository
	users     userFinder
	cache     slotCacheInvalidator
	metrics   bookingMetrics
	policy    *clock.Policy
	retries   int
	backoff   time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBookingService constructs BookingService. retries bounds how many times
// a transient store conflict during claim is retried before the caller is
// told the slot is gone.
func NewBookingService(repo bookingRepository, users userFinder, cache slotCacheInvalidator, metrics bookingMetrics, policy *clock.Policy, retries int, backoff time.Duration, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if retries <= 0 {
		retries = 3
	}
	if backoff <= 0 {
		backoff = 25 * time.Millisecond
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		repo: repo, users: users, cache: cache, metrics: metrics,
		policy: policy, retries: retries, backoff: backoff, validator: validate, logger: logger,
	}
}

// Create claims a slot for the student. The repository runs the whole
// precondition chain under a row lock; this layer only retries transient
// conflicts and translates exhaustion into the conflict the student would
// have hit anyway.
func (s *BookingService) Create(ctx context.Context, studentID string, req CreateBookingRequest) (*models.BookingDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}

	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrUnauthorized
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if req.GroupID != "" && req.GroupID != student.GroupID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "group_id does not match your registered group")
	}

	booking := &models.Booking{SlotID: req.SlotID, StudentID: studentID, GroupID: student.GroupID}

	backoff := retry.WithMaxRetries(uint64(s.retries), retry.NewConstant(s.backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if claimErr := s.repo.Claim(ctx, booking, s.policy.Now()); claimErr != nil {
			if errors.Is(claimErr, repository.ErrTransientConflict) {
				return retry.RetryableError(claimErr)
			}
			return claimErr
		}
		return nil
	})
	if err != nil {
		return nil, s.claimFailure(studentID, req.SlotID, err)
	}

	if s.metrics != nil {
		s.metrics.IncBookingsCreated()
	}
	s.invalidateListings(ctx)
	s.logger.Info("booking created",
		zap.String("booking_id", booking.ID),
		zap.String("slot_id", booking.SlotID),
		zap.String("student_id", studentID),
		zap.String("subject", booking.Subject))

	detail, err := s.repo.FindDetailByID(ctx, booking.ID)
	if err != nil {
		// The claim committed; return what we hold rather than failing the call.
		s.logger.Warn("booking detail fetch failed after claim", zap.Error(err))
		return &models.BookingDetail{Booking: *booking}, nil
	}
	return detail, nil
}

func (s *BookingService) claimFailure(studentID, slotID string, err error) error {
	if errors.Is(err, repository.ErrTransientConflict) {
		// Retries exhausted under heavy contention. Whatever we raced against
		// almost certainly claimed the slot.
		if s.metrics != nil {
			s.metrics.IncBookingConflicts("transient_exhausted")
		}
		s.logger.Warn("claim retries exhausted",
			zap.String("slot_id", slotID),
			zap.String("student_id", studentID))
		return appErrors.ErrSlotAlreadyBooked
	}
	if s.metrics != nil {
		if appErr := appErrors.FromError(err); appErr.Status == 409 {
			s.metrics.IncBookingConflicts(appErr.Code)
		}
	}
	if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create booking")
}

// Cancel cancels a confirmed booking. Students may cancel only their own
// bookings and only outside the cancellation window; faculty may cancel any
// confirmed booking on their own slots at any time.
func (s *BookingService) Cancel(ctx context.Context, actor Actor, bookingID string, req CancelBookingRequest) (*models.BookingDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancellation payload")
	}

	detail, err := s.findDetail(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if detail.Status != models.BookingStatusConfirmed {
		return nil, appErrors.ErrNotConfirmed
	}

	switch actor.Role {
	case models.RoleStudent:
		if detail.StudentID != actor.ID {
			return nil, appErrors.ErrForbidden
		}
		if s.policy.IsPast(detail.SlotStart) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "cannot cancel a booking for a past slot")
		}
		if s.policy.WithinCancellationWindow(detail.SlotStart) {
			hours := int(s.policy.CancellationWindow().Hours())
			return nil, appErrors.Clone(appErrors.ErrWithinCancellationWindow,
				fmt.Sprintf("bookings cannot be cancelled less than %d hours before the slot", hours))
		}
	case models.RoleFaculty:
		if detail.FacultyID != actor.ID {
			return nil, appErrors.ErrForbidden
		}
	default:
		return nil, appErrors.ErrForbidden
	}

	reason := req.Reason
	if reason == "" && actor.Role == models.RoleFaculty {
		reason = "cancelled by faculty"
	}
	if err := s.repo.Cancel(ctx, bookingID, reason, s.policy.Now()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel booking")
	}

	s.invalidateListings(ctx)
	s.logger.Info("booking cancelled",
		zap.String("booking_id", bookingID),
		zap.String("actor_id", actor.ID),
		zap.String("actor_role", string(actor.Role)))

	return s.findDetail(ctx, bookingID)
}

// Complete marks a confirmed booking completed. Idempotent: completing an
// already completed booking is a no-op success.
func (s *BookingService) Complete(ctx context.Context, facultyID, bookingID string) (*models.BookingDetail, error) {
	detail, err := s.facultyOwned(ctx, facultyID, bookingID)
	if err != nil {
		return nil, err
	}
	if detail.Status == models.BookingStatusCompleted {
		return detail, nil
	}
	if detail.Status != models.BookingStatusConfirmed {
		return nil, appErrors.ErrNotConfirmed
	}
	if err := s.repo.Complete(ctx, bookingID, s.policy.Now()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete booking")
	}
	return s.findDetail(ctx, bookingID)
}

// MarkAbsent marks a confirmed booking absent, which blocks the student from
// the subject until AllowRebooking. Idempotent on already absent bookings.
func (s *BookingService) MarkAbsent(ctx context.Context, facultyID, bookingID string) (*models.BookingDetail, error) {
	detail, err := s.facultyOwned(ctx, facultyID, bookingID)
	if err != nil {
		return nil, err
	}
	if detail.Status == models.BookingStatusAbsent {
		return detail, nil
	}
	if detail.Status != models.BookingStatusConfirmed {
		return nil, appErrors.ErrNotConfirmed
	}
	if err := s.repo.MarkAbsent(ctx, bookingID, s.policy.Now()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark booking absent")
	}
	s.logger.Info("student marked absent",
		zap.String("booking_id", bookingID),
		zap.String("student_id", detail.StudentID),
		zap.String("subject", detail.Subject))
	return s.findDetail(ctx, bookingID)
}

// AllowRebooking lifts the subject block carried by an absent booking.
func (s *BookingService) AllowRebooking(ctx context.Context, facultyID, bookingID string) (*models.BookingDetail, error) {
	detail, err := s.facultyOwned(ctx, facultyID, bookingID)
	if err != nil {
		return nil, err
	}
	if detail.Status != models.BookingStatusAbsent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rebooking can only be allowed on an absent booking")
	}
	if detail.RebookingAllowed {
		return detail, nil
	}
	if err := s.repo.AllowRebooking(ctx, bookingID, s.policy.Now()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allow rebooking")
	}
	s.logger.Info("rebooking allowed",
		zap.String("booking_id", bookingID),
		zap.String("student_id", detail.StudentID),
		zap.String("subject", detail.Subject))
	return s.findDetail(ctx, bookingID)
}

// ListForStudent returns the student's bookings, optionally filtered by status.
func (s *BookingService) ListForStudent(ctx context.Context, studentID string, status models.BookingStatus) ([]models.BookingDetail, error) {
	if status != "" && !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown booking status")
	}
	bookings, err := s.repo.List(ctx, models.BookingFilter{StudentID: studentID, Status: status})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	return bookings, nil
}

// Current returns the student's confirmed bookings ordered by slot start.
func (s *BookingService) Current(ctx context.Context, studentID string) ([]models.BookingDetail, error) {
	bookings, err := s.repo.ListConfirmedByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list current bookings")
	}
	return bookings, nil
}

// BlockedSubjects reports, per subject with absence history, whether the
// student is currently blocked from booking it.
func (s *BookingService) BlockedSubjects(ctx context.Context, studentID string) ([]models.BlockedSubject, error) {
	absences, err := s.repo.ListLatestAbsences(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list absences")
	}
	blocked := make([]models.BlockedSubject, 0, len(absences))
	for _, absence := range absences {
		entry := models.BlockedSubject{
			Subject:        absence.Subject,
			Blocked:        !absence.RebookingAllowed,
			BookingID:      absence.ID,
			MarkedAbsentAt: absence.MarkedAbsentAt,
		}
		if entry.Blocked {
			entry.Detail = "you were marked absent; ask your faculty to allow rebooking"
		} else {
			entry.Detail = "rebooking has been allowed"
		}
		blocked = append(blocked, entry)
	}
	return blocked, nil
}

// ListForFaculty returns bookings on the faculty's slots. confirmedOnly wins
// over a status filter when both are set.
func (s *BookingService) ListForFaculty(ctx context.Context, facultyID string, status models.BookingStatus, confirmedOnly bool) ([]models.BookingDetail, error) {
	if status != "" && !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown booking status")
	}
	bookings, err := s.repo.List(ctx, models.BookingFilter{FacultyID: facultyID, Status: status, ConfirmedOnly: confirmedOnly})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	return bookings, nil
}

// AbsentStudents returns, per (student, subject), the latest uncleared absence
// on the faculty's slots.
func (s *BookingService) AbsentStudents(ctx context.Context, facultyID string) ([]models.AbsentStudent, error) {
	absences, err := s.repo.ListAbsentForFaculty(ctx, facultyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list absent students")
	}
	students := make([]models.AbsentStudent, 0, len(absences))
	for _, absence := range absences {
		students = append(students, models.AbsentStudent{
			Student: models.UserInfo{
				ID:       absence.StudentID,
				Email:    absence.StudentEmail,
				FullName: absence.StudentName,
				Role:     models.RoleStudent,
			},
			Subject:        absence.Subject,
			BookingID:      absence.ID,
			MarkedAbsentAt: absence.MarkedAbsentAt,
			SlotStart:      absence.SlotStart,
			SlotEnd:        absence.SlotEnd,
		})
	}
	return students, nil
}

func (s *BookingService) facultyOwned(ctx context.Context, facultyID, bookingID string) (*models.BookingDetail, error) {
	detail, err := s.findDetail(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if detail.FacultyID != facultyID {
		return nil, appErrors.ErrForbidden
	}
	return detail, nil
}

func (s *BookingService) findDetail(ctx context.Context, bookingID string) (*models.BookingDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrBookingNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	return detail, nil
}

func (s *BookingService) invalidateListings(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, studentSlotCachePattern); err != nil {
		s.logger.Warn("slot cache invalidation failed", zap.Error(err))
	}
}
