package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/scheduler-api/internal/models"
	"github.com/campuskit/scheduler-api/pkg/clock"
	appErrors "github.com/campuskit/scheduler-api/pkg/errors"
)

type slotRepository interface {
	FindByID(ctx context.Context, id string) (*models.Slot, error)
	ListByFaculty(ctx context.Context, filter models.SlotFilter, now time.Time) ([]models.SlotDetail, error)
	Create(ctx context.Context, slot *models.Slot) error
	BulkInsert(ctx context.Context, facultyID string, from, to time.Time, candidates []models.Slot) ([]models.Slot, int, error)
	Delete(ctx context.Context, facultyID, slotID string, now time.Time) error
	DeleteDayOpen(ctx context.Context, facultyID string, dayStart, dayEnd time.Time) (int, int, error)
}

type facultySubjectResolver interface {
	SubjectsForFaculty(ctx context.Context, facultyID string) ([]string, error)
}

type slotCacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

type generatorMetrics interface {
	AddSlotsGenerated(n int)
}

// CreateSlotRequest describes a single slot creation payload.
type CreateSlotRequest struct {
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
}

// BulkSlotRequest describes the auto-generation payload: a range is cut into
// fixed-length slots separated by a fixed break.
type BulkSlotRequest struct {
	StartTime            time.Time `json:"start_time" validate:"required"`
	EndTime              time.Time `json:"end_time" validate:"required"`
	SlotDurationMinutes  int       `json:"slot_duration_minutes" validate:"required,oneof=5 10 15"`
	BreakDurationMinutes int       `json:"break_duration_minutes" validate:"oneof=0 5 10 15"`
}

// SlotService owns slot generation and the faculty slot lifecycle.
type SlotService struct {
	repo        slotRepository
	assignments facultySubjectResolver
	cache       slotCacheInvalidator
	metrics     generatorMetrics
	policy      *clock.Policy
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSlotService constructs SlotService.
func NewSlotService(repo slotRepository, assignments facultySubjectResolver, cache slotCacheInvalidator, metrics generatorMetrics, policy *clock.Policy, validate *validator.Validate, logger *zap.Logger) *SlotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{repo: repo, assignments: assignments, cache: cache, metrics: metrics, policy: policy, validator: validate, logger: logger}
}

// GenerateCandidates cuts [start, end) into candidate intervals of slotDuration
// separated by breakDuration. It is pure and deterministic: the same inputs
// always yield the same sequence. A candidate is emitted only while it fits
// entirely inside the range.
func GenerateCandidates(start, end time.Time, slotDuration, breakDuration time.Duration) []models.SlotInterval {
	var candidates []models.SlotInterval
	current := start
	for !current.Add(slotDuration).After(end) {
		candidates = append(candidates, models.SlotInterval{Start: current, End: current.Add(slotDuration)})
		current = current.Add(slotDuration + breakDuration)
	}
	return candidates
}

// List returns the faculty's slots with booking state attached.
func (s *SlotService) List(ctx context.Context, facultyID string, date *time.Time, futureOnly bool) ([]models.SlotDetail, error) {
	slots, err := s.repo.ListByFaculty(ctx, models.SlotFilter{FacultyID: facultyID, Date: date, FutureOnly: futureOnly}, s.policy.Now())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slots")
	}
	return slots, nil
}

// Create persists a single slot after range validation and the overlap check.
func (s *SlotService) Create(ctx context.Context, facultyID string, req CreateSlotRequest) (*models.Slot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	if err := s.validateRange(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	subject, err := s.resolveSubject(ctx, facultyID)
	if err != nil {
		return nil, err
	}

	slot := &models.Slot{
		FacultyID: facultyID,
		Subject:   subject,
		StartTime: req.StartTime.UTC(),
		EndTime:   req.EndTime.UTC(),
	}
	if err := s.repo.Create(ctx, slot); err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrValidation.Code {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create slot")
	}

	s.invalidateListings(ctx)
	return slot, nil
}

// BulkCreate generates candidates for the requested range, silently skips the
// ones colliding with existing slots and persists the survivors as one batch.
// Partial success is deliberate: skipped candidates are reported, not fatal.
func (s *SlotService) BulkCreate(ctx context.Context, facultyID string, req BulkSlotRequest) (*models.BulkSlotResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk slot payload")
	}
	if err := s.validateRange(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	subject, err := s.resolveSubject(ctx, facultyID)
	if err != nil {
		return nil, err
	}

	start := req.StartTime.UTC()
	end := req.EndTime.UTC()
	slotDuration := time.Duration(req.SlotDurationMinutes) * time.Minute
	breakDuration := time.Duration(req.BreakDurationMinutes) * time.Minute

	candidates := GenerateCandidates(start, end, slotDuration, breakDuration)
	if len(candidates) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("time range is too short for a %d-minute slot", req.SlotDurationMinutes))
	}

	batch := make([]models.Slot, 0, len(candidates))
	for _, candidate := range candidates {
		batch = append(batch, models.Slot{
			FacultyID: facultyID,
			Subject:   subject,
			StartTime: candidate.Start,
			EndTime:   candidate.End,
		})
	}

	// The repository judges overlaps inside the insert transaction, under a
	// per-faculty lock, so the skip decision and the writes see one snapshot.
	persisted, skipped, err := s.repo.BulkInsert(ctx, facultyID, start, end, batch)
	if err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrValidation.Code {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist generated slots")
	}
	if len(persisted) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no valid slots could be generated, check for overlaps or an invalid time range")
	}

	if s.metrics != nil {
		s.metrics.AddSlotsGenerated(len(persisted))
	}
	s.invalidateListings(ctx)
	s.logger.Info("slots generated",
		zap.String("faculty_id", facultyID),
		zap.Int("created", len(persisted)),
		zap.Int("skipped", skipped))

	return &models.BulkSlotResult{SlotsCreated: len(persisted), Skipped: skipped, Slots: persisted}, nil
}

// Delete removes a future, history-free slot owned by the faculty.
func (s *SlotService) Delete(ctx context.Context, facultyID, slotID string) error {
	if err := s.repo.Delete(ctx, facultyID, slotID, s.policy.Now()); err != nil {
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			return err
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete slot")
	}
	s.invalidateListings(ctx)
	return nil
}

// DeleteToday removes today's open slots for the faculty, skipping anything
// with booking history. Refuses while confirmed bookings exist.
func (s *SlotService) DeleteToday(ctx context.Context, facultyID string) (*models.TodayCleanupResult, error) {
	now := s.policy.Now()
	dayStart := now.Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	deleted, skipped, err := s.repo.DeleteDayOpen(ctx, facultyID, dayStart, dayEnd)
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete today's slots")
	}

	s.invalidateListings(ctx)
	return &models.TodayCleanupResult{
		DeletedCount: deleted,
		SkippedCount: skipped,
		Date:         dayStart.Format("2006-01-02"),
	}, nil
}

func (s *SlotService) validateRange(start, end time.Time) error {
	if !end.After(start) {
		return appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
	}
	if s.policy.IsPast(start) {
		return appErrors.Clone(appErrors.ErrValidation, "start time must be in the future")
	}
	return nil
}

// resolveSubject derives the faculty's single subject from the mentor
// assignment data. A faculty mapped to zero or several subjects cannot
// publish slots.
func (s *SlotService) resolveSubject(ctx context.Context, facultyID string) (string, error) {
	subjects, err := s.assignments.SubjectsForFaculty(ctx, facultyID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve faculty subject")
	}
	if len(subjects) == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "faculty subject not configured, add a mentor assignment first")
	}
	if len(subjects) > 1 {
		return "", appErrors.Clone(appErrors.ErrValidation, "faculty must be assigned to exactly one subject")
	}
	return subjects[0], nil
}

func (s *SlotService) invalidateListings(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, studentSlotCachePattern); err != nil {
		s.logger.Warn("slot cache invalidation failed", zap.Error(err))
	}
}
