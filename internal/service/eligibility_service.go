package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campuskit/scheduler-api/internal/models"
	appErrors "github.com/campuskit/scheduler-api/pkg/errors"
	"github.com/campuskit/scheduler-api/pkg/clock"
)

// studentSlotCachePattern matches every cached student slot listing. Any write
// that can change what a student may see drops the whole keyspace.
const studentSlotCachePattern = "slots:student:*"

type assignmentLister interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.MentorAssignment, error)
}

type openSlotLister interface {
	ListOpenForFaculties(ctx context.Context, facultyIDs []string, now time.Time, date *time.Time) ([]models.SlotDetail, error)
}

type studentBookingReader interface {
	ConfirmedSubjects(ctx context.Context, studentID string) ([]string, error)
	ListLatestAbsences(ctx context.Context, studentID string) ([]models.BookingDetail, error)
}

type availabilityReader interface {
	GetMany(ctx context.Context, facultyIDs []string) (map[string]bool, error)
}

type slotListingCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type userBatchFinder interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

// EligibilityService decides which open slots a student may see and book.
// Visibility is the booking preconditions applied in bulk: assigned mentor,
// no confirmed booking for the subject, no unresolved absence, faculty gate
// open, slot in the future and unclaimed.
type EligibilityService struct {
	assignments  assignmentLister
	slots        openSlotLister
	bookings     studentBookingReader
	availability availabilityReader
	users        userBatchFinder
	cache        slotListingCache
	listTTL      time.Duration
	policy       *clock.Policy
	logger       *zap.Logger
}

// NewEligibilityService constructs EligibilityService.
func NewEligibilityService(assignments assignmentLister, slots openSlotLister, bookings studentBookingReader, availability availabilityReader, users userBatchFinder, cache slotListingCache, listTTL time.Duration, policy *clock.Policy, logger *zap.Logger) *EligibilityService {
	if listTTL <= 0 {
		listTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EligibilityService{
		assignments: assignments, slots: slots, bookings: bookings,
		availability: availability, users: users, cache: cache,
		listTTL: listTTL, policy: policy, logger: logger,
	}
}

// VisibleSlots returns the open slots the student is eligible to book,
// optionally restricted to one date. Listings are cached briefly; every
// booking, slot or availability write invalidates them.
func (s *EligibilityService) VisibleSlots(ctx context.Context, studentID string, date *time.Time) ([]models.SlotDetail, error) {
	key := visibleSlotsKey(studentID, date)
	if s.cache != nil {
		var cached []models.SlotDetail
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("slot cache read failed", zap.Error(err))
		}
	}

	assignments, err := s.assignments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	if len(assignments) == 0 {
		return []models.SlotDetail{}, nil
	}

	excluded, err := s.excludedSubjects(ctx, studentID)
	if err != nil {
		return nil, err
	}

	var facultyIDs []string
	for _, assignment := range assignments {
		if excluded[assignment.Subject] {
			continue
		}
		facultyIDs = append(facultyIDs, assignment.FacultyID)
	}
	if len(facultyIDs) == 0 {
		return []models.SlotDetail{}, nil
	}

	slots, err := s.slots.ListOpenForFaculties(ctx, facultyIDs, s.policy.Now(), date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list open slots")
	}
	if slots == nil {
		slots = []models.SlotDetail{}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, slots, s.listTTL); err != nil {
			s.logger.Warn("slot cache write failed", zap.Error(err))
		}
	}
	return slots, nil
}

// MentorStatus reports, per assigned mentor, whether they currently accept
// bookings.
func (s *EligibilityService) MentorStatus(ctx context.Context, studentID string) (*models.MentorStatusReport, error) {
	assignments, err := s.assignments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	if len(assignments) == 0 {
		return &models.MentorStatusReport{
			HasAssignment: false,
			Mentors:       []models.MentorStatus{},
			Message:       "no mentor has been assigned to you yet",
		}, nil
	}

	facultyIDs := make([]string, 0, len(assignments))
	for _, assignment := range assignments {
		facultyIDs = append(facultyIDs, assignment.FacultyID)
	}

	gates, err := s.availability.GetMany(ctx, facultyIDs)
	if err != nil {
		return nil, err
	}
	mentors, err := s.users.FindByIDs(ctx, facultyIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load mentors")
	}
	names := make(map[string]string, len(mentors))
	for _, mentor := range mentors {
		names[mentor.ID] = mentor.FullName
	}

	report := &models.MentorStatusReport{HasAssignment: true, Mentors: make([]models.MentorStatus, 0, len(assignments))}
	for _, assignment := range assignments {
		available, ok := gates[assignment.FacultyID]
		if !ok {
			available = true
		}
		if !available {
			report.AnyMentorBusy = true
		}
		report.Mentors = append(report.Mentors, models.MentorStatus{
			FacultyID:   assignment.FacultyID,
			FacultyName: names[assignment.FacultyID],
			Subject:     assignment.Subject,
			Available:   available,
		})
	}
	if report.AnyMentorBusy {
		report.Message = "one or more of your mentors is currently unavailable"
	}
	return report, nil
}

// excludedSubjects collects the subjects the student cannot book right now:
// subjects with a confirmed booking and subjects blocked by an uncleared
// absence.
func (s *EligibilityService) excludedSubjects(ctx context.Context, studentID string) (map[string]bool, error) {
	excluded := make(map[string]bool)

	held, err := s.bookings.ConfirmedSubjects(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load held subjects")
	}
	for _, subject := range held {
		excluded[subject] = true
	}

	absences, err := s.bookings.ListLatestAbsences(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load absences")
	}
	for _, absence := range absences {
		if !absence.RebookingAllowed {
			excluded[absence.Subject] = true
		}
	}
	return excluded, nil
}

func visibleSlotsKey(studentID string, date *time.Time) string {
	if date != nil {
		return fmt.Sprintf("slots:student:%s:%s", studentID, date.Format("2006-01-02"))
	}
	return fmt.Sprintf("slots:student:%s:all", studentID)
}
