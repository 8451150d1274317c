package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuskit/scheduler-api/internal/models"
	"github.com/campuskit/scheduler-api/internal/repository"
	"github.com/campuskit/scheduler-api/pkg/clock"
	appErrors "github.com/campuskit/scheduler-api/pkg/errors"
)

type mockBookingRepo struct {
	claimErrs    []error
	claimCalls   int
	claimed      []models.Booking
	detail       *models.BookingDetail
	detailErr    error
	listed       []models.BookingDetail
	absences     []models.BookingDetail
	cancelled    []string
	completed    []string
	markedAbsent []string
	reallowed    []string
}

func (m *mockBookingRepo) Claim(ctx context.Context, booking *models.Booking, now time.Time) error {
	m.claimCalls++
	if len(m.claimErrs) > 0 {
		err := m.claimErrs[0]
		m.claimErrs = m.claimErrs[1:]
		if err != nil {
			return err
		}
	}
	booking.ID = "booking-1"
	booking.Subject = "Mathematics"
	booking.Status = models.BookingStatusConfirmed
	m.claimed = append(m.claimed, *booking)
	return nil
}

func (m *mockBookingRepo) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	if m.detail == nil {
		return nil, sql.ErrNoRows
	}
	return &m.detail.Booking, nil
}

func (m *mockBookingRepo) FindDetailByID(ctx context.Context, id string) (*models.BookingDetail, error) {
	if m.detailErr != nil {
		return nil, m.detailErr
	}
	if m.detail == nil {
		return nil, sql.ErrNoRows
	}
	return m.detail, nil
}

func (m *mockBookingRepo) List(ctx context.Context, filter models.BookingFilter) ([]models.BookingDetail, error) {
	return m.listed, nil
}

func (m *mockBookingRepo) ListConfirmedByStudent(ctx context.Context, studentID string) ([]models.BookingDetail, error) {
	return m.listed, nil
}

func (m *mockBookingRepo) ListLatestAbsences(ctx context.Context, studentID string) ([]models.BookingDetail, error) {
	return m.absences, nil
}

func (m *mockBookingRepo) ListAbsentForFaculty(ctx context.Context, facultyID string) ([]models.BookingDetail, error) {
	return m.absences, nil
}

func (m *mockBookingRepo) Cancel(ctx context.Context, id, reason string, at time.Time) error {
	m.cancelled = append(m.cancelled, id)
	m.detail.Status = models.BookingStatusCancelled
	m.detail.CancellationReason = reason
	return nil
}

func (m *mockBookingRepo) Complete(ctx context.Context, id string, at time.Time) error {
	m.completed = append(m.completed, id)
	m.detail.Status = models.BookingStatusCompleted
	return nil
}

func (m *mockBookingRepo) MarkAbsent(ctx context.Context, id string, at time.Time) error {
	m.markedAbsent = append(m.markedAbsent, id)
	m.detail.Status = models.BookingStatusAbsent
	return nil
}

func (m *mockBookingRepo) AllowRebooking(ctx context.Context, id string, at time.Time) error {
	m.reallowed = append(m.reallowed, id)
	m.detail.RebookingAllowed = true
	return nil
}

type mockUserRepo struct {
	user *models.User
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.user == nil {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

type mockBookingMetrics struct {
	created   int
	conflicts map[string]int
}

func (m *mockBookingMetrics) IncBookingsCreated() { m.created++ }

func (m *mockBookingMetrics) IncBookingConflicts(reason string) {
	if m.conflicts == nil {
		m.conflicts = make(map[string]int)
	}
	m.conflicts[reason]++
}

const validSlotID = "5f0c2a9e-6f2b-4a34-9c1d-2f6d3b8e4a10"

func newBookingService(repo *mockBookingRepo, now time.Time) (*BookingService, *mockInvalidator, *mockBookingMetrics) {
	inv := &mockInvalidator{}
	metrics := &mockBookingMetrics{}
	users := &mockUserRepo{user: &models.User{ID: "student-1", Role: models.RoleStudent, GroupID: "group-7"}}
	policy := clock.NewPolicy(clock.Fixed{Instant: now}, 24*time.Hour)
	svc := NewBookingService(repo, users, inv, metrics, policy, 3, time.Millisecond, nil, zap.NewNop())
	return svc, inv, metrics
}

func confirmedDetail(now time.Time) *models.BookingDetail {
	return &models.BookingDetail{
		Booking: models.Booking{
			ID:        "booking-1",
			SlotID:    validSlotID,
			StudentID: "student-1",
			Subject:   "Mathematics",
			Status:    models.BookingStatusConfirmed,
		},
		SlotStart:   now.Add(48 * time.Hour),
		SlotEnd:     now.Add(48*time.Hour + 15*time.Minute),
		FacultyID:   "faculty-1",
		FacultyName: "Dr. Rao",
	}
}

func TestBookingServiceCreate(t *testing.T) {
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)
	repo := &mockBookingRepo{}
	repo.detail = confirmedDetail(now)
	svc, inv, metrics := newBookingService(repo, now)

	detail, err := svc.Create(context.Background(), "student-1", CreateBookingRequest{SlotID: validSlotID})
	require.NoError(t, err)
	assert.Equal(t, "booking-1", detail.ID)
	assert.Equal(t, 1, repo.claimCalls)
	assert.Equal(t, 1, metrics.created)
	assert.Contains(t, inv.patterns, studentSlotCachePattern)
}

func TestBookingServiceCreateRetriesTransientConflicts(t *testing.T) {
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)
	repo := &mockBookingRepo{claimErrs: []error{repository.ErrTransientConflict, repository.ErrTransientConflict}}
	repo.detail = confirmedDetail(now)
	svc, _, _ := newBookingService(repo, now)

	_, err := svc.Create(context.Background(), "student-1", CreateBookingRequest{SlotID: validSlotID})
	require.NoError(t, err)
	assert.Equal(t, 3, repo.claimCalls)
}

func TestBookingServiceCreateExhaustedRetriesReportConflict(t *testing.T) {
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)
	repo := &mockBookingRepo{claimErrs: []error{
		repository.ErrTransientConflict,
		repository.ErrTransientConflict,
		repository.ErrTransientConflict,
		repository.ErrTransientConflict,
	}}
	svc, _, metrics := newBookingService(repo, now)

	_, err := svc.Create(context.Background(), "student-1", CreateBookingRequest{SlotID: validSlotID})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSlotAlreadyBooked))
	assert.Equal(t, 1, metrics.conflicts["transient_exhausted"])
}

func TestBookingServiceCreateTerminalConflictsPassThrough(t *testing.T) {
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		err  *appErrors.Error
	}{
		{"slot already booked", appErrors.ErrSlotAlreadyBooked},
		{"duplicate active booking", appErrors.ErrDuplicateActiveBooking},
		{"subject blocked", appErrors.ErrSubjectBlocked},
		{"faculty unavailable", appErrors.ErrFacultyUnavailable},
		{"slot not found", appErrors.ErrSlotNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &mockBookingRepo{claimErrs: []error{tc.err}}
			svc, _, _ := newBookingService(repo, now)

			_, err := svc.Create(context.Background(), "student-1", CreateBookingRequest{SlotID: validSlotID})
			require.Error(t, err)
			assert.True(t, appErrors.Is(err, tc.err))
			assert.Equal(t, 1, repo.claimCalls)
		})
	}
}

func TestBookingServiceCreateGroupMatching(t *testing.T) {
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)

	t.Run("mismatched group is rejected before the claim", func(t *testing.T) {
		repo := &mockBookingRepo{}
		svc, _, _ := newBookingService(repo, now)

		_, err := svc.Create(context.Background(), "student-1",
			CreateBookingRequest{SlotID: validSlotID, GroupID: "group-9"})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		assert.Zero(t, repo.claimCalls)
	})

	t.Run("matching group claims with the stored group", func(t *testing.T) {
		repo := &mockBookingRepo{}
		repo.detail = confirmedDetail(now)
		svc, _, _ := newBookingService(repo, now)

		_, err := svc.Create(context.Background(), "student-1",
			CreateBookingRequest{SlotID: validSlotID, GroupID: "group-7"})
		require.NoError(t, err)
		require.Len(t, repo.claimed, 1)
		assert.Equal(t, "group-7", repo.claimed[0].GroupID)
	})

	t.Run("omitted group falls back to the stored group", func(t *testing.T) {
		repo := &mockBookingRepo{}
		repo.detail = confirmedDetail(now)
		svc, _, _ := newBookingService(repo, now)

		_, err := svc.Create(context.Background(), "student-1",
			CreateBookingRequest{SlotID: validSlotID})
		require.NoError(t, err)
		require.Len(t, repo.claimed, 1)
		assert.Equal(t, "group-7", repo.claimed[0].GroupID)
	})
}

func TestBookingServiceCreateRejectsBadSlotID(t *testing.T) {
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)
	repo := &mockBookingRepo{}
	svc, _, _ := newBookingService(repo, now)

	_, err := svc.Create(context.Background(), "student-1", CreateBookingRequest{SlotID: "not-a-uuid"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Zero(t, repo.claimCalls)
}

func TestBookingServiceStudentCancelOutsideWindow(t *testing.T) {
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)
	repo := &mockBookingRepo{detail: confirmedDetail(now)}
	repo.detail.SlotStart = now.Add(25 * time.Hour)
	svc, _, _ := newBookingService(repo, now)

	detail, err := svc.Cancel(context.Background(), Actor{ID: "student-1", Role: models.RoleStudent}, "booking-1", CancelBookingRequest{Reason: "schedule change"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, detail.Status)
	assert.Equal(t, "schedule change", detail.CancellationReason)
}

func TestBookingServiceStudentCancelInsideWindowRejected(t *testing.T) {
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)
	repo := &mockBookingRepo{detail: confirmedDetail(now)}
	repo.detail.SlotStart = now.Add(23 * time.Hour)
	svc, _, _ := newBookingService(repo, now)

	_, err := svc.Cancel(context.Background(), Actor{ID: "student-1", Role: models.RoleStudent}, "booking-1", CancelBookingRequest{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrWithinCancellationWindow))
	assert.Empty(t, repo.cancelled)
}

func TestBookingServiceStudentCancelExactBoundaryAllowed(t *testing.T) {
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)
	repo := &mockBookingRepo{detail: confirmedDetail(now)}
	repo.detail.SlotStart = now.Add(24 * time.Hour)
	svc, _, _ := newBookingService(repo, now)

	_, err := svc.Cancel(context.Background(), Actor{ID: "student-1", Role: models.RoleStudent}, "booking-1", CancelBookingRequest{})
	require.NoError(t, err)
}

func TestBookingServiceFacultyCancelInsideWindow(t *testing.T) {
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)
	repo := &mockBookingRepo{detail: confirmedDetail(now)}
	repo.detail.SlotStart = now.Add(time.Hour)
	svc, _, _ := newBookingService(repo, now)

	detail, err := svc.Cancel(context.Background(), Actor{ID: "faculty-1", Role: models.RoleFaculty}, "booking-1", CancelBookingRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, detail.Status)
	assert.Equal(t, "cancelled by faculty", detail.CancellationReason)
}

func TestBookingServiceCancelOwnership(t *testing.T) {
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)

	t.Run("student cannot cancel another student's booking", func(t *testing.T) {
		repo := &mockBookingRepo{detail: confirmedDetail(now)}
		svc, _, _ := newBookingService(repo, now)
		_, err := svc.Cancel(context.Background(), Actor{ID: "student-2", Role: models.RoleStudent}, "booking-1", CancelBookingRequest{})
		assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	})

	t.Run("faculty cannot cancel a booking on another faculty's slot", func(t *testing.T) {
		repo := &mockBookingRepo{detail: confirmedDetail(now)}
		svc, _, _ := newBookingService(repo, now)
		_, err := svc.Cancel(context.Background(), Actor{ID: "faculty-2", Role: models.RoleFaculty}, "booking-1", CancelBookingRequest{})
		assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	})
}

func TestBookingServiceCancelRequiresConfirmed(t *testing.T) {
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)
	repo := &mockBookingRepo{detail: confirmedDetail(now)}
	repo.detail.Status = models.BookingStatusCancelled
	svc, _, _ := newBookingService(repo, now)

	_, err := svc.Cancel(context.Background(), Actor{ID: "student-1", Role: models.RoleStudent}, "booking-1", CancelBookingRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotConfirmed))
}

func TestBookingServiceCancelNotFound(t *testing.T) {
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)
	svc, _, _ := newBookingService(&mockBookingRepo{}, now)

	_, err := svc.Cancel(context.Background(), Actor{ID: "student-1", Role: models.RoleStudent}, "missing", CancelBookingRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrBookingNotFound))
}

func TestBookingServiceComplete(t *testing.T) {
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)
	repo := &mockBookingRepo{detail: confirmedDetail(now)}
	svc, _, _ := newBookingService(repo, now)

	detail, err := svc.Complete(context.Background(), "faculty-1", "booking-1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCompleted, detail.Status)

	// Completing again is a no-op.
	_, err = svc.Complete(context.Background(), "faculty-1", "booking-1")
	require.NoError(t, err)
	assert.Len(t, repo.completed, 1)
}

func TestBookingServiceMarkAbsentIdempotent(t *testing.T) {
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)
	repo := &mockBookingRepo{detail: confirmedDetail(now)}
	svc, _, _ := newBookingService(repo, now)

	detail, err := svc.MarkAbsent(context.Background(), "faculty-1", "booking-1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusAbsent, detail.Status)

	_, err = svc.MarkAbsent(context.Background(), "faculty-1", "booking-1")
	require.NoError(t, err)
	assert.Len(t, repo.markedAbsent, 1)
}

func TestBookingServiceAllowRebooking(t *testing.T) {
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)

	t.Run("lifts the block on an absent booking", func(t *testing.T) {
		repo := &mockBookingRepo{detail: confirmedDetail(now)}
		repo.detail.Status = models.BookingStatusAbsent
		svc, _, _ := newBookingService(repo, now)

		detail, err := svc.AllowRebooking(context.Background(), "faculty-1", "booking-1")
		require.NoError(t, err)
		assert.True(t, detail.RebookingAllowed)
	})

	t.Run("rejected on a confirmed booking", func(t *testing.T) {
		repo := &mockBookingRepo{detail: confirmedDetail(now)}
		svc, _, _ := newBookingService(repo, now)

		_, err := svc.AllowRebooking(context.Background(), "faculty-1", "booking-1")
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	})

	t.Run("idempotent when already allowed", func(t *testing.T) {
		repo := &mockBookingRepo{detail: confirmedDetail(now)}
		repo.detail.Status = models.BookingStatusAbsent
		repo.detail.RebookingAllowed = true
		svc, _, _ := newBookingService(repo, now)

		_, err := svc.AllowRebooking(context.Background(), "faculty-1", "booking-1")
		require.NoError(t, err)
		assert.Empty(t, repo.reallowed)
	})
}

func TestBookingServiceBlockedSubjects(t *testing.T) {
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)
	absentAt := now.Add(-48 * time.Hour)
	repo := &mockBookingRepo{absences: []models.BookingDetail{
		{
			Booking: models.Booking{ID: "b-1", Subject: "Mathematics", Status: models.BookingStatusAbsent, MarkedAbsentAt: &absentAt},
		},
		{
			Booking: models.Booking{ID: "b-2", Subject: "Physics", Status: models.BookingStatusAbsent, RebookingAllowed: true},
		},
	}}
	svc, _, _ := newBookingService(repo, now)

	blocked, err := svc.BlockedSubjects(context.Background(), "student-1")
	require.NoError(t, err)
	require.Len(t, blocked, 2)
	assert.True(t, blocked[0].Blocked)
	assert.Equal(t, "Mathematics", blocked[0].Subject)
	assert.False(t, blocked[1].Blocked)
}

func TestBookingServiceAbsentStudents(t *testing.T) {
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)
	repo := &mockBookingRepo{absences: []models.BookingDetail{
		{
			Booking:      models.Booking{ID: "b-1", StudentID: "student-1", Subject: "Mathematics", Status: models.BookingStatusAbsent},
			SlotStart:    now.Add(-time.Hour),
			SlotEnd:      now.Add(-45 * time.Minute),
			StudentName:  "Asha Verma",
			StudentEmail: "asha@example.edu",
		},
	}}
	svc, _, _ := newBookingService(repo, now)

	students, err := svc.AbsentStudents(context.Background(), "faculty-1")
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "student-1", students[0].Student.ID)
	assert.Equal(t, "Asha Verma", students[0].Student.FullName)
	assert.Equal(t, "Mathematics", students[0].Subject)
}

func TestBookingServiceListRejectsUnknownStatus(t *testing.T) {
	now := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)
	svc, _, _ := newBookingService(&mockBookingRepo{}, now)

	_, err := svc.ListForStudent(context.Background(), "student-1", "pending")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
