package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/scheduler-api/internal/middleware"
	"github.com/campuskit/scheduler-api/internal/models"
	"github.com/campuskit/scheduler-api/internal/service"
	appErrors "github.com/campuskit/scheduler-api/pkg/errors"
)

type fakeBookingSrv struct {
	detail            *models.BookingDetail
	bookings          []models.BookingDetail
	blocked           []models.BlockedSubject
	absent            []models.AbsentStudent
	err               error
	lastActor         service.Actor
	lastSlotID        string
	lastStatus        models.BookingStatus
	lastConfirmedOnly bool
}

func (f *fakeBookingSrv) Create(_ context.Context, studentID string, req service.CreateBookingRequest) (*models.BookingDetail, error) {
	f.lastSlotID = req.SlotID
	return f.detail, f.err
}

func (f *fakeBookingSrv) Cancel(_ context.Context, actor service.Actor, bookingID string, req service.CancelBookingRequest) (*models.BookingDetail, error) {
	f.lastActor = actor
	return f.detail, f.err
}

func (f *fakeBookingSrv) Complete(_ context.Context, facultyID, bookingID string) (*models.BookingDetail, error) {
	return f.detail, f.err
}

func (f *fakeBookingSrv) MarkAbsent(_ context.Context, facultyID, bookingID string) (*models.BookingDetail, error) {
	return f.detail, f.err
}

func (f *fakeBookingSrv) AllowRebooking(_ context.Context, facultyID, bookingID string) (*models.BookingDetail, error) {
	return f.detail, f.err
}

func (f *fakeBookingSrv) ListForStudent(_ context.Context, studentID string, status models.BookingStatus) ([]models.BookingDetail, error) {
	f.lastStatus = status
	return f.bookings, f.err
}

func (f *fakeBookingSrv) Current(_ context.Context, studentID string) ([]models.BookingDetail, error) {
	return f.bookings, f.err
}

func (f *fakeBookingSrv) BlockedSubjects(_ context.Context, studentID string) ([]models.BlockedSubject, error) {
	return f.blocked, f.err
}

func (f *fakeBookingSrv) ListForFaculty(_ context.Context, facultyID string, status models.BookingStatus, confirmedOnly bool) ([]models.BookingDetail, error) {
	f.lastStatus = status
	f.lastConfirmedOnly = confirmedOnly
	return f.bookings, f.err
}

func (f *fakeBookingSrv) AbsentStudents(_ context.Context, facultyID string) ([]models.AbsentStudent, error) {
	return f.absent, f.err
}

func studentContext(t *testing.T, rec *httptest.ResponseRecorder, req *http.Request) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
	return c
}

func TestBookingHandlerCreate(t *testing.T) {
	srv := &fakeBookingSrv{detail: &models.BookingDetail{Booking: models.Booking{ID: "booking-1", Status: models.BookingStatusConfirmed}}}
	handler := NewBookingHandler(srv)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/student/bookings", strings.NewReader(`{"slot_id":"slot-1"}`))
	req.Header.Set("Content-Type", "application/json")
	c := studentContext(t, rec, req)

	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "slot-1", srv.lastSlotID)
}

func TestBookingHandlerCreateConflict(t *testing.T) {
	handler := NewBookingHandler(&fakeBookingSrv{err: appErrors.ErrSlotAlreadyBooked})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/student/bookings", strings.NewReader(`{"slot_id":"slot-1"}`))
	req.Header.Set("Content-Type", "application/json")
	c := studentContext(t, rec, req)

	handler.Create(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrSlotAlreadyBooked.Code, envelope.Error.Code)
}

func TestBookingHandlerCancelPassesActor(t *testing.T) {
	srv := &fakeBookingSrv{detail: &models.BookingDetail{Booking: models.Booking{ID: "booking-1", Status: models.BookingStatusCancelled}}}
	handler := NewBookingHandler(srv)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/student/bookings/booking-1/cancel", strings.NewReader(`{"reason":"sick"}`))
	req.Header.Set("Content-Type", "application/json")
	c := studentContext(t, rec, req)
	c.Params = gin.Params{{Key: "id", Value: "booking-1"}}

	handler.Cancel(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "student-1", srv.lastActor.ID)
	assert.Equal(t, models.RoleStudent, srv.lastActor.Role)
}

func TestBookingHandlerCancelWithoutBody(t *testing.T) {
	srv := &fakeBookingSrv{detail: &models.BookingDetail{Booking: models.Booking{ID: "booking-1", Status: models.BookingStatusCancelled}}}
	handler := NewBookingHandler(srv)

	rec := httptest.NewRecorder()
	c := studentContext(t, rec, httptest.NewRequest(http.MethodPost, "/student/bookings/booking-1/cancel", nil))
	c.Params = gin.Params{{Key: "id", Value: "booking-1"}}

	handler.Cancel(c)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBookingHandlerCancelWindowViolation(t *testing.T) {
	handler := NewBookingHandler(&fakeBookingSrv{err: appErrors.ErrWithinCancellationWindow})

	rec := httptest.NewRecorder()
	c := studentContext(t, rec, httptest.NewRequest(http.MethodPost, "/student/bookings/booking-1/cancel", nil))
	c.Params = gin.Params{{Key: "id", Value: "booking-1"}}

	handler.Cancel(c)

	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestBookingHandlerListMinePassesStatus(t *testing.T) {
	srv := &fakeBookingSrv{}
	handler := NewBookingHandler(srv)

	rec := httptest.NewRecorder()
	c := studentContext(t, rec, httptest.NewRequest(http.MethodGet, "/student/bookings?status=cancelled", nil))

	handler.ListMine(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.BookingStatusCancelled, srv.lastStatus)
}

func TestBookingHandlerListForFacultyPassesFilters(t *testing.T) {
	srv := &fakeBookingSrv{}
	handler := NewBookingHandler(srv)

	rec := httptest.NewRecorder()
	c := facultyContext(t, rec, httptest.NewRequest(http.MethodGet, "/faculty/bookings?confirmed_only=true", nil))

	handler.ListForFaculty(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, srv.lastConfirmedOnly)
}

func TestBookingHandlerBlockedSubjects(t *testing.T) {
	srv := &fakeBookingSrv{blocked: []models.BlockedSubject{{Subject: "Mathematics", Blocked: true}}}
	handler := NewBookingHandler(srv)

	rec := httptest.NewRecorder()
	c := studentContext(t, rec, httptest.NewRequest(http.MethodGet, "/student/blocked-subjects", nil))

	handler.BlockedSubjects(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	var blocked []models.BlockedSubject
	require.NoError(t, json.Unmarshal(envelope.Data, &blocked))
	require.Len(t, blocked, 1)
	assert.True(t, blocked[0].Blocked)
}

func TestBookingHandlerAbsentStudents(t *testing.T) {
	srv := &fakeBookingSrv{absent: []models.AbsentStudent{{Subject: "Physics"}}}
	handler := NewBookingHandler(srv)

	rec := httptest.NewRecorder()
	c := facultyContext(t, rec, httptest.NewRequest(http.MethodGet, "/faculty/absent-students", nil))

	handler.AbsentStudents(c)

	assert.Equal(t, http.StatusOK, rec.Code)
}
