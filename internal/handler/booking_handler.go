package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/scheduler-api/internal/models"
	"github.com/campuskit/scheduler-api/internal/service"
	appErrors "github.com/campuskit/scheduler-api/pkg/errors"
	"github.com/campuskit/scheduler-api/pkg/response"
)

type bookingService interface {
	Create(ctx context.Context, studentID string, req service.CreateBookingRequest) (*models.BookingDetail, error)
	Cancel(ctx context.Context, actor service.Actor, bookingID string, req service.CancelBookingRequest) (*models.BookingDetail, error)
	Complete(ctx context.Context, facultyID, bookingID string) (*models.BookingDetail, error)
	MarkAbsent(ctx context.Context, facultyID, bookingID string) (*models.BookingDetail, error)
	AllowRebooking(ctx context.Context, facultyID, bookingID string) (*models.BookingDetail, error)
	ListForStudent(ctx context.Context, studentID string, status models.BookingStatus) ([]models.BookingDetail, error)
	Current(ctx context.Context, studentID string) ([]models.BookingDetail, error)
	BlockedSubjects(ctx context.Context, studentID string) ([]models.BlockedSubject, error)
	ListForFaculty(ctx context.Context, facultyID string, status models.BookingStatus, confirmedOnly bool) ([]models.BookingDetail, error)
	AbsentStudents(ctx context.Context, facultyID string) ([]models.AbsentStudent, error)
}

// BookingHandler manages the booking lifecycle endpoints for both roles.
type BookingHandler struct {
	service bookingService
}

// NewBookingHandler constructs handler.
func NewBookingHandler(svc bookingService) *BookingHandler {
	return &BookingHandler{service: svc}
}

// Create godoc
// @Summary Book a slot
// @Tags Student
// @Accept json
// @Produce json
// @Param payload body service.CreateBookingRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Router /student/bookings [post]
func (h *BookingHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	booking, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, booking)
}

// ListMine godoc
// @Summary List the student's bookings
// @Tags Student
// @Produce json
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /student/bookings [get]
func (h *BookingHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	bookings, err := h.service.ListForStudent(c.Request.Context(), claims.UserID, models.BookingStatus(c.Query("status")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bookings, nil)
}

// Current godoc
// @Summary List the student's confirmed bookings
// @Tags Student
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /student/bookings/current [get]
func (h *BookingHandler) Current(c *gin.Context) {
	claims := claimsFromContext(c)
	bookings, err := h.service.Current(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bookings, nil)
}

// BlockedSubjects godoc
// @Summary List subjects blocked by absences
// @Tags Student
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /student/blocked-subjects [get]
func (h *BookingHandler) BlockedSubjects(c *gin.Context) {
	claims := claimsFromContext(c)
	blocked, err := h.service.BlockedSubjects(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, blocked, nil)
}

// Cancel godoc
// @Summary Cancel a booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body service.CancelBookingRequest false "Cancellation payload"
// @Success 200 {object} response.Envelope
// @Router /student/bookings/{id}/cancel [post]
// @Router /faculty/bookings/{id}/cancel [patch]
func (h *BookingHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	var req service.CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	actor := service.Actor{ID: claims.UserID, Role: claims.Role}
	booking, err := h.service.Cancel(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// ListForFaculty godoc
// @Summary List bookings on the faculty's slots
// @Tags Faculty
// @Produce json
// @Param status query string false "Filter by status"
// @Param confirmed_only query bool false "Only confirmed bookings"
// @Success 200 {object} response.Envelope
// @Router /faculty/bookings [get]
func (h *BookingHandler) ListForFaculty(c *gin.Context) {
	claims := claimsFromContext(c)
	bookings, err := h.service.ListForFaculty(c.Request.Context(), claims.UserID,
		models.BookingStatus(c.Query("status")), c.Query("confirmed_only") == "true")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bookings, nil)
}

// Complete godoc
// @Summary Mark a booking completed
// @Tags Faculty
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /faculty/bookings/{id}/complete [patch]
func (h *BookingHandler) Complete(c *gin.Context) {
	claims := claimsFromContext(c)
	booking, err := h.service.Complete(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// MarkAbsent godoc
// @Summary Mark the student absent for a booking
// @Tags Faculty
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /faculty/bookings/{id}/absent [patch]
func (h *BookingHandler) MarkAbsent(c *gin.Context) {
	claims := claimsFromContext(c)
	booking, err := h.service.MarkAbsent(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// AllowRebooking godoc
// @Summary Allow a student to rebook after an absence
// @Tags Faculty
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /faculty/bookings/{id}/allow-rebooking [post]
func (h *BookingHandler) AllowRebooking(c *gin.Context) {
	claims := claimsFromContext(c)
	booking, err := h.service.AllowRebooking(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// AbsentStudents godoc
// @Summary List students with uncleared absences
// @Tags Faculty
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /faculty/absent-students [get]
func (h *BookingHandler) AbsentStudents(c *gin.Context) {
	claims := claimsFromContext(c)
	students, err := h.service.AbsentStudents(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}
