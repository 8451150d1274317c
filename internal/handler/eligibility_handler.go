package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/scheduler-api/internal/models"
	"github.com/campuskit/scheduler-api/pkg/response"
)

type eligibilityService interface {
	VisibleSlots(ctx context.Context, studentID string, date *time.Time) ([]models.SlotDetail, error)
	MentorStatus(ctx context.Context, studentID string) (*models.MentorStatusReport, error)
}

// EligibilityHandler serves student-facing slot visibility endpoints.
type EligibilityHandler struct {
	service eligibilityService
}

// NewEligibilityHandler constructs handler.
func NewEligibilityHandler(svc eligibilityService) *EligibilityHandler {
	return &EligibilityHandler{service: svc}
}

// Slots godoc
// @Summary List slots the student may book
// @Tags Student
// @Produce json
// @Param date query string false "Filter by date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /student/slots [get]
func (h *EligibilityHandler) Slots(c *gin.Context) {
	claims := claimsFromContext(c)
	date, err := parseDateQuery(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	slots, err := h.service.VisibleSlots(c.Request.Context(), claims.UserID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// MentorStatus godoc
// @Summary Report the availability of the student's mentors
// @Tags Student
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /student/mentors/status [get]
func (h *EligibilityHandler) MentorStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	report, err := h.service.MentorStatus(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
