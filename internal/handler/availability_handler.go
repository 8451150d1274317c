package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/campuskit/scheduler-api/pkg/errors"
	"github.com/campuskit/scheduler-api/pkg/response"
)

type availabilityService interface {
	Get(ctx context.Context, facultyID string) (bool, error)
	Set(ctx context.Context, facultyID string, available bool) error
}

type setAvailabilityRequest struct {
	Available *bool `json:"available" binding:"required"`
}

// AvailabilityHandler manages the faculty booking gate.
type AvailabilityHandler struct {
	service availabilityService
}

// NewAvailabilityHandler constructs handler.
func NewAvailabilityHandler(svc availabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// Get godoc
// @Summary Read the faculty's availability flag
// @Tags Faculty
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /faculty/availability [get]
func (h *AvailabilityHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	available, err := h.service.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"available": available}, nil)
}

// Set godoc
// @Summary Toggle the faculty's availability flag
// @Tags Faculty
// @Accept json
// @Produce json
// @Param payload body setAvailabilityRequest true "Availability payload"
// @Success 200 {object} response.Envelope
// @Router /faculty/availability [put]
func (h *AvailabilityHandler) Set(c *gin.Context) {
	claims := claimsFromContext(c)
	var req setAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.Set(c.Request.Context(), claims.UserID, *req.Available); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"available": *req.Available}, nil)
}
