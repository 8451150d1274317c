package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/scheduler-api/internal/models"
	"github.com/campuskit/scheduler-api/internal/service"
	appErrors "github.com/campuskit/scheduler-api/pkg/errors"
	"github.com/campuskit/scheduler-api/pkg/response"
)

type slotService interface {
	List(ctx context.Context, facultyID string, date *time.Time, futureOnly bool) ([]models.SlotDetail, error)
	Create(ctx context.Context, facultyID string, req service.CreateSlotRequest) (*models.Slot, error)
	BulkCreate(ctx context.Context, facultyID string, req service.BulkSlotRequest) (*models.BulkSlotResult, error)
	Delete(ctx context.Context, facultyID, slotID string) error
	DeleteToday(ctx context.Context, facultyID string) (*models.TodayCleanupResult, error)
}

// SlotHandler manages the faculty slot endpoints.
type SlotHandler struct {
	service slotService
}

// NewSlotHandler constructs handler.
func NewSlotHandler(svc slotService) *SlotHandler {
	return &SlotHandler{service: svc}
}

// List godoc
// @Summary List the faculty's slots
// @Tags Faculty
// @Produce json
// @Param date query string false "Filter by date (YYYY-MM-DD)"
// @Param future query bool false "Only future slots"
// @Success 200 {object} response.Envelope
// @Router /faculty/slots [get]
func (h *SlotHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	date, err := parseDateQuery(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	futureOnly := c.Query("future") == "true"

	slots, err := h.service.List(c.Request.Context(), claims.UserID, date, futureOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Create godoc
// @Summary Create a single slot
// @Tags Faculty
// @Accept json
// @Produce json
// @Param payload body service.CreateSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Router /faculty/slots [post]
func (h *SlotHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	var req service.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	slot, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// BulkCreate godoc
// @Summary Generate slots for a time range
// @Tags Faculty
// @Accept json
// @Produce json
// @Param payload body service.BulkSlotRequest true "Generation payload"
// @Success 201 {object} response.Envelope
// @Router /faculty/slots/bulk [post]
func (h *SlotHandler) BulkCreate(c *gin.Context) {
	claims := claimsFromContext(c)
	var req service.BulkSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.BulkCreate(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Delete godoc
// @Summary Delete an open future slot
// @Tags Faculty
// @Produce json
// @Param id path string true "Slot ID"
// @Success 204
// @Router /faculty/slots/{id} [delete]
func (h *SlotHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if err := h.service.Delete(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteToday godoc
// @Summary Delete today's open slots
// @Tags Faculty
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /faculty/slots/today [delete]
func (h *SlotHandler) DeleteToday(c *gin.Context) {
	claims := claimsFromContext(c)
	result, err := h.service.DeleteToday(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func parseDateQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD")
	}
	return &parsed, nil
}
