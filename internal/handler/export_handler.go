package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/scheduler-api/internal/models"
	"github.com/campuskit/scheduler-api/internal/service"
	"github.com/campuskit/scheduler-api/pkg/response"
)

type exportService interface {
	Bookings(ctx context.Context, facultyID string, status models.BookingStatus, format service.ExportFormat) (*service.ExportFile, error)
}

// ExportHandler serves schedule downloads.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs handler.
func NewExportHandler(svc exportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Bookings godoc
// @Summary Export the faculty's bookings
// @Tags Faculty
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param status query string false "Filter by status"
// @Success 200 {file} file
// @Router /faculty/bookings/export [get]
func (h *ExportHandler) Bookings(c *gin.Context) {
	claims := claimsFromContext(c)
	file, err := h.service.Bookings(
		c.Request.Context(),
		claims.UserID,
		models.BookingStatus(c.Query("status")),
		service.ExportFormat(c.DefaultQuery("format", "csv")),
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+file.FileName)
	c.Data(200, file.ContentType, file.Content)
}
