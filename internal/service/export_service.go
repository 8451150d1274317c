package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campuskit/scheduler-api/internal/models"
	appErrors "github.com/campuskit/scheduler-api/pkg/errors"
	"github.com/campuskit/scheduler-api/pkg/clock"
	"github.com/campuskit/scheduler-api/pkg/export"
)

// ExportFormat is the supported set of export encodings.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

// ExportFile is a rendered export ready to be served as a download.
type ExportFile struct {
	FileName    string
	ContentType string
	Content     []byte
}

type facultyBookingLister interface {
	List(ctx context.Context, filter models.BookingFilter) ([]models.BookingDetail, error)
}

// ExportService renders a faculty's booking schedule as CSV or PDF.
type ExportService struct {
	bookings facultyBookingLister
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	policy   *clock.Policy
	logger   *zap.Logger
}

// NewExportService constructs ExportService.
func NewExportService(bookings facultyBookingLister, policy *clock.Policy, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		bookings: bookings,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		policy:   policy,
		logger:   logger,
	}
}

var bookingExportHeaders = []string{"Date", "Start", "End", "Student", "Email", "Subject", "Status", "Booked At"}

// Bookings exports the faculty's bookings, optionally restricted to a status.
func (s *ExportService) Bookings(ctx context.Context, facultyID string, status models.BookingStatus, format ExportFormat) (*ExportFile, error) {
	if status != "" && !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown booking status")
	}

	bookings, err := s.bookings.List(ctx, models.BookingFilter{FacultyID: facultyID, Status: status})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bookings for export")
	}

	dataset := export.Dataset{Headers: bookingExportHeaders, Rows: make([][]string, 0, len(bookings))}
	for _, booking := range bookings {
		dataset.Rows = append(dataset.Rows, []string{
			booking.SlotStart.Format("2006-01-02"),
			booking.SlotStart.Format("15:04"),
			booking.SlotEnd.Format("15:04"),
			booking.StudentName,
			booking.StudentEmail,
			booking.Subject,
			string(booking.Status),
			booking.CreatedAt.Format(time.RFC3339),
		})
	}

	stamp := s.policy.Now().Format("2006-01-02")
	switch format {
	case FormatCSV, "":
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return &ExportFile{
			FileName:    fmt.Sprintf("bookings_%s.csv", stamp),
			ContentType: "text/csv",
			Content:     content,
		}, nil
	case FormatPDF:
		title := "Booking Schedule"
		if status != "" {
			title = fmt.Sprintf("Booking Schedule (%s)", status)
		}
		content, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return &ExportFile{
			FileName:    fmt.Sprintf("bookings_%s.pdf", stamp),
			ContentType: "application/pdf",
			Content:     content,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format, use csv or pdf")
	}
}
