package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/training-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/training-enrollment-api/pkg/errors"
	"github.com/noah-isme/training-enrollment-api/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type rosterSource interface {
	ListRoster(ctx context.Context, classID string) ([]models.RegistrationDetail, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string, subtitle ...string) ([]byte, error)
}

type classFinder interface {
	FindClass(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TrainingClass, error)
}

// ExportFile is a rendered export ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders class rosters as CSV or PDF.
type ExportService struct {
	classes classFinder
	roster  rosterSource
	csv     csvRenderer
	pdf     pdfRenderer
	logger  *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(classes classFinder, roster rosterSource, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{classes: classes, roster: roster, csv: csv, pdf: pdf, logger: logger}
}

var rosterHeaders = []string{"No", "Participant", "Email", "Registration", "Payment", "Paid", "Present Days", "Registered At"}

// Roster renders every registration of a class.
func (s *ExportService) Roster(ctx context.Context, classID, format string) (*ExportFile, error) {
	if format == "" {
		format = ExportFormatCSV
	}
	class, err := s.classes.FindClass(ctx, nil, classID)
	if err != nil {
		return nil, lookupErr(err, "class not found")
	}
	items, err := s.roster.ListRoster(ctx, classID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load roster")
	}

	dataset := export.Dataset{Headers: rosterHeaders, Rows: make([]map[string]string, 0, len(items))}
	for i, item := range items {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"No":            strconv.Itoa(i + 1),
			"Participant":   item.ParticipantName,
			"Email":         item.ParticipantEmail,
			"Registration":  string(item.RegStatus),
			"Payment":       string(item.PaymentStatus),
			"Paid":          strconv.FormatInt(item.PaymentAmount, 10),
			"Present Days":  fmt.Sprintf("%d/%d", item.PresentDay, class.DurationDay),
			"Registered At": item.RegDate.UTC().Format("2006-01-02 15:04"),
		})
	}

	base := fmt.Sprintf("roster_%s_%s", sanitizeFilename(class.Name), time.Now().UTC().Format("20060102_150405"))
	switch format {
	case ExportFormatCSV:
		body, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to render roster")
		}
		return &ExportFile{Filename: base + ".csv", ContentType: "text/csv", Body: body}, nil
	case ExportFormatPDF:
		subtitle := fmt.Sprintf("Quota %d, active %d, %s to %s", class.Quota, len(items),
			class.StartDate.Format("2006-01-02"), class.EndDate.Format("2006-01-02"))
		body, err := s.pdf.Render(dataset, "Roster "+class.Name, subtitle)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to render roster")
		}
		return &ExportFile{Filename: base + ".pdf", ContentType: "application/pdf", Body: body}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format "+format)
	}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
