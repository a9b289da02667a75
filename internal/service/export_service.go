package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/seatdesk-api/internal/models"
	appErrors "github.com/noah-isme/seatdesk-api/pkg/errors"
	"github.com/noah-isme/seatdesk-api/pkg/export"
)

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	FormatXLSX ExportFormat = "xlsx"
	FormatCSV  ExportFormat = "csv"
	FormatPDF  ExportFormat = "pdf"
)

type exportStudentLister interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type xlsxRenderer interface {
	Render(data export.Dataset, sheetName string) ([]byte, error)
}

// ExportResult carries the rendered file and response metadata.
type ExportResult struct {
	Payload     []byte
	ContentType string
	Filename    string
}

// ExportService renders the student roster into downloadable files.
type ExportService struct {
	students exportStudentLister
	csv      csvRenderer
	pdf      pdfRenderer
	xlsx     xlsxRenderer
	logger   *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(students exportStudentLister, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer, xlsx xlsxRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if xlsx == nil {
		xlsx = export.NewXLSXExporter()
	}
	return &ExportService{students: students, csv: csv, pdf: pdf, xlsx: xlsx, logger: logger}
}

var rosterHeaders = []string{
	"Registration No", "Name", "Father Name", "Contact", "Seat", "Time Slots",
	"Locker", "Amount Paid", "Amount Due", "Admission Amount",
	"Fees Paid Till", "Admission Date", "Payment Expected", "Active",
}

// StudentRoster renders every student matching the filter. Paging is
// bypassed so the export is complete.
func (s *ExportService) StudentRoster(ctx context.Context, filter models.StudentFilter, format ExportFormat) (*ExportResult, error) {
	filter.Page = 1
	filter.PageSize = 100

	var all []models.Student
	for {
		page, total, err := s.students.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students for export")
		}
		all = append(all, page...)
		if len(all) >= total || len(page) == 0 {
			break
		}
		filter.Page++
	}

	dataset := buildRosterDataset(all)
	stamp := time.Now().Format("20060102_150405")

	var (
		payload     []byte
		err         error
		contentType string
	)
	switch format {
	case FormatCSV:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
	case FormatPDF:
		payload, err = s.pdf.Render(dataset, "Student Roster")
		contentType = "application/pdf"
	case FormatXLSX, "":
		format = FormatXLSX
		payload, err = s.xlsx.Render(dataset, "Students")
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		s.logger.Error("roster export failed", zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	return &ExportResult{
		Payload:     payload,
		ContentType: contentType,
		Filename:    fmt.Sprintf("students_%s.%s", stamp, format),
	}, nil
}

func buildRosterDataset(students []models.Student) export.Dataset {
	rows := make([]map[string]string, 0, len(students))
	for _, st := range students {
		due := ""
		if st.AmountDue != nil {
			due = strconv.FormatFloat(*st.AmountDue, 'f', 2, 64)
		}
		rows = append(rows, map[string]string{
			"Registration No":  st.RegistrationNumber,
			"Name":             st.FullName,
			"Father Name":      st.FatherName,
			"Contact":          st.ContactNumber,
			"Seat":             formatAssignment(st.SeatNumber),
			"Time Slots":       strings.Join(st.TimeSlots, ", "),
			"Locker":           formatAssignment(st.LockerNumber),
			"Amount Paid":      strconv.FormatFloat(st.AmountPaid, 'f', 2, 64),
			"Amount Due":       due,
			"Admission Amount": strconv.FormatFloat(st.AdmissionAmount, 'f', 2, 64),
			"Fees Paid Till":   formatDate(st.FeesPaidTillDate),
			"Admission Date":   formatDate(st.AdmissionDate),
			"Payment Expected": formatDate(st.PaymentExpectedDate),
			"Active":           strconv.FormatBool(st.Active),
		})
	}
	return export.Dataset{Headers: rosterHeaders, Rows: rows}
}

func formatAssignment(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
