package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/seatdesk-api/internal/models"
	appErrors "github.com/noah-isme/seatdesk-api/pkg/errors"
)

type mockStudentLister struct {
	students []models.Student
	calls    int
}

func (m *mockStudentLister) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	m.calls++
	total := len(m.students)
	start := (filter.Page - 1) * filter.PageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return m.students[start:end], total, nil
}

func rosterFixture() []models.Student {
	due := 450.0
	return []models.Student{
		{
			ID:                  "stu-1",
			RegistrationNumber:  "1",
			FullName:            "Asha Verma",
			ContactNumber:       "9876543210",
			SeatNumber:          5,
			TimeSlots:           []string{"10:00-14:00", "14:00-18:00"},
			LockerNumber:        12,
			AmountPaid:          1200,
			AmountDue:           &due,
			AdmissionDate:       time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			PaymentExpectedDate: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			Active:              true,
		},
		{
			ID:                 "stu-2",
			RegistrationNumber: "2",
			FullName:           "Bilal Khan",
			ContactNumber:      "9123456780",
			SeatNumber:         0,
			TimeSlots:          []string{"06:00-10:00"},
			LockerNumber:       0,
			AmountPaid:         800,
			Active:             true,
		},
	}
}

func TestBuildRosterDataset(t *testing.T) {
	dataset := buildRosterDataset(rosterFixture())
	require.Len(t, dataset.Rows, 2)

	first := dataset.Rows[0]
	assert.Equal(t, "1", first["Registration No"])
	assert.Equal(t, "5", first["Seat"])
	assert.Equal(t, "10:00-14:00, 14:00-18:00", first["Time Slots"])
	assert.Equal(t, "12", first["Locker"])
	assert.Equal(t, "450.00", first["Amount Due"])
	assert.Equal(t, "2024-01-15", first["Admission Date"])
	assert.Equal(t, "true", first["Active"])

	second := dataset.Rows[1]
	assert.Equal(t, "", second["Seat"])
	assert.Equal(t, "", second["Locker"])
	assert.Equal(t, "", second["Amount Due"])
	assert.Equal(t, "", second["Admission Date"])
}

func TestStudentRosterCSV(t *testing.T) {
	lister := &mockStudentLister{students: rosterFixture()}
	svc := NewExportService(lister, nil, nil, nil, nil)

	result, err := svc.StudentRoster(context.Background(), models.StudentFilter{}, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.True(t, strings.HasSuffix(result.Filename, ".csv"))

	content := string(result.Payload)
	lines := strings.Split(strings.TrimSpace(content), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Registration No")
	assert.Contains(t, content, "Asha Verma")
	assert.Contains(t, content, "Bilal Khan")
}

func TestStudentRosterXLSX(t *testing.T) {
	lister := &mockStudentLister{students: rosterFixture()}
	svc := NewExportService(lister, nil, nil, nil, nil)

	result, err := svc.StudentRoster(context.Background(), models.StudentFilter{}, FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", result.ContentType)

	f, err := excelize.OpenReader(bytes.NewReader(result.Payload))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Students")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Registration No", rows[0][0])
	assert.Equal(t, "Asha Verma", rows[1][1])
}

func TestStudentRosterDefaultsToXLSX(t *testing.T) {
	lister := &mockStudentLister{students: rosterFixture()}
	svc := NewExportService(lister, nil, nil, nil, nil)

	result, err := svc.StudentRoster(context.Background(), models.StudentFilter{}, "")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(result.Filename, ".xlsx"))
}

func TestStudentRosterPDF(t *testing.T) {
	lister := &mockStudentLister{students: rosterFixture()}
	svc := NewExportService(lister, nil, nil, nil, nil)

	result, err := svc.StudentRoster(context.Background(), models.StudentFilter{}, FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, strings.HasPrefix(string(result.Payload), "%PDF"))
}

func TestStudentRosterUnsupportedFormat(t *testing.T) {
	svc := NewExportService(&mockStudentLister{}, nil, nil, nil, nil)

	_, err := svc.StudentRoster(context.Background(), models.StudentFilter{}, "docx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentRosterPagesThroughAllStudents(t *testing.T) {
	var students []models.Student
	for i := 0; i < 250; i++ {
		students = append(students, models.Student{
			ID:                 "stu",
			RegistrationNumber: "1",
			FullName:           "Student",
			TimeSlots:          []string{"06:00-10:00"},
			Active:             true,
		})
	}
	lister := &mockStudentLister{students: students}
	svc := NewExportService(lister, nil, nil, nil, nil)

	result, err := svc.StudentRoster(context.Background(), models.StudentFilter{}, FormatCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(result.Payload)), "\n")
	assert.Len(t, lines, 251)
	assert.Equal(t, 3, lister.calls)
}