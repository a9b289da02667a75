package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/seatdesk-api/internal/models"
	"github.com/noah-isme/seatdesk-api/internal/service"
	appErrors "github.com/noah-isme/seatdesk-api/pkg/errors"
)

type exportServiceMock struct {
	result     *service.ExportResult
	err        error
	lastFormat service.ExportFormat
	lastFilter models.StudentFilter
}

func (m *exportServiceMock) StudentRoster(ctx context.Context, filter models.StudentFilter, format service.ExportFormat) (*service.ExportResult, error) {
	m.lastFilter = filter
	m.lastFormat = format
	return m.result, m.err
}

func TestExportHandlerStudentRoster(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &exportServiceMock{
		result: &service.ExportResult{
			Payload:     []byte("registration,name"),
			ContentType: "text/csv",
			Filename:    "students_20240101_120000.csv",
		},
	}
	handler := NewExportHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/students/export?format=csv&active=true", nil)
	c.Request = req

	handler.StudentRoster(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.FormatCSV, mockSvc.lastFormat)
	require.NotNil(t, mockSvc.lastFilter.Active)
	assert.True(t, *mockSvc.lastFilter.Active)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=students_20240101_120000.csv", w.Header().Get("Content-Disposition"))
	assert.Equal(t, "registration,name", w.Body.String())
}

func TestExportHandlerDefaultsToXLSX(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &exportServiceMock{
		result: &service.ExportResult{Payload: []byte{0x50, 0x4b}, ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Filename: "students.xlsx"},
	}
	handler := NewExportHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/students/export", nil)
	c.Request = req

	handler.StudentRoster(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.FormatXLSX, mockSvc.lastFormat)
}

func TestExportHandlerUnsupportedFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &exportServiceMock{err: appErrors.Clone(appErrors.ErrValidation, `unsupported export format "docx"`)}
	handler := NewExportHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/students/export?format=docx", nil)
	c.Request = req

	handler.StudentRoster(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
