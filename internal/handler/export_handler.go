package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/seatdesk-api/internal/models"
	"github.com/noah-isme/seatdesk-api/internal/service"
	"github.com/noah-isme/seatdesk-api/pkg/response"
)

type exportService interface {
	StudentRoster(ctx context.Context, filter models.StudentFilter, format service.ExportFormat) (*service.ExportResult, error)
}

// ExportHandler streams roster exports.
type ExportHandler struct {
	exports exportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports exportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// StudentRoster godoc
// @Summary Export the student roster
// @Tags Students
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param format query string false "xlsx (default), csv or pdf"
// @Param active query bool false "Filter by active state"
// @Param search query string false "Search by name, registration or contact number"
// @Success 200 {file} binary
// @Router /students/export [get]
func (h *ExportHandler) StudentRoster(c *gin.Context) {
	filter := parseStudentFilter(c)
	format := service.ExportFormat(c.DefaultQuery("format", string(service.FormatXLSX)))

	result, err := h.exports.StudentRoster(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+result.Filename)
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}
