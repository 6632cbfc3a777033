package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/training-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/training-enrollment-api/pkg/errors"
	"github.com/noah-isme/training-enrollment-api/pkg/response"
)

type rosterExporter interface {
	Roster(ctx context.Context, classID, format string) (*service.ExportFile, error)
}

// ExportHandler streams class rosters.
type ExportHandler struct {
	exporter rosterExporter
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exporter rosterExporter) *ExportHandler {
	return &ExportHandler{exporter: exporter}
}

// Roster godoc
// @Summary Export class roster
// @Tags Classes
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Class ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /classes/{id}/roster [get]
func (h *ExportHandler) Roster(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", service.ExportFormatCSV))
	if format != service.ExportFormatCSV && format != service.ExportFormatPDF {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}
	file, err := h.exporter.Roster(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
