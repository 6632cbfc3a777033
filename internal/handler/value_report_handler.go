package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/training-enrollment-api/internal/dto"
	"github.com/noah-isme/training-enrollment-api/internal/models"
	"github.com/noah-isme/training-enrollment-api/pkg/response"
)

type valueReportService interface {
	List(ctx context.Context, actor *models.JWTClaims, registrationID string) ([]models.ValueReport, error)
	Create(ctx context.Context, actor *models.JWTClaims, registrationID string, req dto.ValueReportRequest) (*models.ValueReport, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.ValueReportRequest) (*models.ValueReport, error)
	Delete(ctx context.Context, actor *models.JWTClaims, id string) error
}

// ValueReportHandler manages per-registration assessment entries.
type ValueReportHandler struct {
	service valueReportService
}

// NewValueReportHandler constructs ValueReportHandler.
func NewValueReportHandler(service valueReportService) *ValueReportHandler {
	return &ValueReportHandler{service: service}
}

// List godoc
// @Summary List value reports of a registration
// @Tags Value Reports
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id}/value-reports [get]
func (h *ValueReportHandler) List(c *gin.Context) {
	reports, err := h.service.List(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, nil)
}

// Create godoc
// @Summary Add a value report
// @Tags Value Reports
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body dto.ValueReportRequest true "Value report"
// @Success 201 {object} response.Envelope
// @Router /registrations/{id}/value-reports [post]
func (h *ValueReportHandler) Create(c *gin.Context) {
	var req dto.ValueReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	report, err := h.service.Create(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report)
}

// Update godoc
// @Summary Update a value report
// @Tags Value Reports
// @Accept json
// @Produce json
// @Param id path string true "Value report ID"
// @Param payload body dto.ValueReportRequest true "Value report"
// @Success 200 {object} response.Envelope
// @Router /value-reports/{id} [put]
func (h *ValueReportHandler) Update(c *gin.Context) {
	var req dto.ValueReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	report, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Delete godoc
// @Summary Delete a value report
// @Tags Value Reports
// @Param id path string true "Value report ID"
// @Success 204
// @Router /value-reports/{id} [delete]
func (h *ValueReportHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
