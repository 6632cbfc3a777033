package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/training-enrollment-api/internal/dto"
	"github.com/noah-isme/training-enrollment-api/internal/models"
	"github.com/noah-isme/training-enrollment-api/pkg/response"
)

type certificateService interface {
	Issue(ctx context.Context, actor *models.JWTClaims, req dto.IssueCertificateRequest) (*models.CertificateDetail, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.CertificateDetail, error)
	Verify(ctx context.Context, number string) (*models.CertificateVerification, error)
	RenderPDF(ctx context.Context, actor *models.JWTClaims, id string) ([]byte, string, error)
	SweepNow(ctx context.Context, actor *models.JWTClaims) (*dto.SweepResponse, error)
}

// CertificateHandler exposes certificate endpoints.
type CertificateHandler struct {
	service certificateService
}

// NewCertificateHandler constructs CertificateHandler.
func NewCertificateHandler(service certificateService) *CertificateHandler {
	return &CertificateHandler{service: service}
}

// Issue godoc
// @Summary Issue a certificate
// @Tags Certificates
// @Accept json
// @Produce json
// @Param payload body dto.IssueCertificateRequest true "Certificate payload"
// @Success 201 {object} response.Envelope
// @Router /certificates [post]
func (h *CertificateHandler) Issue(c *gin.Context) {
	var req dto.IssueCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	cert, err := h.service.Issue(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cert)
}

// Get godoc
// @Summary Get certificate
// @Tags Certificates
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id} [get]
func (h *CertificateHandler) Get(c *gin.Context) {
	cert, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// Verify godoc
// @Summary Verify a certificate number
// @Tags Certificates
// @Produce json
// @Param number path string true "Certificate number"
// @Success 200 {object} response.Envelope
// @Router /certificates/verify/{number} [get]
func (h *CertificateHandler) Verify(c *gin.Context) {
	result, err := h.service.Verify(c.Request.Context(), c.Param("number"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// PDF godoc
// @Summary Download certificate PDF
// @Tags Certificates
// @Produce application/pdf
// @Param id path string true "Certificate ID"
// @Success 200 {file} binary
// @Router /certificates/{id}/pdf [get]
func (h *CertificateHandler) PDF(c *gin.Context) {
	body, filename, err := h.service.RenderPDF(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, "application/pdf", body)
}

// Sweep godoc
// @Summary Expire certificates past their expiry date
// @Tags Certificates
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /certificates/sweep [post]
func (h *CertificateHandler) Sweep(c *gin.Context) {
	result, err := h.service.SweepNow(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
