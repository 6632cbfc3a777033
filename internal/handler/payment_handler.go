package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/training-enrollment-api/internal/dto"
	"github.com/noah-isme/training-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/training-enrollment-api/pkg/errors"
	"github.com/noah-isme/training-enrollment-api/pkg/response"
)

type paymentService interface {
	UploadProof(ctx context.Context, actor *models.JWTClaims, registrationID string, req dto.ProofUploadRequest, file dto.ProofFile) (*models.Payment, error)
	RecordManualPayment(ctx context.Context, actor *models.JWTClaims, registrationID string, req dto.ManualPaymentRequest) (*models.VerificationResult, error)
	ListPayments(ctx context.Context, actor *models.JWTClaims, registrationID string) ([]models.Payment, error)
	ProofURL(ctx context.Context, actor *models.JWTClaims, paymentID string) (*dto.ProofURLResponse, error)
	OpenProof(ctx context.Context, paymentID, token string) (io.ReadCloser, string, string, error)
}

type verificationService interface {
	Verify(ctx context.Context, actor *models.JWTClaims, paymentID string, req dto.VerifyPaymentRequest) (*models.VerificationResult, error)
}

// PaymentHandler exposes the payment ledger and verification endpoints.
type PaymentHandler struct {
	payments     paymentService
	verification verificationService
	maxUpload    int64
	logger       *zap.Logger
}

// NewPaymentHandler constructs PaymentHandler. maxUpload bounds the multipart body.
func NewPaymentHandler(payments paymentService, verification verificationService, maxUpload int64, logger *zap.Logger) *PaymentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentHandler{payments: payments, verification: verification, maxUpload: maxUpload, logger: logger}
}

// UploadProof godoc
// @Summary Upload a payment proof
// @Tags Payments
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Registration ID"
// @Param amount formData int true "Amount"
// @Param method formData string true "TRANSFER, CASH, EWALLET or OTHER"
// @Param referenceNumber formData string false "Reference number"
// @Param file formData file true "Proof image or PDF"
// @Success 201 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /registrations/{id}/payments/proof [post]
func (h *PaymentHandler) UploadProof(c *gin.Context) {
	if h.maxUpload > 0 {
		// room for the other form fields
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+64*1024)
	}
	var req dto.ProofUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, uploadErr(err))
		return
	}
	req.Method = strings.ToUpper(req.Method)
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, uploadErr(err))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to read upload"))
		return
	}
	defer file.Close()

	payment, err := h.payments.UploadProof(c.Request.Context(), claimsFromContext(c), c.Param("id"), req, dto.ProofFile{
		Filename: header.Filename,
		Size:     header.Size,
		Reader:   file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payment)
}

func uploadErr(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return appErrors.Clone(appErrors.ErrPayloadTooLarge, "proof file is too large")
	}
	if errors.Is(err, http.ErrMissingFile) {
		return appErrors.Clone(appErrors.ErrValidation, "proof file is required")
	}
	return invalidPayload(err)
}

// RecordManual godoc
// @Summary Record a manual payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body dto.ManualPaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Router /registrations/{id}/payments/manual [post]
func (h *PaymentHandler) RecordManual(c *gin.Context) {
	var req dto.ManualPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	req.Method = strings.ToUpper(req.Method)
	result, err := h.payments.RecordManualPayment(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// List godoc
// @Summary List payments of a registration
// @Tags Payments
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id}/payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	payments, err := h.payments.ListPayments(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, nil)
}

// ProofURL godoc
// @Summary Get a signed proof download link
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Router /payments/{id}/proof-url [get]
func (h *PaymentHandler) ProofURL(c *gin.Context) {
	link, err := h.payments.ProofURL(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// DownloadProof godoc
// @Summary Download a payment proof
// @Tags Payments
// @Produce octet-stream
// @Param id path string true "Payment ID"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /payments/{id}/proof [get]
func (h *PaymentHandler) DownloadProof(c *gin.Context) {
	rc, contentType, filename, err := h.payments.OpenProof(c.Request.Context(), c.Param("id"), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer rc.Close()
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Disposition", response.ContentDisposition("inline", filename))
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.logger.Warn("stream proof", zap.String("payment_id", c.Param("id")), zap.Error(err))
	}
}

// Verify godoc
// @Summary Approve or reject a pending payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Payment ID"
// @Param payload body dto.VerifyPaymentRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /payments/{id}/verify [post]
func (h *PaymentHandler) Verify(c *gin.Context) {
	var req dto.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.verification.Verify(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
