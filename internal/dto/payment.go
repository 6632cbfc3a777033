package dto

import (
	"io"
	"time"

	"github.com/noah-isme/training-enrollment-api/internal/models"
)

// ProofUploadRequest is the multipart form for proof uploads.
type ProofUploadRequest struct {
	Amount          int64  `form:"amount" validate:"required,gt=0"`
	Method          string `form:"method" validate:"required,oneof=TRANSFER CASH EWALLET GATEWAY OTHER"`
	ReferenceNumber string `form:"referenceNumber" validate:"omitempty,max=64"`
}

// ProofFile is the uploaded file handed to the payment service.
type ProofFile struct {
	Filename string
	Size     int64
	Reader   io.Reader
}

// ManualPaymentRequest records a payment entered by an admin.
type ManualPaymentRequest struct {
	Amount          int64      `json:"amount" validate:"required,gt=0"`
	Method          string     `json:"method" validate:"required,oneof=TRANSFER CASH EWALLET GATEWAY OTHER"`
	ReferenceNumber string     `json:"referenceNumber" validate:"omitempty,max=64"`
	PaymentDate     *time.Time `json:"paymentDate"`
	Note            string     `json:"note" validate:"omitempty,max=500"`
}

// VerifyPaymentRequest approves or rejects a pending payment.
type VerifyPaymentRequest struct {
	Approve *bool  `json:"approve" validate:"required"`
	Note    string `json:"note" validate:"omitempty,max=500"`
}

// ProofURLResponse carries a short-lived proof download link.
type ProofURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CheckoutResponse is returned after opening a gateway checkout.
type CheckoutResponse struct {
	Payment     models.Payment `json:"payment"`
	Token       string         `json:"token"`
	RedirectURL string         `json:"redirectUrl"`
}
