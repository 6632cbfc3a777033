package models

import "time"

// PaymentMethod enumerates accepted payment channels.
type PaymentMethod string

const (
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
	PaymentMethodCash     PaymentMethod = "CASH"
	PaymentMethodEWallet  PaymentMethod = "EWALLET"
	PaymentMethodGateway  PaymentMethod = "GATEWAY"
	PaymentMethodOther    PaymentMethod = "OTHER"
)

// Valid reports whether m is a known method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodTransfer, PaymentMethodCash, PaymentMethodEWallet, PaymentMethodGateway, PaymentMethodOther:
		return true
	}
	return false
}

// PaymentRecordStatus is the status of a single payment row.
type PaymentRecordStatus string

const (
	PaymentRecordUnpaid   PaymentRecordStatus = "UNPAID"
	PaymentRecordPending  PaymentRecordStatus = "PENDING"
	PaymentRecordPaid     PaymentRecordStatus = "PAID"
	PaymentRecordRejected PaymentRecordStatus = "REJECTED"
)

// Payment records evidence and amount paid against a registration.
type Payment struct {
	ID              string              `db:"id" json:"id"`
	RegistrationID  string              `db:"registration_id" json:"registration_id"`
	Amount          int64               `db:"amount" json:"amount"`
	Method          PaymentMethod       `db:"method" json:"method"`
	ReferenceNumber string              `db:"reference_number" json:"reference_number"`
	ProofURL        *string             `db:"proof_url" json:"-"`
	ProofMIME       *string             `db:"proof_mime" json:"proof_mime,omitempty"`
	Status          PaymentRecordStatus `db:"status" json:"status"`
	PaymentDate     time.Time           `db:"payment_date" json:"payment_date"`
	VerifiedBy      *string             `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt      *time.Time          `db:"verified_at" json:"verified_at,omitempty"`
	Note            *string             `db:"note" json:"note,omitempty"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updated_at"`
}

// HasProof reports whether a proof file is attached.
func (p Payment) HasProof() bool {
	return p.ProofURL != nil && *p.ProofURL != ""
}

// VerificationResult is returned by the admin verification workflow.
type VerificationResult struct {
	Payment      Payment      `json:"payment"`
	Registration Registration `json:"registration"`
}
