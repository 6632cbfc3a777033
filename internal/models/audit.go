package models

import "time"

// Audit actions recorded for enrollment mutations.
const (
	AuditActionRegister          = "REGISTRATION_CREATE"
	AuditActionCancel            = "REGISTRATION_CANCEL"
	AuditActionAttendance        = "REGISTRATION_ATTENDANCE"
	AuditActionProofUpload       = "PAYMENT_PROOF_UPLOAD"
	AuditActionManualPayment     = "PAYMENT_MANUAL_ENTRY"
	AuditActionGatewayCheckout   = "PAYMENT_GATEWAY_CHECKOUT"
	AuditActionGatewayCallback   = "PAYMENT_GATEWAY_NOTIFICATION"
	AuditActionPaymentVerify     = "PAYMENT_VERIFY"
	AuditActionCertificateIssue  = "CERTIFICATE_ISSUE"
	AuditActionCertificatesSwept = "CERTIFICATE_SWEEP"
	AuditActionValueReport       = "VALUE_REPORT_WRITE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
