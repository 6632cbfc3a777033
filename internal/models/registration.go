package models

import "time"

// RegStatus tracks the enrollment decision for a registration.
type RegStatus string

const (
	RegStatusPending    RegStatus = "PENDING"
	RegStatusRegistered RegStatus = "REGISTERED"
	RegStatusRejected   RegStatus = "REJECTED"
	// RegStatusCancelled is reserved; cancellation deletes the registration row.
	RegStatusCancelled RegStatus = "CANCELLED"
)

// PaymentStatus is the registration-level view of the payment ledger.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "UNPAID"
	PaymentStatusPartial  PaymentStatus = "PARTIAL"
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusRejected PaymentStatus = "REJECTED"
)

// Registration links a participant to a training class.
type Registration struct {
	ID            string        `db:"id" json:"id"`
	ParticipantID string        `db:"participant_id" json:"participant_id"`
	ClassID       string        `db:"class_id" json:"class_id"`
	RegStatus     RegStatus     `db:"reg_status" json:"reg_status"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"payment_status"`
	PaymentAmount int64         `db:"payment_amount" json:"payment_amount"`
	PresentDay    int           `db:"present_day" json:"present_day"`
	RegDate       time.Time     `db:"reg_date" json:"reg_date"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// RegistrationDetail enriches Registration with participant and class info.
type RegistrationDetail struct {
	Registration
	ParticipantName  string `db:"participant_name" json:"participant_name"`
	ParticipantEmail string `db:"participant_email" json:"participant_email"`
	ClassName        string `db:"class_name" json:"class_name"`
	CourseID         string `db:"course_id" json:"course_id"`
	CourseTitle      string `db:"course_title" json:"course_title"`
	ClassPrice       int64  `db:"class_price" json:"class_price"`
	DurationDay      int    `db:"duration_day" json:"duration_day"`
}

// RegistrationFilter provides filters for listing registrations.
type RegistrationFilter struct {
	ClassID       string
	ParticipantID string
	RegStatus     RegStatus
	PaymentStatus PaymentStatus
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
