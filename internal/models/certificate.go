package models

import "time"

// CertificateStatus tracks certificate validity.
type CertificateStatus string

const (
	CertificateStatusValid   CertificateStatus = "VALID"
	CertificateStatusExpired CertificateStatus = "EXPIRED"
)

// PersonType identifies which table a certificate holder lives in.
type PersonType string

const (
	PersonTypeParticipant PersonType = "participant"
	PersonTypeInstructor  PersonType = "instructor"
)

// Valid reports whether t is a known person type.
func (t PersonType) Valid() bool {
	return t == PersonTypeParticipant || t == PersonTypeInstructor
}

// Certificate is an issued completion or appreciation certificate.
type Certificate struct {
	ID                string            `db:"id" json:"id"`
	CertificateNumber string            `db:"certificate_number" json:"certificate_number"`
	PersonType        PersonType        `db:"person_type" json:"person_type"`
	ParticipantID     *string           `db:"participant_id" json:"participant_id,omitempty"`
	InstructorID      *string           `db:"instructor_id" json:"instructor_id,omitempty"`
	CourseID          string            `db:"course_id" json:"course_id"`
	RegistrationID    *string           `db:"registration_id" json:"registration_id,omitempty"`
	Name              string            `db:"name" json:"name"`
	IssueDate         time.Time         `db:"issue_date" json:"issue_date"`
	ExpiryDate        *time.Time        `db:"expiry_date" json:"expiry_date,omitempty"`
	EvidenceLink      *string           `db:"evidence_link" json:"evidence_link,omitempty"`
	Status            CertificateStatus `db:"status" json:"status"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

// PersonID returns whichever holder id is set.
func (c Certificate) PersonID() string {
	if c.ParticipantID != nil {
		return *c.ParticipantID
	}
	if c.InstructorID != nil {
		return *c.InstructorID
	}
	return ""
}

// CertificateDetail joins the certificate with holder and course names.
type CertificateDetail struct {
	Certificate
	HolderName  string `db:"holder_name" json:"holder_name"`
	HolderEmail string `db:"holder_email" json:"holder_email,omitempty"`
	CourseTitle string `db:"course_title" json:"course_title"`
}

// CertificateVerification is the public view returned by number lookup.
type CertificateVerification struct {
	CertificateNumber string            `json:"certificate_number"`
	HolderName        string            `json:"holder_name"`
	CourseTitle       string            `json:"course_title"`
	Status            CertificateStatus `json:"status"`
	IssueDate         time.Time         `json:"issue_date"`
	ExpiryDate        *time.Time        `json:"expiry_date,omitempty"`
}
