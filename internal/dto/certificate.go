package dto

import "time"

// IssueCertificateRequest defines payload for issuing a certificate.
type IssueCertificateRequest struct {
	PersonType     string     `json:"personType" validate:"required,oneof=participant instructor"`
	PersonID       string     `json:"personId" validate:"required"`
	CourseID       string     `json:"courseId" validate:"required"`
	RegistrationID string     `json:"registrationId"`
	Name           string     `json:"name" validate:"omitempty,max=200"`
	IssueDate      time.Time  `json:"issueDate" validate:"required"`
	ExpiryDate     *time.Time `json:"expiryDate"`
	EvidenceLink   string     `json:"evidenceLink" validate:"omitempty,url"`
}

// SweepResponse reports how many certificates were expired.
type SweepResponse struct {
	Expired int64     `json:"expired"`
	RanAt   time.Time `json:"ranAt"`
}
