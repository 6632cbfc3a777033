package dto

import "github.com/noah-isme/training-enrollment-api/internal/models"

// RegisterRequest defines payload for creating a registration.
type RegisterRequest struct {
	ParticipantID string `json:"participantId"`
	ClassID       string `json:"classId" validate:"required"`
}

// AttendanceRequest updates the attendance counter.
type AttendanceRequest struct {
	PresentDay *int `json:"presentDay" validate:"required"`
}

// RegistrationQuery captures list query parameters.
type RegistrationQuery struct {
	ClassID       string `form:"classId"`
	ParticipantID string `form:"participantId"`
	RegStatus     string `form:"regStatus" validate:"omitempty,oneof=PENDING REGISTERED REJECTED"`
	PaymentStatus string `form:"paymentStatus" validate:"omitempty,oneof=UNPAID PARTIAL PENDING PAID REJECTED"`
	Page          int    `form:"page"`
	PageSize      int    `form:"pageSize"`
	SortBy        string `form:"sortBy"`
	SortOrder     string `form:"sortOrder"`
}

// Filter converts the query into a repository filter.
func (q RegistrationQuery) Filter() models.RegistrationFilter {
	return models.RegistrationFilter{
		ClassID:       q.ClassID,
		ParticipantID: q.ParticipantID,
		RegStatus:     models.RegStatus(q.RegStatus),
		PaymentStatus: models.PaymentStatus(q.PaymentStatus),
		Page:          q.Page,
		PageSize:      q.PageSize,
		SortBy:        q.SortBy,
		SortOrder:     q.SortOrder,
	}
}

// RosterQuery selects a class roster export.
type RosterQuery struct {
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
}
