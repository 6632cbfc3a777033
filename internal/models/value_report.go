package models

import "time"

// ValueReport is a scoring entry attached to a registration.
type ValueReport struct {
	ID             string    `db:"id" json:"id"`
	RegistrationID string    `db:"registration_id" json:"registration_id"`
	Aspect         string    `db:"aspect" json:"aspect"`
	Score          int       `db:"score" json:"score"`
	Note           *string   `db:"note" json:"note,omitempty"`
	CreatedBy      *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
