package models

import "time"

// Course is a catalog entry; classes are scheduled instances of it.
type Course struct {
	ID          string `db:"id" json:"id"`
	Code        string `db:"code" json:"code"`
	Title       string `db:"title" json:"title"`
	Description string `db:"description" json:"description,omitempty"`
}

// TrainingClass is a scheduled, capacity-limited instance of a course.
type TrainingClass struct {
	ID           string    `db:"id" json:"id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	Name         string    `db:"name" json:"name"`
	Quota        int       `db:"quota" json:"quota"`
	Price        int64     `db:"price" json:"price"`
	StartRegDate time.Time `db:"start_reg_date" json:"start_reg_date"`
	EndRegDate   time.Time `db:"end_reg_date" json:"end_reg_date"`
	StartDate    time.Time `db:"start_date" json:"start_date"`
	EndDate      time.Time `db:"end_date" json:"end_date"`
	DurationDay  int       `db:"duration_day" json:"duration_day"`
	Location     string    `db:"location" json:"location"`
}

// RemainingSeats returns quota minus active registrations. A negative value means the class is
// already overbooked.
func (c TrainingClass) RemainingSeats(active int) int {
	return c.Quota - active
}

// RegistrationOpen reports whether now falls inside the inclusive registration window.
func (c TrainingClass) RegistrationOpen(now time.Time) bool {
	t := now.UTC().Truncate(time.Second)
	return !t.Before(c.StartRegDate.UTC().Truncate(time.Second)) && !t.After(c.EndRegDate.UTC().Truncate(time.Second))
}

// CanRegister combines the seat and window rules.
func (c TrainingClass) CanRegister(active int, now time.Time) bool {
	return c.RemainingSeats(active) > 0 && c.RegistrationOpen(now)
}

// SeatSummary is the QuotaTracker view of a class.
type SeatSummary struct {
	ClassID          string    `json:"class_id"`
	Quota            int       `json:"quota"`
	Active           int       `json:"active"`
	Remaining        int       `json:"remaining"`
	RegistrationOpen bool      `json:"registration_open"`
	CanRegister      bool      `json:"can_register"`
	ComputedAt       time.Time `json:"computed_at"`
}

// Participant is a person who enrolls in classes.
type Participant struct {
	ID       string `db:"id" json:"id"`
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
	Phone    string `db:"phone" json:"phone,omitempty"`
}

// Instructor teaches classes and may receive certificates.
type Instructor struct {
	ID       string `db:"id" json:"id"`
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
}
