package enroll

import (
	"context"
	"errors"
	"time"
)

var (
	// errors
	ErrNotFound = errors.New("enrollment not found")
)

type (
	// Enrollment anchors a user to a course: the anchor timestamp is day zero
	// of every day-keyed script evaluated for them.
	Enrollment struct {
		ID        string    `json:"id" db:"id"`
		FirstName string    `json:"first_name" db:"first_name"`
		Email     string    `json:"email" db:"email"`
		Phone     string    `json:"phone" db:"phone"`
		Course    string    `json:"course" db:"course"`
		IsActive  bool      `json:"is_active" db:"is_active"`
		AnchorAt  time.Time `json:"anchor_at" db:"anchor_at"`   // UTC; opt-in/enrollment time
		CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
	}

	// NewEnrollment holds the fields accepted at opt-in.
	NewEnrollment struct {
		FirstName string `json:"first_name" validate:"required"`
		Email     string `json:"email" validate:"required,email"`
		Phone     string `json:"phone"`
		Course    string `json:"course" validate:"required"`
	}

	Repository interface {
		CreateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)
		GetEnrollmentByID(ctx context.Context, id string) (Enrollment, error)
		// QueryActiveEnrollments returns the active enrollments whose anchor is
		// at or before asOf, i.e. everyone a day-keyed sweep must consider.
		QueryActiveEnrollments(ctx context.Context, asOf time.Time) ([]Enrollment, error)
	}
)

// ElapsedDays returns the number of whole days between the anchor and now.
func (e Enrollment) ElapsedDays(now time.Time) int {
	if now.Before(e.AnchorAt) {
		return -1
	}
	return int(now.Sub(e.AnchorAt).Hours() / 24)
}

// HourOfDay returns how many whole hours into the current elapsed day now is.
func (e Enrollment) HourOfDay(now time.Time) int {
	days := e.ElapsedDays(now)
	if days < 0 {
		return 0
	}
	return int(now.Sub(e.AnchorAt).Hours()) - days*24
}
