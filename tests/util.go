package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core/enroll"
)

func CreateEnrollment(
	t *testing.T,
	repo enroll.Repository,
	firstName, email, course string,
	isActive bool,
	anchorAt ...time.Time,
) enroll.Enrollment {
	tstamp := time.Now().UTC()
	if len(anchorAt) > 0 {
		tstamp = anchorAt[0].UTC()
	}
	enr := enroll.Enrollment{
		ID:        uuid.New().String(),
		FirstName: firstName,
		Email:     email,
		Course:    course,
		IsActive:  isActive,
		AnchorAt:  tstamp,
		CreatedAt: tstamp,
	}
	enr, err := repo.CreateEnrollment(context.Background(), enr)
	if err != nil {
		t.Fatalf("createEnrollment() failed: %v", err)
	}
	return enr
}
