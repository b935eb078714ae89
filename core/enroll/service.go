package enroll

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, ne NewEnrollment) (Enrollment, error) {
	now := time.Now().UTC()
	enr := Enrollment{
		ID:        uuid.New().String(),
		FirstName: core.CleanString(ne.FirstName),
		Email:     core.CleanString(ne.Email, true /* lower */),
		Phone:     core.CleanString(ne.Phone),
		Course:    core.CleanString(ne.Course, true /* lower */),
		IsActive:  true,
		AnchorAt:  now,
		CreatedAt: now,
	}
	return svc.repo.CreateEnrollment(ctx, enr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Enrollment, error) {
	return svc.repo.GetEnrollmentByID(ctx, id)
}

func (svc *Service) QueryActive(ctx context.Context, asOf time.Time) ([]Enrollment, error) {
	return svc.repo.QueryActiveEnrollments(ctx, asOf)
}
