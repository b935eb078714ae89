package inmemdb

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/darasahq/darasa/core/enroll"
)

type enrollmentRepository struct {
	mutex sync.RWMutex
	table map[string]enroll.Enrollment
}

var _ enroll.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository() *enrollmentRepository {
	return &enrollmentRepository{table: make(map[string]enroll.Enrollment)}
}

func (repo *enrollmentRepository) CreateEnrollment(_ context.Context, enr enroll.Enrollment) (enroll.Enrollment, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	repo.table[enr.ID] = enr
	return enr, nil
}

func (repo *enrollmentRepository) GetEnrollmentByID(_ context.Context, id string) (enroll.Enrollment, error) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	enr, ok := repo.table[id]
	if !ok {
		return enroll.Enrollment{}, enroll.ErrNotFound
	}
	return enr, nil
}

func (repo *enrollmentRepository) QueryActiveEnrollments(_ context.Context, asOf time.Time) ([]enroll.Enrollment, error) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	var enrs []enroll.Enrollment
	for _, enr := range repo.table {
		if enr.IsActive && !enr.AnchorAt.After(asOf) {
			enrs = append(enrs, enr)
		}
	}
	sort.Slice(enrs, func(i, j int) bool { return enrs[i].AnchorAt.Before(enrs[j].AnchorAt) })
	return enrs, nil
}
