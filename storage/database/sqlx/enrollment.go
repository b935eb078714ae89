package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/enroll"
)

type enrollmentRepository struct {
	db *sqlx.DB
}

var _ enroll.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *sqlx.DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (repo enrollmentRepository) CreateEnrollment(ctx context.Context, enr enroll.Enrollment) (enroll.Enrollment, error) {
	_, err := repo.db.NamedExecContext(
		ctx,
		`INSERT INTO enrollment (id, first_name, email, phone, course, is_active, anchor_at, created_at)
		 VALUES (:id, :first_name, :email, :phone, :course, :is_active, :anchor_at, :created_at)`,
		enr,
	)
	if err != nil {
		return enroll.Enrollment{}, errors.Wrap(err, "creating enrollment")
	}
	return enr, nil
}

func (repo enrollmentRepository) GetEnrollmentByID(ctx context.Context, id string) (enroll.Enrollment, error) {
	var enr enroll.Enrollment
	err := repo.db.GetContext(
		ctx, &enr,
		`SELECT id, first_name, email, phone, course, is_active, anchor_at, created_at
		 FROM enrollment WHERE id = $1`,
		id,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return enroll.Enrollment{}, enroll.ErrNotFound
		}
		return enroll.Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	return enr, nil
}

func (repo enrollmentRepository) QueryActiveEnrollments(ctx context.Context, asOf time.Time) ([]enroll.Enrollment, error) {
	var enrs []enroll.Enrollment
	err := repo.db.SelectContext(
		ctx, &enrs,
		`SELECT id, first_name, email, phone, course, is_active, anchor_at, created_at
		 FROM enrollment WHERE is_active AND anchor_at <= $1 ORDER BY anchor_at ASC`,
		asOf,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying active enrollments")
	}
	return enrs, nil
}
