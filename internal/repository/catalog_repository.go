package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/training-enrollment-api/internal/models"
)

// CatalogRepository reads the course catalog owned by the catalog service.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

const classColumns = `id, course_id, name, quota, price, start_reg_date, end_reg_date, start_date, end_date, duration_day, location`

// FindClass returns a class by id.
func (r *CatalogRepository) FindClass(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TrainingClass, error) {
	var class models.TrainingClass
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &class, `SELECT `+classColumns+` FROM training_classes WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// LockClass returns a class by id holding a row lock until the transaction ends.
// Registrations for the same class serialize on this lock.
func (r *CatalogRepository) LockClass(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TrainingClass, error) {
	var class models.TrainingClass
	if err := sqlx.GetContext(ctx, exec, &class, `SELECT `+classColumns+` FROM training_classes WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindCourse returns a course by id.
func (r *CatalogRepository) FindCourse(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	if err := r.db.GetContext(ctx, &course, `SELECT id, code, title, description FROM courses WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindParticipant returns a participant by id.
func (r *CatalogRepository) FindParticipant(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Participant, error) {
	var p models.Participant
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &p, `SELECT id, full_name, email, phone FROM participants WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindInstructor returns an instructor by id.
func (r *CatalogRepository) FindInstructor(ctx context.Context, id string) (*models.Instructor, error) {
	var i models.Instructor
	if err := r.db.GetContext(ctx, &i, `SELECT id, full_name, email FROM instructors WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &i, nil
}
