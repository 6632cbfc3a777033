package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/training-enrollment-api/internal/models"
)

// ValueReportRepository persists registration scoring entries.
type ValueReportRepository struct {
	db *sqlx.DB
}

// NewValueReportRepository constructs the repository.
func NewValueReportRepository(db *sqlx.DB) *ValueReportRepository {
	return &ValueReportRepository{db: db}
}

const valueReportColumns = `id, registration_id, aspect, score, note, created_by, created_at, updated_at`

// Create inserts a value report.
func (r *ValueReportRepository) Create(ctx context.Context, report *models.ValueReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	report.CreatedAt = now
	report.UpdatedAt = now
	const query = `INSERT INTO value_reports (id, registration_id, aspect, score, note, created_by, created_at, updated_at)
VALUES (:id, :registration_id, :aspect, :score, :note, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("create value report: %w", err)
	}
	return nil
}

// FindByID returns a value report by id.
func (r *ValueReportRepository) FindByID(ctx context.Context, id string) (*models.ValueReport, error) {
	var report models.ValueReport
	if err := r.db.GetContext(ctx, &report, `SELECT `+valueReportColumns+` FROM value_reports WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &report, nil
}

// ListByRegistration returns the reports of a registration in creation order.
func (r *ValueReportRepository) ListByRegistration(ctx context.Context, registrationID string) ([]models.ValueReport, error) {
	var reports []models.ValueReport
	query := `SELECT ` + valueReportColumns + ` FROM value_reports WHERE registration_id = $1 ORDER BY created_at ASC, id ASC`
	if err := r.db.SelectContext(ctx, &reports, query, registrationID); err != nil {
		return nil, fmt.Errorf("list value reports: %w", err)
	}
	return reports, nil
}

// Update overwrites the scoring fields.
func (r *ValueReportRepository) Update(ctx context.Context, report *models.ValueReport) error {
	report.UpdatedAt = time.Now().UTC()
	const query = `UPDATE value_reports SET aspect = $2, score = $3, note = $4, updated_at = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, report.ID, report.Aspect, report.Score, report.Note, report.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update value report: %w", err)
	}
	return expectOne(res, "update value report")
}

// Delete removes a single report.
func (r *ValueReportRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM value_reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete value report: %w", err)
	}
	return expectOne(res, "delete value report")
}

// DeleteByRegistration removes every report of a registration.
func (r *ValueReportRepository) DeleteByRegistration(ctx context.Context, exec sqlx.ExtContext, registrationID string) (int64, error) {
	res, err := pick(r.db, exec).ExecContext(ctx, `DELETE FROM value_reports WHERE registration_id = $1`, registrationID)
	if err != nil {
		return 0, fmt.Errorf("delete value reports: %w", err)
	}
	return res.RowsAffected()
}
