package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/training-enrollment-api/internal/models"
)

// CertificateRepository persists issued certificates.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

const certificateDetailSelect = `SELECT ce.id, ce.certificate_number, ce.person_type, ce.participant_id, ce.instructor_id, ce.course_id,
        ce.registration_id, ce.name, ce.issue_date, ce.expiry_date, ce.evidence_link, ce.status, ce.created_at, ce.updated_at,
        COALESCE(p.full_name, i.full_name, ce.name) AS holder_name,
        COALESCE(p.email, i.email, '') AS holder_email,
        co.title AS course_title
FROM certificates ce
LEFT JOIN participants p ON p.id = ce.participant_id
LEFT JOIN instructors i ON i.id = ce.instructor_id
JOIN courses co ON co.id = ce.course_id`

// Create inserts a certificate. A duplicate number surfaces as a unique violation on
// ConstraintCertificateNumber.
func (r *CertificateRepository) Create(ctx context.Context, exec sqlx.ExtContext, cert *models.Certificate) error {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	cert.CreatedAt = now
	cert.UpdatedAt = now
	if cert.Status == "" {
		cert.Status = models.CertificateStatusValid
	}
	const query = `INSERT INTO certificates (id, certificate_number, person_type, participant_id, instructor_id, course_id,
        registration_id, name, issue_date, expiry_date, evidence_link, status, created_at, updated_at)
VALUES (:id, :certificate_number, :person_type, :participant_id, :instructor_id, :course_id,
        :registration_id, :name, :issue_date, :expiry_date, :evidence_link, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, cert); err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

// FindDetailByID returns a certificate with holder and course names.
func (r *CertificateRepository) FindDetailByID(ctx context.Context, id string) (*models.CertificateDetail, error) {
	var detail models.CertificateDetail
	if err := r.db.GetContext(ctx, &detail, certificateDetailSelect+"\nWHERE ce.id = $1", id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindDetailByNumber looks a certificate up by its public number.
func (r *CertificateRepository) FindDetailByNumber(ctx context.Context, number string) (*models.CertificateDetail, error) {
	var detail models.CertificateDetail
	if err := r.db.GetContext(ctx, &detail, certificateDetailSelect+"\nWHERE ce.certificate_number = $1", number); err != nil {
		return nil, err
	}
	return &detail, nil
}

// DeleteByRegistration removes certificates linked to a registration.
func (r *CertificateRepository) DeleteByRegistration(ctx context.Context, exec sqlx.ExtContext, registrationID string) (int64, error) {
	res, err := pick(r.db, exec).ExecContext(ctx, `DELETE FROM certificates WHERE registration_id = $1`, registrationID)
	if err != nil {
		return 0, fmt.Errorf("delete certificates: %w", err)
	}
	return res.RowsAffected()
}

// ExpireBefore flips every VALID certificate whose expiry is before now to EXPIRED in one statement.
func (r *CertificateRepository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE certificates SET status = $1, updated_at = $2
WHERE status = $3 AND expiry_date IS NOT NULL AND expiry_date < $2`
	res, err := r.db.ExecContext(ctx, query, models.CertificateStatusExpired, now.UTC(), models.CertificateStatusValid)
	if err != nil {
		return 0, fmt.Errorf("expire certificates: %w", err)
	}
	return res.RowsAffected()
}
