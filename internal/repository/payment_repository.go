package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/training-enrollment-api/internal/models"
)

// PaymentRepository persists payment ledger rows.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, registration_id, amount, method, reference_number, proof_url, proof_mime, status, payment_date,
        verified_by, verified_at, note, created_at, updated_at`

// Create inserts a payment row.
func (r *PaymentRepository) Create(ctx context.Context, exec sqlx.ExtContext, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if payment.PaymentDate.IsZero() {
		payment.PaymentDate = now
	}
	payment.CreatedAt = now
	payment.UpdatedAt = now
	const query = `INSERT INTO payments (id, registration_id, amount, method, reference_number, proof_url, proof_mime, status,
        payment_date, verified_by, verified_at, note, created_at, updated_at)
VALUES (:id, :registration_id, :amount, :method, :reference_number, :proof_url, :proof_mime, :status,
        :payment_date, :verified_by, :verified_at, :note, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// FindByID returns a payment by id.
func (r *PaymentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Payment, error) {
	var payment models.Payment
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &payment, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// LockByID re-reads a payment holding its row lock. Callers lock the owning registration first.
func (r *PaymentRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Payment, error) {
	var payment models.Payment
	if err := sqlx.GetContext(ctx, exec, &payment, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByReference returns a payment by its unique reference number.
func (r *PaymentRepository) FindByReference(ctx context.Context, reference string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, `SELECT `+paymentColumns+` FROM payments WHERE reference_number = $1`, reference); err != nil {
		return nil, err
	}
	return &payment, nil
}

// Latest returns the most recent payment of a registration.
func (r *PaymentRepository) Latest(ctx context.Context, exec sqlx.ExtContext, registrationID string) (*models.Payment, error) {
	var payment models.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE registration_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &payment, query, registrationID); err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListByRegistration returns every payment of a registration, newest first.
func (r *PaymentRepository) ListByRegistration(ctx context.Context, registrationID string) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE registration_id = $1 ORDER BY created_at DESC, id DESC`
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, registrationID); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// UpdateProof overwrites the evidence fields of a pending payment.
func (r *PaymentRepository) UpdateProof(ctx context.Context, exec sqlx.ExtContext, payment *models.Payment) error {
	payment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE payments SET amount = $2, method = $3, reference_number = $4, proof_url = $5, proof_mime = $6,
        status = $7, payment_date = $8, updated_at = $9 WHERE id = $1`
	res, err := pick(r.db, exec).ExecContext(ctx, query, payment.ID, payment.Amount, payment.Method, payment.ReferenceNumber,
		payment.ProofURL, payment.ProofMIME, payment.Status, payment.PaymentDate, payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update payment proof: %w", err)
	}
	return expectOne(res, "update payment proof")
}

// UpdateVerification records the verification decision.
func (r *PaymentRepository) UpdateVerification(ctx context.Context, exec sqlx.ExtContext, payment *models.Payment) error {
	payment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE payments SET status = $2, verified_by = $3, verified_at = $4, note = $5, updated_at = $6 WHERE id = $1`
	res, err := pick(r.db, exec).ExecContext(ctx, query, payment.ID, payment.Status, payment.VerifiedBy, payment.VerifiedAt, payment.Note, payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update payment verification: %w", err)
	}
	return expectOne(res, "update payment verification")
}

// SumPaid totals the PAID rows of a registration.
func (r *PaymentRepository) SumPaid(ctx context.Context, exec sqlx.ExtContext, registrationID string) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE registration_id = $1 AND status = $2`
	var total int64
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &total, query, registrationID, models.PaymentRecordPaid); err != nil {
		return 0, fmt.Errorf("sum paid payments: %w", err)
	}
	return total, nil
}

// SupersedePending rejects every PENDING row of a registration except keepID and returns how many
// rows were closed.
func (r *PaymentRepository) SupersedePending(ctx context.Context, exec sqlx.ExtContext, registrationID, keepID, note string, at time.Time) (int64, error) {
	const query = `UPDATE payments SET status = $3, note = $4, verified_at = $5, updated_at = $5
WHERE registration_id = $1 AND id <> $2 AND status = $6`
	res, err := pick(r.db, exec).ExecContext(ctx, query, registrationID, keepID, models.PaymentRecordRejected, note, at.UTC(), models.PaymentRecordPending)
	if err != nil {
		return 0, fmt.Errorf("supersede pending payments: %w", err)
	}
	return res.RowsAffected()
}

// ProofKeysByRegistration returns the storage keys of proofs attached to a registration.
func (r *PaymentRepository) ProofKeysByRegistration(ctx context.Context, exec sqlx.ExtContext, registrationID string) ([]string, error) {
	const query = `SELECT proof_url FROM payments WHERE registration_id = $1 AND proof_url IS NOT NULL`
	var keys []string
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &keys, query, registrationID); err != nil {
		return nil, fmt.Errorf("list proof keys: %w", err)
	}
	return keys, nil
}

// DeleteByRegistration removes every payment of a registration.
func (r *PaymentRepository) DeleteByRegistration(ctx context.Context, exec sqlx.ExtContext, registrationID string) (int64, error) {
	res, err := pick(r.db, exec).ExecContext(ctx, `DELETE FROM payments WHERE registration_id = $1`, registrationID)
	if err != nil {
		return 0, fmt.Errorf("delete payments: %w", err)
	}
	return res.RowsAffected()
}
