package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/training-enrollment-api/internal/models"
)

// RegistrationRepository handles persistence of registrations.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationColumns = `id, participant_id, class_id, reg_status, payment_status, payment_amount, present_day, reg_date, updated_at`

const registrationDetailSelect = `SELECT r.id, r.participant_id, r.class_id, r.reg_status, r.payment_status, r.payment_amount,
        r.present_day, r.reg_date, r.updated_at,
        p.full_name AS participant_name, p.email AS participant_email,
        c.name AS class_name, c.course_id, co.title AS course_title, c.price AS class_price, c.duration_day`

const registrationDetailFrom = `FROM registrations r
JOIN participants p ON p.id = r.participant_id
JOIN training_classes c ON c.id = r.class_id
JOIN courses co ON co.id = c.course_id`

// Create inserts a new registration.
func (r *RegistrationRepository) Create(ctx context.Context, exec sqlx.ExtContext, reg *models.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if reg.RegDate.IsZero() {
		reg.RegDate = now
	}
	reg.UpdatedAt = now
	const query = `INSERT INTO registrations (id, participant_id, class_id, reg_status, payment_status, payment_amount, present_day, reg_date, updated_at)
VALUES (:id, :participant_id, :class_id, :reg_status, :payment_status, :payment_amount, :present_day, :reg_date, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, reg); err != nil {
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

// FindByID returns a registration by id.
func (r *RegistrationRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Registration, error) {
	var reg models.Registration
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &reg, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &reg, nil
}

// LockByID returns a registration holding its row lock. Must run inside a transaction.
func (r *RegistrationRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Registration, error) {
	var reg models.Registration
	if err := sqlx.GetContext(ctx, exec, &reg, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	return &reg, nil
}

// FindDetailByID returns a registration with participant and class info.
func (r *RegistrationRepository) FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	var detail models.RegistrationDetail
	query := registrationDetailSelect + "\n" + registrationDetailFrom + "\nWHERE r.id = $1"
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsActive checks whether a non-cancelled registration exists for the participant and class.
func (r *RegistrationRepository) ExistsActive(ctx context.Context, exec sqlx.ExtContext, participantID, classID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM registrations WHERE participant_id = $1 AND class_id = $2 AND reg_status <> $3)`
	var exists bool
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &exists, query, participantID, classID, models.RegStatusCancelled); err != nil {
		return false, fmt.Errorf("check active registration: %w", err)
	}
	return exists, nil
}

// CountActive returns the number of non-cancelled registrations for a class.
func (r *RegistrationRepository) CountActive(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error) {
	const query = `SELECT COUNT(*) FROM registrations WHERE class_id = $1 AND reg_status <> $2`
	var count int
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &count, query, classID, models.RegStatusCancelled); err != nil {
		return 0, fmt.Errorf("count active registrations: %w", err)
	}
	return count, nil
}

// List returns registrations filtered by the provided criteria.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.ClassID != "" {
		args = append(args, filter.ClassID)
		conditions = append(conditions, fmt.Sprintf("r.class_id = $%d", len(args)))
	}
	if filter.ParticipantID != "" {
		args = append(args, filter.ParticipantID)
		conditions = append(conditions, fmt.Sprintf("r.participant_id = $%d", len(args)))
	}
	if filter.RegStatus != "" {
		args = append(args, filter.RegStatus)
		conditions = append(conditions, fmt.Sprintf("r.reg_status = $%d", len(args)))
	}
	if filter.PaymentStatus != "" {
		args = append(args, filter.PaymentStatus)
		conditions = append(conditions, fmt.Sprintf("r.payment_status = $%d", len(args)))
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"reg_date":         "r.reg_date",
		"participant_name": "p.full_name",
		"payment_status":   "r.payment_status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "r.reg_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("%s\n%s%s ORDER BY %s %s, r.id LIMIT %d OFFSET %d",
		registrationDetailSelect, registrationDetailFrom, clause, orderBy, order, size, offset)

	var items []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) %s%s", registrationDetailFrom, clause)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return items, total, nil
}

// ListRoster returns every registration of a class ordered by participant name.
func (r *RegistrationRepository) ListRoster(ctx context.Context, classID string) ([]models.RegistrationDetail, error) {
	query := registrationDetailSelect + "\n" + registrationDetailFrom + "\nWHERE r.class_id = $1 ORDER BY p.full_name ASC"
	var items []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &items, query, classID); err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return items, nil
}

// UpdateStatus writes the combined registration and payment state.
func (r *RegistrationRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, reg *models.Registration) error {
	reg.UpdatedAt = time.Now().UTC()
	const query = `UPDATE registrations SET reg_status = $2, payment_status = $3, payment_amount = $4, updated_at = $5 WHERE id = $1`
	res, err := pick(r.db, exec).ExecContext(ctx, query, reg.ID, reg.RegStatus, reg.PaymentStatus, reg.PaymentAmount, reg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update registration status: %w", err)
	}
	return expectOne(res, "update registration status")
}

// UpdateAttendance sets the attendance counter.
func (r *RegistrationRepository) UpdateAttendance(ctx context.Context, exec sqlx.ExtContext, id string, presentDay int) error {
	const query = `UPDATE registrations SET present_day = $2, updated_at = $3 WHERE id = $1`
	res, err := pick(r.db, exec).ExecContext(ctx, query, id, presentDay, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	return expectOne(res, "update attendance")
}

// Delete removes the registration row.
func (r *RegistrationRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	res, err := pick(r.db, exec).ExecContext(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	return expectOne(res, "delete registration")
}
