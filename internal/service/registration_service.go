package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/training-enrollment-api/internal/dto"
	"github.com/noah-isme/training-enrollment-api/internal/models"
	"github.com/noah-isme/training-enrollment-api/internal/repository"
	"github.com/noah-isme/training-enrollment-api/pkg/database"
	appErrors "github.com/noah-isme/training-enrollment-api/pkg/errors"
)

type registrationStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, reg *models.Registration) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Registration, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Registration, error)
	FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error)
	ExistsActive(ctx context.Context, exec sqlx.ExtContext, participantID, classID string) (bool, error)
	CountActive(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error)
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, reg *models.Registration) error
	UpdateAttendance(ctx context.Context, exec sqlx.ExtContext, id string, presentDay int) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type catalogStore interface {
	FindClass(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TrainingClass, error)
	LockClass(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TrainingClass, error)
	FindCourse(ctx context.Context, id string) (*models.Course, error)
	FindParticipant(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Participant, error)
	FindInstructor(ctx context.Context, id string) (*models.Instructor, error)
}

type paymentCascade interface {
	ProofKeysByRegistration(ctx context.Context, exec sqlx.ExtContext, registrationID string) ([]string, error)
	DeleteByRegistration(ctx context.Context, exec sqlx.ExtContext, registrationID string) (int64, error)
}

type registrationCascade interface {
	DeleteByRegistration(ctx context.Context, exec sqlx.ExtContext, registrationID string) (int64, error)
}

type objectRemover interface {
	Delete(key string) error
}

// RegistrationDeps groups collaborators of RegistrationService.
type RegistrationDeps struct {
	Tx            database.Transactor
	Registrations registrationStore
	Catalog       catalogStore
	Payments      paymentCascade
	Certificates  registrationCascade
	ValueReports  registrationCascade
	Quota         *QuotaService
	Files         objectRemover
	Audit         auditWriter
	Metrics       *MetricsService
}

// RegistrationService creates, cancels and maintains registrations.
type RegistrationService struct {
	deps      RegistrationDeps
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRegistrationService constructs RegistrationService.
func NewRegistrationService(deps RegistrationDeps, validate *validator.Validate, logger *zap.Logger) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{deps: deps, validator: validate, logger: logger}
}

// Register admits a participant into a class. The class row is locked for the duration of the
// duplicate check, the active count and the insert so concurrent registrations for the same class
// serialize and never exceed the quota.
func (s *RegistrationService) Register(ctx context.Context, actor *models.JWTClaims, req dto.RegisterRequest) (*models.RegistrationDetail, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid registration payload")
	}
	if !actor.IsAdmin() {
		if actor.ParticipantID == "" || (req.ParticipantID != "" && req.ParticipantID != actor.ParticipantID) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "participants can only register themselves")
		}
		req.ParticipantID = actor.ParticipantID
	}
	if req.ParticipantID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "participantId is required")
	}

	if _, err := s.deps.Catalog.FindParticipant(ctx, nil, req.ParticipantID); err != nil {
		return nil, lookupErr(err, "participant not found")
	}

	reg := &models.Registration{
		ParticipantID: req.ParticipantID,
		ClassID:       req.ClassID,
		RegStatus:     models.RegStatusPending,
		PaymentStatus: models.PaymentStatusUnpaid,
	}
	err := s.deps.Tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		class, err := s.deps.Catalog.LockClass(ctx, exec, req.ClassID)
		if err != nil {
			return lookupErr(err, "class not found")
		}
		exists, err := s.deps.Registrations.ExistsActive(ctx, exec, req.ParticipantID, req.ClassID)
		if err != nil {
			return appErrors.Internal(err, "failed to check existing registration")
		}
		if exists {
			return appErrors.Clone(appErrors.ErrConflict, "participant already registered for this class")
		}
		active, err := s.deps.Registrations.CountActive(ctx, exec, req.ClassID)
		if err != nil {
			return appErrors.Internal(err, "failed to count registrations")
		}
		if err := s.deps.Quota.admit(class, active); err != nil {
			return err
		}
		if err := s.deps.Registrations.Create(ctx, exec, reg); err != nil {
			if repository.IsUniqueViolation(err, repository.ConstraintActiveRegistration) {
				return appErrors.Clone(appErrors.ErrConflict, "participant already registered for this class")
			}
			return appErrors.Internal(err, "failed to create registration")
		}
		return nil
	})
	if err != nil {
		s.deps.Metrics.RecordRegistration(registrationOutcome(err))
		return nil, err
	}

	s.deps.Metrics.RecordRegistration("created")
	s.deps.Quota.Invalidate(ctx, req.ClassID)
	recordAudit(ctx, s.deps.Audit, s.logger, actor, models.AuditActionRegister, "registration", reg.ID, reg)
	s.logger.Info("registration created", zap.String("registration_id", reg.ID), zap.String("class_id", reg.ClassID))

	detail, err := s.deps.Registrations.FindDetailByID(ctx, reg.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load registration")
	}
	return detail, nil
}

func registrationOutcome(err error) string {
	switch {
	case errors.Is(err, appErrors.ErrCapacity):
		return "capacity"
	case errors.Is(err, appErrors.ErrConflict):
		return "conflict"
	case errors.Is(err, appErrors.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// Get returns a registration visible to the actor.
func (s *RegistrationService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.RegistrationDetail, error) {
	detail, err := s.deps.Registrations.FindDetailByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "registration not found")
	}
	if !canReadRegistration(actor, detail.ParticipantID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
	}
	return detail, nil
}

// List returns registrations; participants only see their own.
func (s *RegistrationService) List(ctx context.Context, actor *models.JWTClaims, filter models.RegistrationFilter) ([]models.RegistrationDetail, *models.Pagination, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	if actor.Role == models.RoleParticipant {
		if actor.ParticipantID == "" {
			return nil, nil, appErrors.ErrForbidden
		}
		filter.ParticipantID = actor.ParticipantID
	}
	items, total, err := s.deps.Registrations.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list registrations")
	}
	return items, pagination(filter.Page, filter.PageSize, total), nil
}

// Cancel deletes a registration together with its payments, linked certificates and value reports
// in one transaction. Participants may only cancel their own registration while it is still
// pending and unpaid.
func (s *RegistrationService) Cancel(ctx context.Context, actor *models.JWTClaims, id string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	var (
		classID   string
		proofKeys []string
	)
	err := s.deps.Tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		reg, err := s.deps.Registrations.LockByID(ctx, exec, id)
		if err != nil {
			return lookupErr(err, "registration not found")
		}
		if !actor.IsAdmin() {
			if !actor.OwnsParticipant(reg.ParticipantID) {
				return appErrors.Clone(appErrors.ErrNotFound, "registration not found")
			}
			if reg.RegStatus != models.RegStatusPending || reg.PaymentStatus == models.PaymentStatusPaid {
				return appErrors.Clone(appErrors.ErrInvalidState, "registration can no longer be cancelled")
			}
		}
		classID = reg.ClassID

		if proofKeys, err = s.deps.Payments.ProofKeysByRegistration(ctx, exec, id); err != nil {
			return appErrors.Internal(err, "failed to load payment proofs")
		}
		if _, err := s.deps.Payments.DeleteByRegistration(ctx, exec, id); err != nil {
			return appErrors.Internal(err, "failed to delete payments")
		}
		if _, err := s.deps.Certificates.DeleteByRegistration(ctx, exec, id); err != nil {
			return appErrors.Internal(err, "failed to delete certificates")
		}
		if _, err := s.deps.ValueReports.DeleteByRegistration(ctx, exec, id); err != nil {
			return appErrors.Internal(err, "failed to delete value reports")
		}
		if err := s.deps.Registrations.Delete(ctx, exec, id); err != nil {
			return appErrors.Internal(err, "failed to delete registration")
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, key := range proofKeys {
		if s.deps.Files == nil {
			break
		}
		if err := s.deps.Files.Delete(key); err != nil {
			s.logger.Warn("delete proof file failed", zap.String("key", key), zap.Error(err))
		}
	}
	s.deps.Quota.Invalidate(ctx, classID)
	recordAudit(ctx, s.deps.Audit, s.logger, actor, models.AuditActionCancel, "registration", id, nil)
	s.logger.Info("registration cancelled", zap.String("registration_id", id), zap.String("class_id", classID))
	return nil
}

// UpdateAttendance sets presentDay, rejecting values outside [0, durationDay].
func (s *RegistrationService) UpdateAttendance(ctx context.Context, actor *models.JWTClaims, id string, req dto.AttendanceRequest) (*models.RegistrationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid attendance payload")
	}
	reg, err := s.deps.Registrations.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupErr(err, "registration not found")
	}
	class, err := s.deps.Catalog.FindClass(ctx, nil, reg.ClassID)
	if err != nil {
		return nil, lookupErr(err, "class not found")
	}
	presentDay := *req.PresentDay
	if presentDay < 0 || presentDay > class.DurationDay {
		return nil, appErrors.Clone(appErrors.ErrValidation, "presentDay must be between 0 and the class duration")
	}
	if err := s.deps.Registrations.UpdateAttendance(ctx, nil, id, presentDay); err != nil {
		return nil, lookupErr(err, "registration not found")
	}
	recordAudit(ctx, s.deps.Audit, s.logger, actor, models.AuditActionAttendance, "registration", id, map[string]int{"present_day": presentDay})
	return s.Get(ctx, actor, id)
}
