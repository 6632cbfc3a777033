package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/training-enrollment-api/internal/dto"
	"github.com/noah-isme/training-enrollment-api/internal/models"
	"github.com/noah-isme/training-enrollment-api/pkg/database"
	appErrors "github.com/noah-isme/training-enrollment-api/pkg/errors"
)

// Verification sources recorded in metrics and audit entries.
const (
	VerificationSourceAdmin    = "admin"
	VerificationSourceMidtrans = "midtrans"
)

// VerificationDeps groups collaborators of VerificationService.
type VerificationDeps struct {
	Tx            database.Transactor
	Payments      paymentStore
	Registrations registrationStore
	Notifier      paymentNotifier
	Audit         auditWriter
	Metrics       *MetricsService
}

// VerificationService applies approve/reject decisions to pending payments.
type VerificationService struct {
	deps      VerificationDeps
	validator *validator.Validate
	clock     Clock
	logger    *zap.Logger
}

// NewVerificationService constructs VerificationService.
func NewVerificationService(deps VerificationDeps, validate *validator.Validate, logger *zap.Logger) *VerificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerificationService{deps: deps, validator: validate, clock: systemClock, logger: logger}
}

// Verify is the admin entry point.
func (s *VerificationService) Verify(ctx context.Context, actor *models.JWTClaims, paymentID string, req dto.VerifyPaymentRequest) (*models.VerificationResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid verification payload")
	}
	result, err := s.ApplyDecision(ctx, actorID(actor), paymentID, *req.Approve, req.Note, VerificationSourceAdmin)
	if err != nil {
		return nil, err
	}
	recordAudit(ctx, s.deps.Audit, s.logger, actor, models.AuditActionPaymentVerify, "payment", paymentID, result)
	return result, nil
}

// ApplyDecision flips a PENDING payment and its registration in one transaction. The registration
// row is locked before the payment row. Payments that are no longer pending, or registrations that
// are already Paid or Rejected, yield InvalidState. Any other PENDING rows of the registration are
// closed as superseded in the same transaction.
func (s *VerificationService) ApplyDecision(ctx context.Context, verifiedBy *string, paymentID string, approve bool, note, source string) (*models.VerificationResult, error) {
	current, err := s.deps.Payments.FindByID(ctx, nil, paymentID)
	if err != nil {
		return nil, lookupErr(err, "payment not found")
	}

	var result models.VerificationResult
	err = s.deps.Tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		reg, err := s.deps.Registrations.LockByID(ctx, exec, current.RegistrationID)
		if err != nil {
			return lookupErr(err, "registration not found")
		}
		payment, err := s.deps.Payments.LockByID(ctx, exec, paymentID)
		if err != nil {
			return lookupErr(err, "payment not found")
		}
		if payment.Status != models.PaymentRecordPending {
			return appErrors.Clone(appErrors.ErrInvalidState, "payment is not pending verification")
		}
		if registrationSettled(reg) {
			return appErrors.Clone(appErrors.ErrInvalidState, "registration payment is already settled")
		}

		now := s.clock()
		payment.VerifiedBy = verifiedBy
		payment.VerifiedAt = &now
		if note != "" {
			n := note
			payment.Note = &n
		}
		if approve {
			payment.Status = models.PaymentRecordPaid
		} else {
			payment.Status = models.PaymentRecordRejected
		}
		if err := s.deps.Payments.UpdateVerification(ctx, exec, payment); err != nil {
			return appErrors.Internal(err, "failed to update payment")
		}

		if approve {
			paid, err := s.deps.Payments.SumPaid(ctx, exec, reg.ID)
			if err != nil {
				return appErrors.Internal(err, "failed to total payments")
			}
			reg.RegStatus = models.RegStatusRegistered
			reg.PaymentStatus = models.PaymentStatusPaid
			reg.PaymentAmount = paid
		} else {
			reg.RegStatus = models.RegStatusRejected
			reg.PaymentStatus = models.PaymentStatusRejected
		}
		if err := s.deps.Registrations.UpdateStatus(ctx, exec, reg); err != nil {
			return appErrors.Internal(err, "failed to update registration")
		}
		if err := supersedePending(ctx, s.deps.Payments, exec, reg.ID, payment.ID, now); err != nil {
			return err
		}
		result = models.VerificationResult{Payment: *payment, Registration: *reg}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.deps.Metrics.RecordVerification(approve, source)
	s.logger.Info("payment verified",
		zap.String("payment_id", paymentID),
		zap.String("registration_id", result.Registration.ID),
		zap.Bool("approved", approve),
		zap.String("source", source),
	)
	if s.deps.Notifier != nil {
		detail, err := s.deps.Registrations.FindDetailByID(ctx, result.Registration.ID)
		if err != nil {
			s.logger.Warn("load registration for notification", zap.String("registration_id", result.Registration.ID), zap.Error(err))
		} else {
			s.deps.Notifier.SendVerificationResult(ctx, detail, &result.Payment)
		}
	}
	return &result, nil
}

// registrationSettled reports whether the registration reached a terminal payment outcome.
func registrationSettled(reg *models.Registration) bool {
	switch {
	case reg.RegStatus == models.RegStatusRejected, reg.PaymentStatus == models.PaymentStatusRejected:
		return true
	case reg.PaymentStatus == models.PaymentStatusPaid:
		return true
	}
	return false
}

func supersedePending(ctx context.Context, payments paymentStore, exec sqlx.ExtContext, registrationID, keepID string, at time.Time) error {
	note := "superseded by payment " + keepID
	if _, err := payments.SupersedePending(ctx, exec, registrationID, keepID, note, at); err != nil {
		return appErrors.Internal(err, "failed to close pending payments")
	}
	return nil
}
