package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/training-enrollment-api/internal/dto"
	"github.com/noah-isme/training-enrollment-api/internal/models"
	"github.com/noah-isme/training-enrollment-api/pkg/database"
	appErrors "github.com/noah-isme/training-enrollment-api/pkg/errors"
	"github.com/noah-isme/training-enrollment-api/pkg/gateway"
)

type checkoutGateway interface {
	CreateCheckout(req gateway.CheckoutRequest) (*gateway.Checkout, error)
	VerifySignature(n gateway.Notification) bool
}

type decisionApplier interface {
	ApplyDecision(ctx context.Context, verifiedBy *string, paymentID string, approve bool, note, source string) (*models.VerificationResult, error)
}

// GatewayService opens Midtrans Snap checkouts and turns their notifications into verifications.
type GatewayService struct {
	tx            database.Transactor
	gateway       checkoutGateway
	payments      paymentStore
	registrations registrationStore
	verifier      decisionApplier
	audit         auditWriter
	clock         Clock
	logger        *zap.Logger
}

// NewGatewayService constructs GatewayService. A nil gateway disables online checkout.
func NewGatewayService(tx database.Transactor, gw checkoutGateway, payments paymentStore, registrations registrationStore, verifier decisionApplier, audit auditWriter, logger *zap.Logger) *GatewayService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GatewayService{
		tx:            tx,
		gateway:       gw,
		payments:      payments,
		registrations: registrations,
		verifier:      verifier,
		audit:         audit,
		clock:         systemClock,
		logger:        logger,
	}
}

// Enabled reports whether checkout is configured.
func (s *GatewayService) Enabled() bool {
	return s != nil && s.gateway != nil
}

// Checkout requests a Snap token for the outstanding class fee and records a pending GATEWAY payment.
func (s *GatewayService) Checkout(ctx context.Context, actor *models.JWTClaims, registrationID string) (*dto.CheckoutResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !s.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "online payment is not enabled")
	}
	detail, err := s.registrations.FindDetailByID(ctx, registrationID)
	if err != nil {
		return nil, lookupErr(err, "registration not found")
	}
	if !canWriteRegistration(actor, detail.ParticipantID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
	}
	if err := acceptsPayment(&detail.Registration); err != nil {
		return nil, err
	}
	outstanding := detail.ClassPrice - detail.PaymentAmount
	if outstanding <= 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "registration has no outstanding amount")
	}

	now := s.clock()
	reference := generateReference(now)
	checkout, err := s.gateway.CreateCheckout(gateway.CheckoutRequest{
		OrderID:  reference,
		Amount:   outstanding,
		ItemName: fmt.Sprintf("%s - %s", detail.CourseTitle, detail.ClassName),
		Customer: gateway.Customer{Name: detail.ParticipantName, Email: detail.ParticipantEmail},
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "payment gateway unavailable")
	}

	payment := &models.Payment{
		RegistrationID:  registrationID,
		Amount:          outstanding,
		Method:          models.PaymentMethodGateway,
		ReferenceNumber: reference,
		Status:          models.PaymentRecordPending,
		PaymentDate:     now,
	}
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		reg, err := s.registrations.LockByID(ctx, exec, registrationID)
		if err != nil {
			return lookupErr(err, "registration not found")
		}
		if err := acceptsPayment(reg); err != nil {
			return err
		}
		if err := s.payments.Create(ctx, exec, payment); err != nil {
			return referenceErr(err, "failed to create payment")
		}
		reg.PaymentStatus = models.PaymentStatusPending
		if err := s.registrations.UpdateStatus(ctx, exec, reg); err != nil {
			return appErrors.Internal(err, "failed to update registration")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionGatewayCheckout, "payment", payment.ID, payment)
	s.logger.Info("gateway checkout opened", zap.String("registration_id", registrationID), zap.String("order_id", reference), zap.Int64("amount", outstanding))
	return &dto.CheckoutResponse{Payment: *payment, Token: checkout.Token, RedirectURL: checkout.RedirectURL}, nil
}

// HandleNotification authenticates a Midtrans notification and applies its outcome. Notifications
// for payments that were already decided are acknowledged without change.
func (s *GatewayService) HandleNotification(ctx context.Context, n gateway.Notification) error {
	if !s.Enabled() {
		return appErrors.Clone(appErrors.ErrServiceUnavailable, "online payment is not enabled")
	}
	if !s.gateway.VerifySignature(n) {
		return appErrors.Clone(appErrors.ErrUnauthorized, "invalid notification signature")
	}
	outcome := gateway.Classify(n)
	if outcome == gateway.OutcomeIgnore {
		s.logger.Debug("gateway notification ignored", zap.String("order_id", n.OrderID), zap.String("status", n.TransactionStatus))
		return nil
	}

	payment, err := s.payments.FindByReference(ctx, n.OrderID)
	if err != nil {
		return lookupErr(err, "payment not found")
	}
	if payment.Status != models.PaymentRecordPending {
		logSettled(s.logger, n, payment, outcome)
		return nil
	}
	if outcome == gateway.OutcomeApprove && !grossMatches(n.GrossAmount, payment.Amount) {
		s.logger.Warn("gateway amount mismatch", zap.String("order_id", n.OrderID), zap.String("gross_amount", n.GrossAmount), zap.Int64("expected", payment.Amount))
		return appErrors.Clone(appErrors.ErrValidation, "gross amount does not match payment")
	}

	note := fmt.Sprintf("midtrans %s %s", n.TransactionStatus, n.TransactionID)
	_, err = s.verifier.ApplyDecision(ctx, nil, payment.ID, outcome == gateway.OutcomeApprove, note, VerificationSourceMidtrans)
	if errors.Is(err, appErrors.ErrInvalidState) {
		logSettled(s.logger, n, payment, outcome)
		return nil
	}
	return err
}

// logSettled acknowledges a notification whose payment or registration was already decided. Money
// captured for a closed row needs a manual refund, so that case is a warning.
func logSettled(logger *zap.Logger, n gateway.Notification, payment *models.Payment, outcome gateway.Outcome) {
	fields := []zap.Field{
		zap.String("order_id", n.OrderID),
		zap.String("registration_id", payment.RegistrationID),
		zap.String("transaction_status", n.TransactionStatus),
	}
	if outcome == gateway.OutcomeApprove {
		logger.Warn("gateway settled a payment that is already closed", fields...)
		return
	}
	logger.Info("gateway notification for settled payment", fields...)
}

func grossMatches(gross string, amount int64) bool {
	value, err := strconv.ParseFloat(gross, 64)
	if err != nil {
		return false
	}
	return int64(math.Round(value)) == amount
}
