package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/training-enrollment-api/internal/dto"
	"github.com/noah-isme/training-enrollment-api/internal/models"
	"github.com/noah-isme/training-enrollment-api/internal/repository"
	"github.com/noah-isme/training-enrollment-api/pkg/database"
	appErrors "github.com/noah-isme/training-enrollment-api/pkg/errors"
	"github.com/noah-isme/training-enrollment-api/pkg/storage"
)

type paymentStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, payment *models.Payment) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Payment, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Payment, error)
	FindByReference(ctx context.Context, reference string) (*models.Payment, error)
	Latest(ctx context.Context, exec sqlx.ExtContext, registrationID string) (*models.Payment, error)
	ListByRegistration(ctx context.Context, registrationID string) ([]models.Payment, error)
	UpdateProof(ctx context.Context, exec sqlx.ExtContext, payment *models.Payment) error
	UpdateVerification(ctx context.Context, exec sqlx.ExtContext, payment *models.Payment) error
	SumPaid(ctx context.Context, exec sqlx.ExtContext, registrationID string) (int64, error)
	SupersedePending(ctx context.Context, exec sqlx.ExtContext, registrationID, keepID, note string, at time.Time) (int64, error)
}

type objectStore interface {
	Put(key string, r io.Reader, limit int64) (int64, error)
	Open(key string) (io.ReadCloser, error)
	Delete(key string) error
}

type proofSigner interface {
	Generate(resourceID, key string) (string, time.Time, error)
	Parse(token string) (string, string, error)
}

type paymentNotifier interface {
	SendPaymentNotification(ctx context.Context, reg *models.RegistrationDetail, payment *models.Payment)
	SendVerificationResult(ctx context.Context, reg *models.RegistrationDetail, payment *models.Payment)
}

// PaymentDeps groups collaborators of PaymentService.
type PaymentDeps struct {
	Tx            database.Transactor
	Payments      paymentStore
	Registrations registrationStore
	Classes       classReader
	Files         objectStore
	Signer        proofSigner
	Processor     *ProofProcessor
	Notifier      paymentNotifier
	Audit         auditWriter

	// URLPrefix is prepended to proof download links, e.g. "/api/v1".
	URLPrefix string
}

// PaymentService records payment evidence against registrations.
type PaymentService struct {
	deps      PaymentDeps
	validator *validator.Validate
	clock     Clock
	logger    *zap.Logger
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(deps PaymentDeps, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Processor == nil {
		deps.Processor = NewProofProcessor(nil, 0, 0)
	}
	return &PaymentService{deps: deps, validator: validate, clock: systemClock, logger: logger}
}

// DeriveStatus maps a paid total against the class price.
func DeriveStatus(paid, price int64) models.PaymentStatus {
	switch {
	case paid >= price:
		return models.PaymentStatusPaid
	case paid > 0:
		return models.PaymentStatusPartial
	default:
		return models.PaymentStatusUnpaid
	}
}

// generateReference returns PAY-<yyyymmdd>-<8 hex>.
func generateReference(now time.Time) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("PAY-%s-%s", now.Format("20060102"), strings.ToUpper(raw[:8]))
}

// acceptsPayment rejects new evidence once the registration has a final payment outcome.
func acceptsPayment(reg *models.Registration) error {
	if reg.RegStatus == models.RegStatusRejected || reg.PaymentStatus == models.PaymentStatusRejected {
		return appErrors.Clone(appErrors.ErrInvalidState, "registration payment was rejected")
	}
	if reg.PaymentStatus == models.PaymentStatusPaid {
		return appErrors.Clone(appErrors.ErrInvalidState, "registration is already paid")
	}
	return nil
}

func referenceErr(err error, msg string) error {
	if repository.IsUniqueViolation(err, repository.ConstraintPaymentReference) {
		return appErrors.Clone(appErrors.ErrConflict, "reference number already used")
	}
	return appErrors.Internal(err, msg)
}

// UploadProof stores a proof file and records it as the pending payment of the registration.
// The latest payment row is reused while it is still pending; otherwise a new row is appended.
func (s *PaymentService) UploadProof(ctx context.Context, actor *models.JWTClaims, registrationID string, req dto.ProofUploadRequest, file dto.ProofFile) (*models.Payment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid payment proof payload")
	}
	reg, err := s.deps.Registrations.FindByID(ctx, nil, registrationID)
	if err != nil {
		return nil, lookupErr(err, "registration not found")
	}
	if !canWriteRegistration(actor, reg.ParticipantID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
	}
	if err := acceptsPayment(reg); err != nil {
		return nil, err
	}

	proof, err := s.deps.Processor.Process(file.Reader)
	if err != nil {
		return nil, err
	}
	key := path.Join("payments", registrationID, uuid.NewString()+proof.Ext)
	if _, err := s.deps.Files.Put(key, bytes.NewReader(proof.Data), int64(len(proof.Data))); err != nil {
		return nil, appErrors.Internal(err, "failed to store proof file")
	}

	var (
		payment     *models.Payment
		replacedKey string
	)
	mime := proof.MIME
	err = s.deps.Tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		locked, err := s.deps.Registrations.LockByID(ctx, exec, registrationID)
		if err != nil {
			return lookupErr(err, "registration not found")
		}
		if err := acceptsPayment(locked); err != nil {
			return err
		}
		latest, err := s.deps.Payments.Latest(ctx, exec, registrationID)
		if err != nil && !isNoRows(err) {
			return appErrors.Internal(err, "failed to load latest payment")
		}

		now := s.clock()
		reusable := latest != nil && latest.Method != models.PaymentMethodGateway &&
			(latest.Status == models.PaymentRecordPending || latest.Status == models.PaymentRecordUnpaid)
		if reusable {
			if latest.HasProof() {
				replacedKey = *latest.ProofURL
			}
			payment = latest
			if req.ReferenceNumber != "" {
				payment.ReferenceNumber = req.ReferenceNumber
			}
			payment.Amount = req.Amount
			payment.Method = models.PaymentMethod(req.Method)
			payment.ProofURL = &key
			payment.ProofMIME = &mime
			payment.Status = models.PaymentRecordPending
			payment.PaymentDate = now
			if err := s.deps.Payments.UpdateProof(ctx, exec, payment); err != nil {
				return referenceErr(err, "failed to update payment")
			}
		} else {
			payment = &models.Payment{
				RegistrationID:  registrationID,
				Amount:          req.Amount,
				Method:          models.PaymentMethod(req.Method),
				ReferenceNumber: req.ReferenceNumber,
				ProofURL:        &key,
				ProofMIME:       &mime,
				Status:          models.PaymentRecordPending,
				PaymentDate:     now,
			}
			if payment.ReferenceNumber == "" {
				payment.ReferenceNumber = generateReference(now)
			}
			if err := s.deps.Payments.Create(ctx, exec, payment); err != nil {
				return referenceErr(err, "failed to create payment")
			}
		}

		locked.PaymentStatus = models.PaymentStatusPending
		if err := s.deps.Registrations.UpdateStatus(ctx, exec, locked); err != nil {
			return appErrors.Internal(err, "failed to update registration")
		}
		return nil
	})
	if err != nil {
		s.removeFile(key)
		return nil, err
	}
	if replacedKey != "" && replacedKey != key {
		s.removeFile(replacedKey)
	}

	s.notifyAdmins(ctx, registrationID, payment)
	recordAudit(ctx, s.deps.Audit, s.logger, actor, models.AuditActionProofUpload, "payment", payment.ID, payment)
	s.logger.Info("payment proof uploaded",
		zap.String("registration_id", registrationID),
		zap.String("payment_id", payment.ID),
		zap.String("reference", payment.ReferenceNumber),
	)
	return payment, nil
}

// RecordManualPayment stores an admin-entered payment as PAID and re-derives the registration's
// payment status from the paid total.
func (s *PaymentService) RecordManualPayment(ctx context.Context, actor *models.JWTClaims, registrationID string, req dto.ManualPaymentRequest) (*models.VerificationResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid manual payment payload")
	}

	var result models.VerificationResult
	err := s.deps.Tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		reg, err := s.deps.Registrations.LockByID(ctx, exec, registrationID)
		if err != nil {
			return lookupErr(err, "registration not found")
		}
		if err := acceptsPayment(reg); err != nil {
			return err
		}

		now := s.clock()
		payment := &models.Payment{
			RegistrationID:  registrationID,
			Amount:          req.Amount,
			Method:          models.PaymentMethod(req.Method),
			ReferenceNumber: req.ReferenceNumber,
			Status:          models.PaymentRecordPaid,
			PaymentDate:     now,
			VerifiedBy:      actorID(actor),
			VerifiedAt:      &now,
		}
		if req.PaymentDate != nil {
			payment.PaymentDate = req.PaymentDate.UTC()
		}
		if payment.ReferenceNumber == "" {
			payment.ReferenceNumber = generateReference(now)
		}
		if req.Note != "" {
			note := req.Note
			payment.Note = &note
		}
		if err := s.deps.Payments.Create(ctx, exec, payment); err != nil {
			return referenceErr(err, "failed to create payment")
		}

		paid, err := s.deps.Payments.SumPaid(ctx, exec, registrationID)
		if err != nil {
			return appErrors.Internal(err, "failed to total payments")
		}
		class, err := s.deps.Classes.FindClass(ctx, exec, reg.ClassID)
		if err != nil {
			return lookupErr(err, "class not found")
		}
		reg.PaymentAmount = paid
		reg.PaymentStatus = DeriveStatus(paid, class.Price)
		// An admin-entered payment is already verified, so a fully paid registration is confirmed here.
		if reg.PaymentStatus == models.PaymentStatusPaid {
			reg.RegStatus = models.RegStatusRegistered
		}
		if err := s.deps.Registrations.UpdateStatus(ctx, exec, reg); err != nil {
			return appErrors.Internal(err, "failed to update registration")
		}
		if reg.PaymentStatus == models.PaymentStatusPaid {
			if err := supersedePending(ctx, s.deps.Payments, exec, reg.ID, payment.ID, now); err != nil {
				return err
			}
		}
		result = models.VerificationResult{Payment: *payment, Registration: *reg}
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, s.deps.Audit, s.logger, actor, models.AuditActionManualPayment, "payment", result.Payment.ID, result)
	s.logger.Info("manual payment recorded",
		zap.String("registration_id", registrationID),
		zap.Int64("paid_total", result.Registration.PaymentAmount),
		zap.String("payment_status", string(result.Registration.PaymentStatus)),
	)
	return &result, nil
}

// ListPayments returns the ledger of a registration, newest first.
func (s *PaymentService) ListPayments(ctx context.Context, actor *models.JWTClaims, registrationID string) ([]models.Payment, error) {
	reg, err := s.deps.Registrations.FindByID(ctx, nil, registrationID)
	if err != nil {
		return nil, lookupErr(err, "registration not found")
	}
	if !canReadRegistration(actor, reg.ParticipantID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
	}
	payments, err := s.deps.Payments.ListByRegistration(ctx, registrationID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list payments")
	}
	return payments, nil
}

// ProofURL issues a short-lived download link for a payment's proof file.
func (s *PaymentService) ProofURL(ctx context.Context, actor *models.JWTClaims, paymentID string) (*dto.ProofURLResponse, error) {
	payment, err := s.deps.Payments.FindByID(ctx, nil, paymentID)
	if err != nil {
		return nil, lookupErr(err, "payment not found")
	}
	reg, err := s.deps.Registrations.FindByID(ctx, nil, payment.RegistrationID)
	if err != nil {
		return nil, lookupErr(err, "registration not found")
	}
	if !canReadRegistration(actor, reg.ParticipantID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
	}
	if !payment.HasProof() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "payment has no proof file")
	}
	token, expiresAt, err := s.deps.Signer.Generate(payment.ID, *payment.ProofURL)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign proof url")
	}
	link := fmt.Sprintf("%s/payments/%s/proof?token=%s", strings.TrimRight(s.deps.URLPrefix, "/"), payment.ID, url.QueryEscape(token))
	return &dto.ProofURLResponse{URL: link, ExpiresAt: expiresAt}, nil
}

// OpenProof resolves a signed download token. The token alone authorizes the download.
func (s *PaymentService) OpenProof(ctx context.Context, paymentID, token string) (io.ReadCloser, string, string, error) {
	resourceID, key, err := s.deps.Signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", "", appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, "", "", appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	if resourceID != paymentID {
		return nil, "", "", appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	payment, err := s.deps.Payments.FindByID(ctx, nil, paymentID)
	if err != nil {
		return nil, "", "", lookupErr(err, "payment not found")
	}
	if !payment.HasProof() || *payment.ProofURL != key {
		return nil, "", "", appErrors.Clone(appErrors.ErrNotFound, "proof file was replaced")
	}
	rc, err := s.deps.Files.Open(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", "", appErrors.Clone(appErrors.ErrNotFound, "proof file not found")
		}
		return nil, "", "", appErrors.Internal(err, "failed to open proof file")
	}
	contentType := "application/octet-stream"
	if payment.ProofMIME != nil && *payment.ProofMIME != "" {
		contentType = *payment.ProofMIME
	}
	return rc, contentType, path.Base(key), nil
}

func (s *PaymentService) notifyAdmins(ctx context.Context, registrationID string, payment *models.Payment) {
	if s.deps.Notifier == nil {
		return
	}
	detail, err := s.deps.Registrations.FindDetailByID(ctx, registrationID)
	if err != nil {
		s.logger.Warn("load registration for notification", zap.String("registration_id", registrationID), zap.Error(err))
		return
	}
	s.deps.Notifier.SendPaymentNotification(ctx, detail, payment)
}

func (s *PaymentService) removeFile(key string) {
	if err := s.deps.Files.Delete(key); err != nil {
		s.logger.Warn("delete proof file failed", zap.String("key", key), zap.Error(err))
	}
}
