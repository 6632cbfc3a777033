package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/training-enrollment-api/internal/dto"
	"github.com/noah-isme/training-enrollment-api/internal/models"
	"github.com/noah-isme/training-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/training-enrollment-api/pkg/errors"
	"github.com/noah-isme/training-enrollment-api/pkg/export"
)

// NumberGenerator yields candidate certificate numbers.
type NumberGenerator func() (string, error)

// NewNumberGenerator returns a generator of random decimal numbers with the given digit count and
// a non-zero leading digit.
func NewNumberGenerator(digits int) NumberGenerator {
	if digits < 4 {
		digits = 10
	}
	return func() (string, error) {
		var b strings.Builder
		b.Grow(digits)
		for i := 0; i < digits; i++ {
			limit, offset := int64(10), int64(0)
			if i == 0 {
				limit, offset = 9, 1
			}
			n, err := rand.Int(rand.Reader, big.NewInt(limit))
			if err != nil {
				return "", fmt.Errorf("read random digit: %w", err)
			}
			b.WriteByte(byte('0' + n.Int64() + offset))
		}
		return b.String(), nil
	}
}

type certificateStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, cert *models.Certificate) error
	FindDetailByID(ctx context.Context, id string) (*models.CertificateDetail, error)
	FindDetailByNumber(ctx context.Context, number string) (*models.CertificateDetail, error)
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)
}

type certificateRenderer interface {
	Render(doc export.CertificateDocument) ([]byte, error)
}

type certificateNotifier interface {
	SendCertificateEmail(ctx context.Context, cert *models.CertificateDetail, pdf []byte, verifyURL string)
}

// CertificateOptions tunes numbering and rendering.
type CertificateOptions struct {
	MaxAttempts   int
	VerifyBaseURL string
	IssuerName    string
}

// CertificateDeps groups collaborators of CertificateService.
type CertificateDeps struct {
	Certificates  certificateStore
	Catalog       catalogStore
	Registrations registrationStore
	Renderer      certificateRenderer
	Notifier      certificateNotifier
	Audit         auditWriter
	Metrics       *MetricsService
	Generate      NumberGenerator
}

// CertificateService issues, verifies and expires certificates.
type CertificateService struct {
	deps      CertificateDeps
	opts      CertificateOptions
	validator *validator.Validate
	clock     Clock
	logger    *zap.Logger
}

// NewCertificateService constructs CertificateService.
func NewCertificateService(deps CertificateDeps, opts CertificateOptions, validate *validator.Validate, logger *zap.Logger) *CertificateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Generate == nil {
		deps.Generate = NewNumberGenerator(10)
	}
	if deps.Renderer == nil {
		deps.Renderer = export.NewCertificateRenderer()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &CertificateService{deps: deps, opts: opts, validator: validate, clock: systemClock, logger: logger}
}

// Issue creates a VALID certificate for a participant or instructor. Numbers are generated
// optimistically and regenerated on a uniqueness collision up to MaxAttempts times.
func (s *CertificateService) Issue(ctx context.Context, actor *models.JWTClaims, req dto.IssueCertificateRequest) (*models.CertificateDetail, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid certificate payload")
	}
	if req.ExpiryDate != nil && !req.ExpiryDate.After(req.IssueDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expiryDate must be after issueDate")
	}

	if _, err := s.deps.Catalog.FindCourse(ctx, req.CourseID); err != nil {
		return nil, lookupErr(err, "course not found")
	}
	cert := &models.Certificate{
		PersonType: models.PersonType(req.PersonType),
		CourseID:   req.CourseID,
		IssueDate:  req.IssueDate.UTC(),
		Status:     models.CertificateStatusValid,
	}
	if req.ExpiryDate != nil {
		expiry := req.ExpiryDate.UTC()
		cert.ExpiryDate = &expiry
	}
	if req.EvidenceLink != "" {
		link := req.EvidenceLink
		cert.EvidenceLink = &link
	}
	holderName, err := s.resolveHolder(ctx, cert, req.PersonID)
	if err != nil {
		return nil, err
	}
	cert.Name = strings.TrimSpace(req.Name)
	if cert.Name == "" {
		cert.Name = holderName
	}
	if req.RegistrationID != "" {
		if err := s.linkRegistration(ctx, cert, req.RegistrationID, req.PersonID); err != nil {
			return nil, err
		}
	}

	if err := s.insertWithRetry(ctx, cert); err != nil {
		return nil, err
	}

	detail, err := s.deps.Certificates.FindDetailByID(ctx, cert.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load certificate")
	}
	recordAudit(ctx, s.deps.Audit, s.logger, actor, models.AuditActionCertificateIssue, "certificate", cert.ID, cert)
	s.logger.Info("certificate issued", zap.String("certificate_id", cert.ID), zap.String("number", cert.CertificateNumber))
	s.mail(ctx, detail)
	return detail, nil
}

func (s *CertificateService) resolveHolder(ctx context.Context, cert *models.Certificate, personID string) (string, error) {
	id := personID
	switch cert.PersonType {
	case models.PersonTypeParticipant:
		participant, err := s.deps.Catalog.FindParticipant(ctx, nil, personID)
		if err != nil {
			return "", lookupErr(err, "participant not found")
		}
		cert.ParticipantID = &id
		return participant.FullName, nil
	case models.PersonTypeInstructor:
		instructor, err := s.deps.Catalog.FindInstructor(ctx, personID)
		if err != nil {
			return "", lookupErr(err, "instructor not found")
		}
		cert.InstructorID = &id
		return instructor.FullName, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "unknown person type")
	}
}

// linkRegistration ties the certificate to a completed registration of the same participant and course.
func (s *CertificateService) linkRegistration(ctx context.Context, cert *models.Certificate, registrationID, personID string) error {
	if cert.PersonType != models.PersonTypeParticipant {
		return appErrors.Clone(appErrors.ErrValidation, "only participant certificates can reference a registration")
	}
	reg, err := s.deps.Registrations.FindByID(ctx, nil, registrationID)
	if err != nil {
		return lookupErr(err, "registration not found")
	}
	if reg.ParticipantID != personID {
		return appErrors.Clone(appErrors.ErrInvalidState, "registration belongs to another participant")
	}
	if reg.RegStatus != models.RegStatusRegistered {
		return appErrors.Clone(appErrors.ErrInvalidState, "registration is not completed")
	}
	class, err := s.deps.Catalog.FindClass(ctx, nil, reg.ClassID)
	if err != nil {
		return lookupErr(err, "class not found")
	}
	if class.CourseID != cert.CourseID {
		return appErrors.Clone(appErrors.ErrInvalidState, "registration is for a different course")
	}
	id := registrationID
	cert.RegistrationID = &id
	return nil
}

func (s *CertificateService) insertWithRetry(ctx context.Context, cert *models.Certificate) error {
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		number, err := s.deps.Generate()
		if err != nil {
			return appErrors.Internal(err, "failed to generate certificate number")
		}
		cert.ID = ""
		cert.CertificateNumber = number
		err = s.deps.Certificates.Create(ctx, nil, cert)
		if err == nil {
			s.deps.Metrics.RecordCertificateAttempt(false)
			return nil
		}
		if !repository.IsUniqueViolation(err, repository.ConstraintCertificateNumber) {
			return appErrors.Internal(err, "failed to create certificate")
		}
		s.deps.Metrics.RecordCertificateAttempt(true)
		s.logger.Warn("certificate number collision", zap.String("number", number), zap.Int("attempt", attempt))
	}
	return appErrors.Clone(appErrors.ErrExhausted, "could not allocate a unique certificate number")
}

// Get returns a certificate visible to the actor.
func (s *CertificateService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.CertificateDetail, error) {
	detail, err := s.deps.Certificates.FindDetailByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "certificate not found")
	}
	if !canReadCertificate(actor, &detail.Certificate) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
	}
	detail.Status = s.effectiveStatus(&detail.Certificate)
	return detail, nil
}

func canReadCertificate(actor *models.JWTClaims, cert *models.Certificate) bool {
	if actor == nil {
		return false
	}
	if actor.IsAdmin() {
		return true
	}
	if cert.ParticipantID != nil && actor.OwnsParticipant(*cert.ParticipantID) {
		return true
	}
	return cert.InstructorID != nil && actor.InstructorID != "" && actor.InstructorID == *cert.InstructorID
}

// effectiveStatus reports EXPIRED for certificates past expiry the sweep has not reached yet.
func (s *CertificateService) effectiveStatus(cert *models.Certificate) models.CertificateStatus {
	if cert.Status == models.CertificateStatusValid && cert.ExpiryDate != nil && cert.ExpiryDate.Before(s.clock()) {
		return models.CertificateStatusExpired
	}
	return cert.Status
}

// Verify is the public lookup by certificate number.
func (s *CertificateService) Verify(ctx context.Context, number string) (*models.CertificateVerification, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "certificate number is required")
	}
	detail, err := s.deps.Certificates.FindDetailByNumber(ctx, number)
	if err != nil {
		return nil, lookupErr(err, "certificate not found")
	}
	return &models.CertificateVerification{
		CertificateNumber: detail.CertificateNumber,
		HolderName:        detail.Name,
		CourseTitle:       detail.CourseTitle,
		Status:            s.effectiveStatus(&detail.Certificate),
		IssueDate:         detail.IssueDate,
		ExpiryDate:        detail.ExpiryDate,
	}, nil
}

// RenderPDF draws the certificate document for download.
func (s *CertificateService) RenderPDF(ctx context.Context, actor *models.JWTClaims, id string) ([]byte, string, error) {
	detail, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, "", err
	}
	pdf, err := s.render(detail)
	if err != nil {
		return nil, "", appErrors.Internal(err, "failed to render certificate")
	}
	return pdf, "certificate-" + detail.CertificateNumber + ".pdf", nil
}

func (s *CertificateService) verifyURL(number string) string {
	return strings.TrimRight(s.opts.VerifyBaseURL, "/") + "/" + number
}

func (s *CertificateService) render(detail *models.CertificateDetail) ([]byte, error) {
	return s.deps.Renderer.Render(export.CertificateDocument{
		Number:      detail.CertificateNumber,
		HolderName:  detail.Name,
		Role:        string(detail.PersonType),
		CourseTitle: detail.CourseTitle,
		Issuer:      s.opts.IssuerName,
		IssuedAt:    detail.IssueDate,
		ExpiresAt:   detail.ExpiryDate,
		VerifyURL:   s.verifyURL(detail.CertificateNumber),
	})
}

func (s *CertificateService) mail(ctx context.Context, detail *models.CertificateDetail) {
	if s.deps.Notifier == nil || detail.HolderEmail == "" {
		return
	}
	pdf, err := s.render(detail)
	if err != nil {
		s.logger.Warn("render certificate for email", zap.String("certificate_id", detail.ID), zap.Error(err))
	}
	s.deps.Notifier.SendCertificateEmail(ctx, detail, pdf, s.verifyURL(detail.CertificateNumber))
}

// SweepExpirations flips VALID certificates whose expiry is before now to EXPIRED.
func (s *CertificateService) SweepExpirations(ctx context.Context, now time.Time) (int64, error) {
	if now.IsZero() {
		now = s.clock()
	}
	n, err := s.deps.Certificates.ExpireBefore(ctx, now.UTC())
	if err != nil {
		return 0, appErrors.Internal(err, "failed to expire certificates")
	}
	s.deps.Metrics.RecordCertificatesExpired(n)
	if n > 0 {
		s.logger.Info("certificates expired", zap.Int64("count", n), zap.Time("now", now))
	}
	return n, nil
}

// SweepNow runs the expiry sweep on behalf of an admin.
func (s *CertificateService) SweepNow(ctx context.Context, actor *models.JWTClaims) (*dto.SweepResponse, error) {
	now := s.clock()
	n, err := s.SweepExpirations(ctx, now)
	if err != nil {
		return nil, err
	}
	recordAudit(ctx, s.deps.Audit, s.logger, actor, models.AuditActionCertificatesSwept, "certificate", "", map[string]int64{"expired": n})
	return &dto.SweepResponse{Expired: n, RanAt: now}, nil
}
