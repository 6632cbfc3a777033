package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/training-enrollment-api/internal/dto"
	"github.com/noah-isme/training-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/training-enrollment-api/pkg/errors"
)

type valueReportStore interface {
	Create(ctx context.Context, report *models.ValueReport) error
	FindByID(ctx context.Context, id string) (*models.ValueReport, error)
	ListByRegistration(ctx context.Context, registrationID string) ([]models.ValueReport, error)
	Update(ctx context.Context, report *models.ValueReport) error
	Delete(ctx context.Context, id string) error
}

type registrationFinder interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Registration, error)
}

// ValueReportService manages scoring entries of a registration.
type ValueReportService struct {
	reports       valueReportStore
	registrations registrationFinder
	audit         auditWriter
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewValueReportService constructs ValueReportService.
func NewValueReportService(reports valueReportStore, registrations registrationFinder, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *ValueReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValueReportService{reports: reports, registrations: registrations, audit: audit, validator: validate, logger: logger}
}

// List returns the reports of a registration.
func (s *ValueReportService) List(ctx context.Context, actor *models.JWTClaims, registrationID string) ([]models.ValueReport, error) {
	reg, err := s.registrations.FindByID(ctx, nil, registrationID)
	if err != nil {
		return nil, lookupErr(err, "registration not found")
	}
	if !canReadRegistration(actor, reg.ParticipantID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
	}
	reports, err := s.reports.ListByRegistration(ctx, registrationID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list value reports")
	}
	return reports, nil
}

// Create appends a report to an existing registration.
func (s *ValueReportService) Create(ctx context.Context, actor *models.JWTClaims, registrationID string, req dto.ValueReportRequest) (*models.ValueReport, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid value report payload")
	}
	if _, err := s.registrations.FindByID(ctx, nil, registrationID); err != nil {
		return nil, lookupErr(err, "registration not found")
	}
	report := &models.ValueReport{
		RegistrationID: registrationID,
		Aspect:         strings.TrimSpace(req.Aspect),
		Score:          *req.Score,
		Note:           optionalString(req.Note),
		CreatedBy:      actorID(actor),
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, appErrors.Internal(err, "failed to create value report")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionValueReport, "value_report", report.ID, report)
	return report, nil
}

// Update rewrites the scoring fields of a report.
func (s *ValueReportService) Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.ValueReportRequest) (*models.ValueReport, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid value report payload")
	}
	report, err := s.reports.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "value report not found")
	}
	report.Aspect = strings.TrimSpace(req.Aspect)
	report.Score = *req.Score
	report.Note = optionalString(req.Note)
	if err := s.reports.Update(ctx, report); err != nil {
		return nil, lookupErr(err, "value report not found")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionValueReport, "value_report", report.ID, report)
	return report, nil
}

// Delete removes a report.
func (s *ValueReportService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := s.reports.Delete(ctx, id); err != nil {
		return lookupErr(err, "value report not found")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionValueReport, "value_report", id, nil)
	return nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
