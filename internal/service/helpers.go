package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/training-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/training-enrollment-api/pkg/errors"
)

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Clock returns the current time; swapped in tests.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// lookupErr maps a repository read failure: missing rows become NotFound with msg.
func lookupErr(err error, msg string) error {
	if isNoRows(err) {
		return appErrors.Clone(appErrors.ErrNotFound, msg)
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Internal(err, "failed to load data")
}

func validationErr(err error, msg string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, msg)
}

func requireActor(actor *models.JWTClaims) error {
	if actor == nil || actor.UserID == "" {
		return appErrors.ErrUnauthorized
	}
	return nil
}

// canReadRegistration lets admins and instructors read any registration and participants read their own.
func canReadRegistration(actor *models.JWTClaims, participantID string) bool {
	if actor == nil {
		return false
	}
	if actor.IsAdmin() || actor.Role == models.RoleInstructor {
		return true
	}
	return actor.OwnsParticipant(participantID)
}

func canWriteRegistration(actor *models.JWTClaims, participantID string) bool {
	return actor.IsAdmin() || actor.OwnsParticipant(participantID)
}

func actorID(actor *models.JWTClaims) *string {
	if actor == nil || actor.UserID == "" {
		return nil
	}
	id := actor.UserID
	return &id
}

// recordAudit stores an audit entry and only logs failures.
func recordAudit(ctx context.Context, repo auditWriter, logger *zap.Logger, actor *models.JWTClaims, action, resource, resourceID string, payload interface{}) {
	if repo == nil {
		return
	}
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			logger.Warn("marshal audit payload", zap.String("action", action), zap.Error(err))
		}
	}
	id := resourceID
	entry := &models.AuditLog{
		UserID:     actorID(actor),
		Action:     action,
		Resource:   resource,
		ResourceID: &id,
		NewValues:  body,
	}
	if err := repo.CreateAuditLog(ctx, entry); err != nil {
		logger.Warn("audit log failed", zap.String("action", action), zap.String("resource_id", resourceID), zap.Error(err))
	}
}

func pagination(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
