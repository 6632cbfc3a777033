package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/training-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/training-enrollment-api/pkg/errors"
)

type classReader interface {
	FindClass(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TrainingClass, error)
}

type activeCounter interface {
	CountActive(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error)
}

// QuotaService computes remaining seats and gatekeeps admissions.
type QuotaService struct {
	classes  classReader
	counter  activeCounter
	cache    *CacheService
	cacheTTL time.Duration
	clock    Clock
	logger   *zap.Logger
}

// NewQuotaService constructs QuotaService. cache may be nil.
func NewQuotaService(classes classReader, counter activeCounter, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *QuotaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuotaService{classes: classes, counter: counter, cache: cache, cacheTTL: cacheTTL, clock: systemClock, logger: logger}
}

func seatSummaryKey(classID string) string {
	return "seats:" + classID
}

// RemainingSeats returns quota minus active registrations, read live.
func (s *QuotaService) RemainingSeats(ctx context.Context, classID string) (int, error) {
	summary, err := s.compute(ctx, classID)
	if err != nil {
		return 0, err
	}
	return summary.Remaining, nil
}

// CanRegister reports whether a new registration would currently be admitted.
func (s *QuotaService) CanRegister(ctx context.Context, classID string) (bool, error) {
	summary, err := s.compute(ctx, classID)
	if err != nil {
		return false, err
	}
	return summary.CanRegister, nil
}

// Summary returns the seat summary and whether it was served from cache. The cached value is
// advisory; admission always recounts inside the registration transaction.
func (s *QuotaService) Summary(ctx context.Context, classID string) (*models.SeatSummary, bool, error) {
	var cached models.SeatSummary
	if s.cache.Get(ctx, seatSummaryKey(classID), &cached) {
		return &cached, true, nil
	}
	summary, err := s.compute(ctx, classID)
	if err != nil {
		return nil, false, err
	}
	s.cache.Set(ctx, seatSummaryKey(classID), summary, s.cacheTTL)
	return summary, false, nil
}

// Invalidate drops the cached summary after a seat-changing mutation.
func (s *QuotaService) Invalidate(ctx context.Context, classID string) {
	s.cache.Invalidate(ctx, seatSummaryKey(classID))
}

func (s *QuotaService) compute(ctx context.Context, classID string) (*models.SeatSummary, error) {
	class, err := s.classes.FindClass(ctx, nil, classID)
	if err != nil {
		return nil, lookupErr(err, "class not found")
	}
	active, err := s.counter.CountActive(ctx, nil, classID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to count registrations")
	}
	now := s.clock()
	summary := &models.SeatSummary{
		ClassID:          class.ID,
		Quota:            class.Quota,
		Active:           active,
		Remaining:        class.RemainingSeats(active),
		RegistrationOpen: class.RegistrationOpen(now),
		CanRegister:      class.CanRegister(active, now),
		ComputedAt:       now,
	}
	if summary.Remaining < 0 {
		s.logger.Warn("class overbooked", zap.String("class_id", classID), zap.Int("quota", class.Quota), zap.Int("active", active))
	}
	return summary, nil
}

// admit applies the admission rule to a class row already locked by the caller.
func (s *QuotaService) admit(class *models.TrainingClass, active int) error {
	now := s.clock()
	if !class.RegistrationOpen(now) {
		return appErrors.Clone(appErrors.ErrCapacity, "registration window is closed")
	}
	if remaining := class.RemainingSeats(active); remaining <= 0 {
		if remaining < 0 {
			s.logger.Warn("class overbooked", zap.String("class_id", class.ID), zap.Int("quota", class.Quota), zap.Int("active", active))
		}
		return appErrors.Clone(appErrors.ErrCapacity, "class has no remaining seats")
	}
	return nil
}
