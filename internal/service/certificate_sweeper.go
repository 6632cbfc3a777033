package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type expirationSweeper interface {
	SweepExpirations(ctx context.Context, now time.Time) (int64, error)
}

// CertificateSweeper periodically expires certificates past their expiry date.
type CertificateSweeper struct {
	sweeper  expirationSweeper
	interval time.Duration
	clock    Clock
	logger   *zap.Logger
}

// NewCertificateSweeper constructs a sweeper. A non-positive interval disables Start.
func NewCertificateSweeper(sweeper expirationSweeper, interval time.Duration, logger *zap.Logger) *CertificateSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateSweeper{sweeper: sweeper, interval: interval, clock: systemClock, logger: logger}
}

// Start runs one sweep immediately, then one per interval until ctx is done. It blocks.
func (s *CertificateSweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("certificate sweeper disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and reports the number of certificates expired.
func (s *CertificateSweeper) RunOnce(ctx context.Context) int64 {
	n, err := s.sweeper.SweepExpirations(ctx, s.clock())
	if err != nil {
		s.logger.Warn("certificate sweep failed", zap.Error(err))
		return 0
	}
	return n
}
