package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunSweeper calls SweepExpired every interval until ctx is done. A
// non-positive interval disables the sweeper.
func (s *LicenseService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.log.Info("License sweeper disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("License sweeper started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("License sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("License sweep failed", zap.Error(err))
			}
		}
	}
}
