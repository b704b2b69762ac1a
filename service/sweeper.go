package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/wubuku/UniAuth/internal/metrics"
	"github.com/wubuku/UniAuth/ports"
)

// Sweeper periodically removes nonces that expired more than retention ago.
// Expired nonces are already rejected on read; sweeping only reclaims space.
type Sweeper struct {
	store     ports.Sweeper
	interval  time.Duration
	retention time.Duration
	clock     func() time.Time
	logger    zerolog.Logger
}

// NewSweeper creates a sweeper over store
func NewSweeper(store ports.Sweeper, interval, retention time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:     store,
		interval:  interval,
		retention: retention,
		clock:     time.Now,
		logger:    logger.With().Str("component", "sweeper").Logger(),
	}
}

// Run sweeps on every tick until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("nonce sweep failed")
			}
		}
	}
}

// SweepOnce removes nonces that expired before now minus retention
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	removed, err := s.store.Sweep(ctx, s.clock().Add(-s.retention))
	if removed > 0 {
		metrics.NoncesSweptTotal.Add(float64(removed))
		s.logger.Debug().Int("removed", removed).Msg("swept expired nonces")
	}
	return removed, err
}
