package inventory

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Locker grants a short-lived lease so only one process sweeps per tick.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

const sweepLockKey = "sweep:reservations"

// Sweeper periodically removes expired reservations.
type Sweeper struct {
	Manager  *Manager
	Locker   Locker // optional
	Interval time.Duration
	Log      *zap.Logger
}

// Run sweeps once per interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		s.tick(ctx, interval)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Sweeper) tick(ctx context.Context, interval time.Duration) {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	if s.Locker != nil {
		ok, err := s.Locker.TryLock(ctx, sweepLockKey, interval)
		if err != nil {
			log.Warn("sweep lock failed, sweeping anyway", zap.Error(err))
		} else if !ok {
			return
		}
	}
	// a sweep gets at most one interval
	sctx, cancel := context.WithTimeout(ctx, interval)
	defer cancel()
	if _, err := s.Manager.SweepExpired(sctx); err != nil && ctx.Err() == nil {
		log.Error("sweep expired reservations", zap.Error(err))
	}
}
