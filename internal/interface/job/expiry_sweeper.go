// Package job background tasks of the service.
package job

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appinventory "github.com/xiebiao/freshmart/internal/application/inventory"
	"github.com/xiebiao/freshmart/internal/infrastructure/persistence/redis"
)

// SweepLockKey held by the replica running the sweep
const SweepLockKey = "lock:inventory:expiry-sweep"

// Sweeper one lifecycle sweep (appinventory.SweepExpiredUseCase)
type Sweeper interface {
	Execute(ctx context.Context) (*appinventory.SweepResponse, error)
}

// ExpirySweeper runs the lifecycle sweep on a ticker
//
// Design notes:
//  1. one run right after start, then every interval
//  2. with a locker, only the replica holding the Redis lock sweeps; the
//     others skip the tick
//  3. a failed run is logged and retried on the next tick
//  4. selling never waits for it: eligibility is evaluated against the
//     clock on every read
type ExpirySweeper struct {
	sweeper  Sweeper
	locker   *redis.Locker
	interval time.Duration
	lockTTL  time.Duration
	log      *zap.Logger
}

// NewExpirySweeper creates the job; locker may be nil for a single replica
func NewExpirySweeper(sweeper Sweeper, locker *redis.Locker, interval, lockTTL time.Duration, log *zap.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ExpirySweeper{
		sweeper:  sweeper,
		locker:   locker,
		interval: interval,
		lockTTL:  lockTTL,
		log:      log,
	}
}

// Run blocks until ctx is cancelled
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("expiry sweeper started", zap.Duration("interval", s.interval))
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *ExpirySweeper) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.log.Error("expiry sweep failed", zap.Error(err))
	}
}

// RunOnce sweeps once; false when another replica holds the lock
func (s *ExpirySweeper) RunOnce(ctx context.Context) (bool, error) {
	if s.locker != nil {
		lock, err := s.locker.Acquire(ctx, SweepLockKey, s.lockTTL)
		if errors.Is(err, redis.ErrLockNotAcquired) {
			s.log.Debug("expiry sweep skipped, lock held elsewhere")
			return false, nil
		}
		if err != nil {
			return false, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("sweep lock release failed", zap.Error(err))
			}
		}()
	}

	result, err := s.sweeper.Execute(ctx)
	if err != nil {
		return true, err
	}
	s.log.Debug("expiry sweep done",
		zap.Int("expired", len(result.Expired)),
		zap.Int("depleted", len(result.Depleted)))
	return true, nil
}
