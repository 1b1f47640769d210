package repository

import (
	"context"
	"sync/atomic"
	"time"

	"hostelpay/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverAttemptStore serves from primary (Redis) and falls back to an
// in-process store while primary is failing, probing it again every minute.
type FailoverAttemptStore struct {
	primary   domain.AttemptStore
	fallback  domain.AttemptStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverAttemptStore(primary, fallback domain.AttemptStore, logger *zerolog.Logger) *FailoverAttemptStore {
	return &FailoverAttemptStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverAttemptStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverAttemptStore) markResult(err error) {
	if err == nil {
		if r.isDown.CompareAndSwap(true, false) {
			r.logger.Info().Msg("Primary attempt store recovered")
		}
		return
	}
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary attempt store failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverAttemptStore) AcquireAttempt(ctx context.Context, bookingID, reference string, ttl time.Duration) (bool, error) {
	if r.usePrimary() {
		ok, err := r.primary.AcquireAttempt(ctx, bookingID, reference, ttl)
		r.markResult(err)
		if err == nil {
			return ok, nil
		}
	}
	return r.fallback.AcquireAttempt(ctx, bookingID, reference, ttl)
}

func (r *FailoverAttemptStore) ReleaseAttempt(ctx context.Context, bookingID, reference string) error {
	// the lock may live in either store depending on when it was taken
	if err := r.fallback.ReleaseAttempt(ctx, bookingID, reference); err != nil {
		return err
	}
	if r.usePrimary() {
		err := r.primary.ReleaseAttempt(ctx, bookingID, reference)
		r.markResult(err)
	}
	return nil
}

func (r *FailoverAttemptStore) ActiveAttempt(ctx context.Context, bookingID string) (string, error) {
	if r.usePrimary() {
		ref, err := r.primary.ActiveAttempt(ctx, bookingID)
		r.markResult(err)
		if err == nil {
			return ref, nil
		}
	}
	return r.fallback.ActiveAttempt(ctx, bookingID)
}

func (r *FailoverAttemptStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		r.markResult(err)
		if err == nil {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}

func (r *FailoverAttemptStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.usePrimary() {
		first, err := r.primary.MarkProcessed(ctx, key, ttl)
		r.markResult(err)
		if err == nil {
			return first, nil
		}
	}
	return r.fallback.MarkProcessed(ctx, key, ttl)
}

func (r *FailoverAttemptStore) ClearProcessed(ctx context.Context, key string) error {
	if err := r.fallback.ClearProcessed(ctx, key); err != nil {
		return err
	}
	if r.usePrimary() {
		err := r.primary.ClearProcessed(ctx, key)
		r.markResult(err)
		return err
	}
	return nil
}
