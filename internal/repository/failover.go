package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"druktour/internal/domain"
	"druktour/internal/itinerary"
	"druktour/internal/metrics"
	"druktour/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

var ErrStoreDegraded = errors.New("session store is running on its fallback")

// FailoverStateRepository uses the primary store until it fails, then the
// fallback. The primary is retried once per recoveryInterval.
// Sessions written to the fallback while the primary is down are not copied back.
type FailoverStateRepository struct {
	primary   domain.SessionStore
	fallback  domain.SessionStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverStateRepository(primary, fallback domain.SessionStore, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// Degraded reports whether calls currently go to the fallback.
func (r *FailoverStateRepository) Degraded() bool { return r.isDown.Load() }

// Ready fails while the fallback is serving, so readiness probes report that
// sessions are not shared between instances.
func (r *FailoverStateRepository) Ready(context.Context) error {
	if r.Degraded() {
		return ErrStoreDegraded
	}
	return nil
}

func (r *FailoverStateRepository) markDown(op string, err error) {
	if !r.isDown.Swap(true) {
		metrics.SetSessionStoreDegraded(true)
		r.logger.Error().Err(err).Str("op", op).Msg("Primary state repository failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverStateRepository) shouldRetryPrimary() bool {
	last := time.Unix(0, r.lastCheck.Load())
	return r.now().Sub(last) > recoveryInterval
}

func withFailover[T any](r *FailoverStateRepository, op string, call func(domain.SessionStore) (T, error)) (T, error) {
	if !r.isDown.Load() || r.shouldRetryPrimary() {
		res, err := call(r.primary)
		if err == nil {
			if r.isDown.Swap(false) {
				metrics.SetSessionStoreDegraded(false)
				r.logger.Info().Str("op", op).Msg("Primary state repository recovered")
			}
			return res, nil
		}
		r.markDown(op, err)
	}
	return call(r.fallback)
}

func (r *FailoverStateRepository) GetSession(ctx context.Context, key itinerary.SessionKey) (*itinerary.Record, error) {
	return withFailover(r, "get_session", func(s domain.SessionStore) (*itinerary.Record, error) {
		return s.GetSession(ctx, key)
	})
}

func (r *FailoverStateRepository) SaveSession(ctx context.Context, rec *itinerary.Record) error {
	_, err := withFailover(r, "save_session", func(s domain.SessionStore) (struct{}, error) {
		return struct{}{}, s.SaveSession(ctx, rec)
	})
	return err
}

func (r *FailoverStateRepository) DeleteSession(ctx context.Context, key itinerary.SessionKey) error {
	_, err := withFailover(r, "delete_session", func(s domain.SessionStore) (struct{}, error) {
		return struct{}{}, s.DeleteSession(ctx, key)
	})
	return err
}

func (r *FailoverStateRepository) GetState(ctx context.Context, userID int64) (*models.UserState, error) {
	return withFailover(r, "get_state", func(s domain.SessionStore) (*models.UserState, error) {
		return s.GetState(ctx, userID)
	})
}

func (r *FailoverStateRepository) SetState(ctx context.Context, state *models.UserState) error {
	_, err := withFailover(r, "set_state", func(s domain.SessionStore) (struct{}, error) {
		return struct{}{}, s.SetState(ctx, state)
	})
	return err
}

func (r *FailoverStateRepository) ClearState(ctx context.Context, userID int64) error {
	_, err := withFailover(r, "clear_state", func(s domain.SessionStore) (struct{}, error) {
		return struct{}{}, s.ClearState(ctx, userID)
	})
	return err
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	return withFailover(r, "rate_limit", func(s domain.SessionStore) (bool, error) {
		return s.CheckRateLimit(ctx, userID, limit, window)
	})
}
