package repository

import (
	"context"
	"testing"
	"time"

	"druktour/internal/config"
	"druktour/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configFor(addr string) config.RedisConfig {
	return config.RedisConfig{Address: addr, PoolSize: 2}
}

func TestMemoryStateRepository(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := NewMemoryStateRepository(time.Hour, time.Hour)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	t.Run("SessionRoundTripIsIsolated", func(t *testing.T) {
		rec := sampleRecord("BK-1", "alice")
		require.NoError(t, repo.SaveSession(ctx, rec))

		rec.State.Working[0].Title = "mutated after save"

		got, err := repo.GetSession(ctx, rec.Key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Arrival in Paro", got.State.Working[0].Title)
	})

	t.Run("SessionExpires", func(t *testing.T) {
		rec := sampleRecord("BK-2", "alice")
		require.NoError(t, repo.SaveSession(ctx, rec))

		now = now.Add(time.Hour + time.Second)
		got, err := repo.GetSession(ctx, rec.Key)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("DeleteSession", func(t *testing.T) {
		rec := sampleRecord("BK-3", "alice")
		require.NoError(t, repo.SaveSession(ctx, rec))
		require.NoError(t, repo.DeleteSession(ctx, rec.Key))
		got, err := repo.GetSession(ctx, rec.Key)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("KeysWithSeparatorsDoNotCollide", func(t *testing.T) {
		a := sampleRecord("a:b", "c")
		b := sampleRecord("a", "b:c")
		b.BaseVersion = 7
		require.NoError(t, repo.SaveSession(ctx, a))
		require.NoError(t, repo.SaveSession(ctx, b))

		got, err := repo.GetSession(ctx, a.Key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, a.Key, got.Key)
		assert.NotEqual(t, int64(7), got.BaseVersion)
	})

	t.Run("SetAndClearState", func(t *testing.T) {
		state := &models.UserState{UserID: 123, CurrentStep: models.StateAwaitingRejectReason}
		require.NoError(t, repo.SetState(ctx, state))

		got, err := repo.GetState(ctx, 123)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, state.CurrentStep, got.CurrentStep)

		require.NoError(t, repo.ClearState(ctx, 123))
		got, err = repo.GetState(ctx, 123)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("RateLimit", func(t *testing.T) {
		userID := int64(456)
		allowed, _ := repo.CheckRateLimit(ctx, userID, 2, time.Second)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, userID, 2, time.Second)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, userID, 2, time.Second)
		assert.False(t, allowed)

		now = now.Add(time.Second + 10*time.Millisecond)
		allowed, _ = repo.CheckRateLimit(ctx, userID, 2, time.Second)
		assert.True(t, allowed)
	})
}

func TestMemoryStateRepository_NoTTL(t *testing.T) {
	repo := NewMemoryStateRepository(0, 0)
	ctx := context.Background()
	rec := sampleRecord("BK-1", "alice")
	require.NoError(t, repo.SaveSession(ctx, rec))

	repo.now = func() time.Time { return time.Now().Add(24 * 365 * time.Hour) }
	got, err := repo.GetSession(ctx, rec.Key)
	require.NoError(t, err)
	assert.NotNil(t, got)
}
