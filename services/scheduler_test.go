package services

import (
	"context"
	"testing"
	"time"

	"cleanup-rewards-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepPayouts(t *testing.T) {
	ctx := context.Background()

	t.Run("RetriesFailedPayouts", func(t *testing.T) {
		lifecycle, votes, rewards, tokens, db := newTestServices(t)
		loc := seedLocation(t, db, 25)

		tokens.failTransfers = true
		verifyLocation(t, lifecycle, votes, loc.ID, "0xaaa")
		require.Equal(t, 1, tokens.calls())

		tokens.failTransfers = false
		rewards.sweepPayouts(ctx)

		paid, err := lifecycle.GetLocation(ctx, loc.ID)
		require.NoError(t, err)
		assert.True(t, paid.Rewarded)
		assert.Equal(t, models.RewardStatePaid, paid.RewardState)
		assert.Equal(t, 2, tokens.calls())
	})

	t.Run("RecoversOrphanedPendingLock", func(t *testing.T) {
		lifecycle, votes, rewards, tokens, db := newTestServices(t)
		loc := seedLocation(t, db, 25)

		tokens.failTransfers = true
		verifyLocation(t, lifecycle, votes, loc.ID, "0xaaa")
		require.Equal(t, 1, tokens.calls())

		// Simulate a process that claimed the lock and died before the
		// transfer outcome was recorded.
		stale := time.Now().UTC().Add(-3 * transferTimeout)
		require.NoError(t, db.Model(&models.Location{}).
			Where("id = ?", loc.ID).
			UpdateColumns(map[string]interface{}{
				"reward_state": models.RewardStatePending,
				"reward_error": nil,
				"updated_at":   stale,
			}).Error)

		tokens.failTransfers = false
		rewards.sweepPayouts(ctx)

		paid, err := lifecycle.GetLocation(ctx, loc.ID)
		require.NoError(t, err)
		assert.True(t, paid.Rewarded)
		assert.Equal(t, models.RewardStatePaid, paid.RewardState)
		require.NotNil(t, paid.RewardTxRef)
		assert.Equal(t, 2, tokens.calls())
	})

	t.Run("LeavesLivePendingLockAlone", func(t *testing.T) {
		lifecycle, votes, rewards, tokens, db := newTestServices(t)
		loc := seedLocation(t, db, 25)

		tokens.failTransfers = true
		verifyLocation(t, lifecycle, votes, loc.ID, "0xaaa")
		require.Equal(t, 1, tokens.calls())

		// A fresh pending lock means another issuer is mid-transfer.
		require.NoError(t, db.Model(&models.Location{}).
			Where("id = ?", loc.ID).
			UpdateColumns(map[string]interface{}{
				"reward_state": models.RewardStatePending,
				"updated_at":   time.Now().UTC(),
			}).Error)

		tokens.failTransfers = false
		rewards.sweepPayouts(ctx)

		current, err := lifecycle.GetLocation(ctx, loc.ID)
		require.NoError(t, err)
		assert.False(t, current.Rewarded)
		assert.Equal(t, models.RewardStatePending, current.RewardState)
		assert.Equal(t, 1, tokens.calls())
	})
}
