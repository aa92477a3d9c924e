package services

import (
	"context"
	"sync"
	"testing"

	"cleanup-rewards-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// verifyLocation walks a location to verified through the normal flow.
func verifyLocation(t *testing.T, lifecycle *LocationService, votes *VoteService, locationID, cleaner string) {
	t.Helper()
	cleanToVoteable(t, lifecycle, locationID, cleaner)
	for i := 0; i < 3; i++ {
		_, err := votes.CastVote(context.Background(), locationID, walletN(i), models.VoteTypeUp)
		require.NoError(t, err)
	}
}

func TestIssueReward_Idempotent(t *testing.T) {
	ctx := context.Background()
	lifecycle, votes, rewards, tokens, db := newTestServices(t)
	loc := seedLocation(t, db, 25)

	verifyLocation(t, lifecycle, votes, loc.ID, "0xaaa")
	require.Equal(t, 1, tokens.calls())

	paid, err := lifecycle.GetLocation(ctx, loc.ID)
	require.NoError(t, err)
	require.True(t, paid.Rewarded)
	firstTxRef := *paid.RewardTxRef

	// Second issue is a no-op returning the recorded tx ref, without
	// another call to the transfer service.
	again, err := rewards.IssueReward(ctx, loc.ID)
	require.NoError(t, err)
	assert.True(t, again.Rewarded)
	require.NotNil(t, again.RewardTxRef)
	assert.Equal(t, firstTxRef, *again.RewardTxRef)
	assert.Equal(t, 1, tokens.calls())
}

func TestIssueReward_Preconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("UnknownLocation", func(t *testing.T) {
		_, _, rewards, _, _ := newTestServices(t)
		_, err := rewards.IssueReward(ctx, "no-such-id")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("NotVerified", func(t *testing.T) {
		lifecycle, _, rewards, tokens, db := newTestServices(t)
		loc := seedLocation(t, db, 25)
		cleanToVoteable(t, lifecycle, loc.ID, "0xaaa")

		_, err := rewards.IssueReward(ctx, loc.ID)
		assert.ErrorIs(t, err, models.ErrInvalidState)
		assert.Equal(t, 0, tokens.calls())
	})
}

func TestIssueReward_TransferFailure(t *testing.T) {
	ctx := context.Background()
	lifecycle, votes, rewards, tokens, db := newTestServices(t)
	loc := seedLocation(t, db, 25)

	tokens.failTransfers = true
	verifyLocation(t, lifecycle, votes, loc.ID, "0xaaa")

	// Verified, unpaid, with the failure recorded for retry.
	current, err := lifecycle.GetLocation(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, current.Status)
	assert.False(t, current.Rewarded)
	assert.Nil(t, current.RewardTxRef)
	assert.Equal(t, models.RewardStateFailed, current.RewardState)
	require.NotNil(t, current.RewardError)

	// The transfer service recovers; the retry pays exactly once.
	tokens.failTransfers = false
	paid, err := rewards.IssueReward(ctx, loc.ID)
	require.NoError(t, err)
	assert.True(t, paid.Rewarded)
	assert.Equal(t, models.RewardStatePaid, paid.RewardState)
	require.NotNil(t, paid.RewardTxRef)
	assert.Nil(t, paid.RewardError)
}

func TestIssueReward_ConcurrentCallers_SingleTransfer(t *testing.T) {
	ctx := context.Background()
	lifecycle, votes, rewards, tokens, db := newTestServices(t)
	loc := seedLocation(t, db, 25)

	verifyLocation(t, lifecycle, votes, loc.ID, "0xaaa")
	require.Equal(t, 1, tokens.calls())

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loc, err := rewards.IssueReward(ctx, loc.ID)
			// Every caller either sees the idempotent success or loses to
			// a holder of the pending lock — never a second payment.
			if err == nil {
				assert.True(t, loc.Rewarded)
			} else {
				assert.ErrorIs(t, err, models.ErrConflict)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, tokens.calls())
}

func TestIssueReward_CreditsProfileCache(t *testing.T) {
	lifecycle, votes, _, _, db := newTestServices(t)
	seedProfile(t, db, "0xaaa")
	loc := seedLocation(t, db, 40)

	verifyLocation(t, lifecycle, votes, loc.ID, "0xaaa")

	var profile models.Profile
	require.NoError(t, db.First(&profile, "wallet_address = ?", "0xaaa").Error)
	assert.Equal(t, int64(40), profile.Tokens)
}
