// services/reward_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cleanup-rewards-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// TokenTransferer is the slice of the external token service the issuer
// needs: move tokens, report a transaction reference or an error.
type TokenTransferer interface {
	Transfer(ctx context.Context, destination string, amount int64) (string, error)
}

const transferTimeout = 30 * time.Second

// RewardService pays out a location's reward tokens to the cleaner exactly
// once. The rewarding lock is claimed by a conditional write of
// reward_state='pending' BEFORE the external transfer is attempted and
// rolled back to 'failed' if the transfer does not confirm, so a duplicate
// or racing invocation can never double-pay.
type RewardService struct {
	DB     *gorm.DB
	Tokens TokenTransferer
}

func NewRewardService(db *gorm.DB, tokens TokenTransferer) *RewardService {
	return &RewardService{DB: db, Tokens: tokens}
}

// IssueReward pays rewardTokens to cleanedBy for a verified location.
// Calling it on an already-rewarded location is a no-op that returns the
// recorded transaction reference without touching the transfer service.
func (s *RewardService) IssueReward(ctx context.Context, locationID string) (*models.Location, error) {
	// Phase 1: claim the rewarding lock. Exactly one caller can move the
	// row out of ''/'failed'; everyone else falls through to the re-read.
	res := s.DB.WithContext(ctx).Model(&models.Location{}).
		Where("id = ? AND status = ? AND rewarded = ? AND reward_state IN ?",
			locationID, models.StatusVerified, false,
			[]models.RewardState{models.RewardStateNone, models.RewardStateFailed}).
		Update("reward_state", models.RewardStatePending)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var loc models.Location
		if err := s.DB.WithContext(ctx).First(&loc, "id = ?", locationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, models.ErrNotFound
			}
			return nil, err
		}
		if loc.Rewarded {
			// Already paid — idempotent success.
			return &loc, nil
		}
		if loc.Status != models.StatusVerified {
			return nil, fmt.Errorf("%w: status is %s", models.ErrInvalidState, loc.Status)
		}
		// Another issuer holds the pending lock right now.
		return nil, models.ErrConflict
	}

	var loc models.Location
	if err := s.DB.WithContext(ctx).First(&loc, "id = ?", locationID).Error; err != nil {
		return nil, err
	}
	if loc.CleanedBy == nil {
		// Cannot happen through the lifecycle engine; release the lock
		// rather than leave the row stuck in pending.
		s.markFailed(ctx, locationID, "no cleaner recorded on verified location")
		return nil, fmt.Errorf("%w: verified location %s has no cleaner", models.ErrInvalidState, locationID)
	}

	// Phase 2: the external transfer, with a bounded timeout.
	transferCtx, cancel := context.WithTimeout(ctx, transferTimeout)
	defer cancel()

	txRef, err := s.Tokens.Transfer(transferCtx, *loc.CleanedBy, loc.RewardTokens)
	if err != nil {
		s.markFailed(ctx, locationID, err.Error())
		return nil, fmt.Errorf("%w: %v", models.ErrTransfer, err)
	}

	// Phase 3: finalize. Guarded on the pending lock we hold, so rewarded
	// never flips true without a confirmed tx ref.
	now := time.Now().UTC()
	if err := s.DB.WithContext(ctx).Model(&models.Location{}).
		Where("id = ? AND reward_state = ?", locationID, models.RewardStatePending).
		Updates(map[string]interface{}{
			"rewarded":      true,
			"reward_state":  models.RewardStatePaid,
			"reward_tx_ref": txRef,
			"reward_error":  nil,
			"rewarded_at":   now,
		}).Error; err != nil {
		return nil, err
	}

	log.Printf("💰 Paid %d ECO to %s for location %s (tx %s)", loc.RewardTokens, *loc.CleanedBy, locationID, txRef)

	s.creditProfileCache(ctx, *loc.CleanedBy, loc.RewardTokens)

	if err := s.DB.WithContext(ctx).First(&loc, "id = ?", locationID).Error; err != nil {
		return nil, err
	}
	return &loc, nil
}

// markFailed releases the pending lock, leaving the location verified but
// retryable (rewarded stays false).
func (s *RewardService) markFailed(ctx context.Context, locationID, reason string) {
	if err := s.DB.WithContext(ctx).Model(&models.Location{}).
		Where("id = ? AND reward_state = ?", locationID, models.RewardStatePending).
		Updates(map[string]interface{}{
			"reward_state": models.RewardStateFailed,
			"reward_error": reason,
		}).Error; err != nil {
		log.Printf("❌ Failed to record payout failure for %s: %v", locationID, err)
	}
}

// creditProfileCache bumps the wallet's cached token total after a payout.
// Best effort only — the token service stays authoritative and the balance
// sync worker reconciles later.
func (s *RewardService) creditProfileCache(ctx context.Context, wallet string, amount int64) {
	if err := s.DB.WithContext(ctx).Model(&models.Profile{}).
		Where("wallet_address = ?", wallet).
		Update("tokens", gorm.Expr("tokens + ?", amount)).Error; err != nil {
		log.Printf("⚠️  Could not refresh cached balance for %s: %v", wallet, err)
	}
}

// RetryPayout handles POST /admin/locations/:id/retry-payout — the manual
// retry path for payouts the transfer service rejected.
func (s *RewardService) RetryPayout(c *fiber.Ctx) error {
	loc, err := s.IssueReward(c.Context(), c.Params("id"))
	if err != nil {
		return lifecycleError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Payout completed", "location": loc})
}
