// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"cleanup-rewards-system/models"

	"github.com/go-co-op/gocron/v2"
)

// A pending lock older than this cannot belong to a live issuer: the
// transfer context dies at transferTimeout, so any survivor was orphaned by
// a crash between claiming the lock and recording the outcome.
const stalePendingAfter = 2 * transferTimeout

// StartPayoutRetryScheduler periodically re-runs payouts that never reached
// a confirmed transfer. A location stays verified with rewarded=false until
// the transfer service finally confirms, so the sweep is safe to repeat —
// the pending lock keeps concurrent retries out.
func (s *RewardService) StartPayoutRetryScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			s.sweepPayouts(context.Background())
		}),
	)
}

// sweepPayouts reclaims payout locks orphaned by a crash mid-transfer, then
// retries every failed payout.
func (s *RewardService) sweepPayouts(ctx context.Context) {
	// The cutoff guard keeps a lock a live issuer still holds untouched.
	cutoff := time.Now().UTC().Add(-stalePendingAfter)
	res := s.DB.WithContext(ctx).Model(&models.Location{}).
		Where("reward_state = ? AND rewarded = ? AND updated_at < ?",
			models.RewardStatePending, false, cutoff).
		Updates(map[string]interface{}{
			"reward_state": models.RewardStateFailed,
			"reward_error": "payout interrupted before confirmation",
		})
	if res.Error != nil {
		log.Printf("[PayoutRetry] Could not reclaim stale pending locks: %v", res.Error)
	} else if res.RowsAffected > 0 {
		log.Printf("[PayoutRetry] Reclaimed %d stale pending payout(s)", res.RowsAffected)
	}

	var failed []models.Location
	err := s.DB.WithContext(ctx).Where("status = ? AND rewarded = ? AND reward_state = ?",
		models.StatusVerified, false, models.RewardStateFailed).
		Find(&failed).Error
	if err != nil {
		log.Printf("[PayoutRetry] DB error: %v", err)
		return
	}

	for _, loc := range failed {
		if _, err := s.IssueReward(ctx, loc.ID); err != nil {
			log.Printf("[PayoutRetry] Payout for %s still failing: %v", loc.ID, err)
		} else {
			log.Printf("✅ Retried payout succeeded for location: %s", loc.Name)
		}
	}
}
