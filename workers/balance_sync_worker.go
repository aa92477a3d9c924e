package workers

import (
	"context"
	"log"
	"time"

	"cleanup-rewards-system/models"

	"gorm.io/gorm"
)

// BalanceSource is the slice of the token service the sync loop needs.
type BalanceSource interface {
	Balance(ctx context.Context, wallet string) (int64, error)
}

// PollBalances periodically refreshes the cached token balance of every known
// profile from the token service. The cache is display-only, so individual
// wallet failures are logged and skipped — the loop never gives up.
func PollBalances(ctx context.Context, db *gorm.DB, source BalanceSource, pollInterval time.Duration) {
	log.Println("Starting wallet balance polling...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Balance polling stopped.")
			return
		case <-ticker.C:
			var profiles []models.Profile
			if err := db.Find(&profiles).Error; err != nil {
				log.Printf("❌ Balance sync: failed to list profiles: %v", err)
				continue
			}

			synced := 0
			for _, p := range profiles {
				balance, err := source.Balance(ctx, p.WalletAddress)
				if err != nil {
					log.Printf("⚠️  Balance sync: %s unreachable, keeping cached value: %v", p.WalletAddress, err)
					continue
				}

				now := time.Now().UTC()
				if err := db.Model(&models.Profile{}).
					Where("wallet_address = ?", p.WalletAddress).
					Updates(map[string]interface{}{
						"tokens":               balance,
						"last_balance_sync_at": now,
					}).Error; err != nil {
					log.Printf("❌ Balance sync: failed to update %s: %v", p.WalletAddress, err)
					continue
				}
				synced++
			}

			if synced > 0 {
				log.Printf("✅ Balance sync: refreshed %d wallet(s).", synced)
			}
		}
	}
}
