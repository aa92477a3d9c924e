// services/profile_service.go
package services

import (
	"context"
	"errors"
	"log"
	"time"

	"cleanup-rewards-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BalanceReader reads the authoritative on-chain balance for a wallet.
type BalanceReader interface {
	Balance(ctx context.Context, wallet string) (int64, error)
}

// CleanupStats are the aggregate counters shown on a wallet's dashboard,
// always derived from the location rows.
type CleanupStats struct {
	TotalClaimed  int64 `json:"totalClaimed"`
	TotalCleaned  int64 `json:"totalCleaned"`
	TotalVerified int64 `json:"totalVerified"`
	TotalRewarded int64 `json:"totalRewarded"`
}

// ProfileService maintains the cached per-wallet summary. It is a downstream
// consumer: the token service owns balances, the lifecycle engine owns
// location state. Reads fail soft to the cache when the token service is
// unreachable — a broken balance lookup never breaks the dashboard.
type ProfileService struct {
	DB     *gorm.DB
	Tokens BalanceReader
}

func NewProfileService(db *gorm.DB, tokens BalanceReader) *ProfileService {
	return &ProfileService{DB: db, Tokens: tokens}
}

// Refresh re-reads the authoritative balance and the wallet's cleanup
// counters. The returned profile always has Tokens populated — from the
// token service when reachable, from the last cached value otherwise.
func (s *ProfileService) Refresh(ctx context.Context, wallet string) (*models.Profile, *CleanupStats, error) {
	var profile models.Profile
	if err := s.DB.WithContext(ctx).First(&profile, "wallet_address = ?", wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, models.ErrNotFound
		}
		return nil, nil, err
	}

	if balance, err := s.Tokens.Balance(ctx, wallet); err != nil {
		log.Printf("⚠️  Token service unreachable for %s, serving cached balance: %v", wallet, err)
	} else {
		now := time.Now().UTC()
		profile.Tokens = balance
		profile.LastBalanceSyncAt = &now
		if err := s.DB.WithContext(ctx).Model(&models.Profile{}).
			Where("wallet_address = ?", wallet).
			Updates(map[string]interface{}{
				"tokens":               balance,
				"last_balance_sync_at": now,
			}).Error; err != nil {
			log.Printf("⚠️  Could not persist refreshed balance for %s: %v", wallet, err)
		}
	}

	stats, err := s.cleanupStats(ctx, wallet)
	if err != nil {
		return nil, nil, err
	}
	return &profile, stats, nil
}

func (s *ProfileService) cleanupStats(ctx context.Context, wallet string) (*CleanupStats, error) {
	var stats CleanupStats
	base := s.DB.WithContext(ctx).Model(&models.Location{}).
		Where("claimed_by = ?", wallet).
		Session(&gorm.Session{})

	if err := base.Count(&stats.TotalClaimed).Error; err != nil {
		return nil, err
	}
	if err := base.
		Where("status IN ?", []models.LocationStatus{models.StatusCleaned, models.StatusPhotoUploaded, models.StatusVerified}).
		Count(&stats.TotalCleaned).Error; err != nil {
		return nil, err
	}
	if err := base.
		Where("status = ?", models.StatusVerified).
		Count(&stats.TotalVerified).Error; err != nil {
		return nil, err
	}
	if err := base.
		Where("rewarded = ?", true).
		Count(&stats.TotalRewarded).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}

// --- Fiber handlers ---

// WalletLogin handles POST /auth/wallet-login. First sight of a wallet
// creates a bare profile; the response tells the client whether the
// profile-completion flow is still needed.
func (s *ProfileService) WalletLogin(c *fiber.Ctx) error {
	var req struct {
		WalletAddress string `json:"walletAddress"`
	}
	if err := c.BodyParser(&req); err != nil || req.WalletAddress == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "walletAddress is required"})
	}

	var profile models.Profile
	err := s.DB.WithContext(c.Context()).First(&profile, "wallet_address = ?", req.WalletAddress).Error
	if err == nil {
		return c.JSON(fiber.Map{"isNewUser": false, "userData": profile})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("DB Error on wallet login: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	profile = models.Profile{
		ID:            uuid.NewString(),
		WalletAddress: req.WalletAddress,
	}
	if err := s.DB.WithContext(c.Context()).Create(&profile).Error; err != nil {
		// A concurrent login for the same wallet may have won the insert.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if err := s.DB.WithContext(c.Context()).First(&profile, "wallet_address = ?", req.WalletAddress).Error; err == nil {
				return c.JSON(fiber.Map{"isNewUser": false, "userData": profile})
			}
		}
		log.Printf("DB Error creating profile: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create profile"})
	}

	return c.JSON(fiber.Map{"isNewUser": true, "userData": profile})
}

// UpdateProfile handles POST /profile — the profile-completion flow.
func (s *ProfileService) UpdateProfile(c *fiber.Ctx) error {
	wallet := c.Locals("wallet_address").(string)

	var req struct {
		Username  *string `json:"username"`
		Email     *string `json:"email"`
		FirstName *string `json:"firstName"`
		LastName  *string `json:"lastName"`
		City      *string `json:"city"`
		Country   *string `json:"country"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	var profile models.Profile
	if err := s.DB.WithContext(c.Context()).First(&profile, "wallet_address = ?", wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Profile not found — login first"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	if req.Username != nil {
		profile.Username = *req.Username
	}
	if req.Email != nil {
		profile.Email = *req.Email
	}
	if req.FirstName != nil {
		profile.FirstName = req.FirstName
	}
	if req.LastName != nil {
		profile.LastName = req.LastName
	}
	if req.City != nil {
		profile.City = req.City
	}
	if req.Country != nil {
		profile.Country = req.Country
	}

	if err := s.DB.WithContext(c.Context()).Save(&profile).Error; err != nil {
		log.Printf("DB Error updating profile: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update profile"})
	}

	return c.JSON(fiber.Map{"message": "Profile updated successfully", "userData": profile})
}

// GetProfile handles GET /profile — cached summary plus cleanup stats.
func (s *ProfileService) GetProfile(c *fiber.Ctx) error {
	wallet := c.Locals("wallet_address").(string)

	var profile models.Profile
	if err := s.DB.WithContext(c.Context()).First(&profile, "wallet_address = ?", wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Profile not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	stats, err := s.cleanupStats(c.Context(), wallet)
	if err != nil {
		log.Printf("DB Error computing cleanup stats for %s: %v", wallet, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	return c.JSON(fiber.Map{"userData": profile, "stats": stats})
}

// GetWalletBalance handles GET /profile/balance — fresh when the token
// service answers, cached when it doesn't. Never an error to the caller.
func (s *ProfileService) GetWalletBalance(c *fiber.Ctx) error {
	wallet := c.Locals("wallet_address").(string)

	profile, _, err := s.Refresh(c.Context(), wallet)
	if err != nil {
		return lifecycleError(c, err)
	}
	return c.JSON(fiber.Map{
		"walletAddress": wallet,
		"tokenBalance":  profile.Tokens,
		"syncedAt":      profile.LastBalanceSyncAt,
	})
}
