// services/location_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cleanup-rewards-system/models"
	"cleanup-rewards-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultVerifyThreshold is the minimum absolute upvote count before a
// cleanup can be verified. Override with VERIFY_THRESHOLD_UP.
const DefaultVerifyThreshold = 3

// LocationService is the lifecycle engine: the single authority over a
// location's status and the only writer of claimed_by, cleaned_by and
// after_photo_url. Every transition is one conditional UPDATE guarded on the
// state read at the start of the operation, so concurrent requests against
// the same location race on the database row, not in memory.
type LocationService struct {
	DB              *gorm.DB
	Rewards         *RewardService
	VerifyThreshold int
}

func NewLocationService(db *gorm.DB, rewards *RewardService, verifyThreshold int) *LocationService {
	if verifyThreshold <= 0 {
		verifyThreshold = DefaultVerifyThreshold
	}
	return &LocationService{DB: db, Rewards: rewards, VerifyThreshold: verifyThreshold}
}

// --- Core state machine ---

// Claim gives the wallet the exclusive right to clean this location.
// The status CAS (WHERE status = 'unclaimed') is what guarantees that two
// concurrent claimants cannot both succeed.
func (s *LocationService) Claim(ctx context.Context, locationID, wallet string) (*models.Location, error) {
	now := time.Now().UTC()
	res := s.DB.WithContext(ctx).Model(&models.Location{}).
		Where("id = ? AND status = ?", locationID, models.StatusUnclaimed).
		Updates(map[string]interface{}{
			"status":     models.StatusClaimed,
			"claimed_by": wallet,
			"claimed_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Either the id is unknown or somebody got here first.
		var loc models.Location
		if err := s.DB.WithContext(ctx).First(&loc, "id = ?", locationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, models.ErrNotFound
			}
			return nil, err
		}
		return nil, models.ErrAlreadyClaimed
	}

	log.Printf("✅ Location %s claimed by %s", locationID, wallet)
	return s.GetLocation(ctx, locationID)
}

// SubmitAfterPhoto records the after-photo URL and moves the location to
// cleaned. Only the claiming wallet may submit, and only from claimed.
func (s *LocationService) SubmitAfterPhoto(ctx context.Context, locationID, wallet, photoURL string) (*models.Location, error) {
	res := s.DB.WithContext(ctx).Model(&models.Location{}).
		Where("id = ? AND status = ? AND claimed_by = ?", locationID, models.StatusClaimed, wallet).
		Updates(map[string]interface{}{
			"after_photo_url": photoURL,
			"cleaned_by":      wallet,
			"status":          models.StatusCleaned,
		})
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
		if loc.ClaimedBy == nil || *loc.ClaimedBy != wallet {
			return nil, models.ErrForbidden
		}
		return nil, fmt.Errorf("%w: status is %s", models.ErrInvalidState, loc.Status)
	}

	log.Printf("✅ Location %s cleaned by %s, awaiting community votes", locationID, wallet)
	return s.GetLocation(ctx, locationID)
}

// EvaluateVerification re-derives the tally and, once the policy is met
// (upvotes >= threshold and a strict majority), moves the location to
// verified and synchronously triggers the reward payout. The verified CAS
// guarantees that when two vote requests cross the threshold together only
// one of them issues the reward — and IssueReward is idempotent besides.
func (s *LocationService) EvaluateVerification(ctx context.Context, locationID string) (*models.Location, error) {
	loc, err := s.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if !loc.Voteable() {
		// Already verified (terminal) or not yet submitted — nothing to derive.
		return loc, nil
	}
	if loc.Upvotes < s.VerifyThreshold || loc.Upvotes <= loc.Downvotes {
		return loc, nil
	}

	res := s.DB.WithContext(ctx).Model(&models.Location{}).
		Where("id = ? AND status IN ?", locationID, []models.LocationStatus{models.StatusCleaned, models.StatusPhotoUploaded}).
		Update("status", models.StatusVerified)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 1 {
		log.Printf("🎉 Location %s verified by community (%d up / %d down)", locationID, loc.Upvotes, loc.Downvotes)
		if _, err := s.Rewards.IssueReward(ctx, locationID); err != nil {
			// Recorded as reward_state=failed on the row; the retry job picks
			// it up. The vote that triggered verification still succeeded.
			log.Printf("❌ Reward payout for %s failed: %v", locationID, err)
		}
	}

	return s.GetLocation(ctx, locationID)
}

// preloadVotes keeps the vote list in cast order everywhere it is read.
func preloadVotes(db *gorm.DB) *gorm.DB {
	return db.Order("cast_at ASC")
}

// GetLocation loads a location with its votes and computed tallies.
func (s *LocationService) GetLocation(ctx context.Context, locationID string) (*models.Location, error) {
	var loc models.Location
	if err := s.DB.WithContext(ctx).Preload("Votes", preloadVotes).First(&loc, "id = ?", locationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	loc.ComputeTally()
	return &loc, nil
}

// CreateLocation seeds a new unclaimed location. Used by the admin seeding
// route only — claimants never create locations.
func (s *LocationService) CreateLocation(ctx context.Context, name string, lat, lng float64, beforePhotoURL string, rewardTokens int64) (*models.Location, error) {
	loc := models.Location{
		ID:             uuid.NewString(),
		Name:           name,
		Lat:            lat,
		Lng:            lng,
		BeforePhotoURL: beforePhotoURL,
		RewardTokens:   rewardTokens,
		Status:         models.StatusUnclaimed,
	}
	if err := s.DB.WithContext(ctx).Create(&loc).Error; err != nil {
		return nil, err
	}
	return &loc, nil
}

func tallied(locations []models.Location) []models.Location {
	for i := range locations {
		locations[i].ComputeTally()
	}
	return locations
}

// --- Fiber handlers ---

// ClaimLocation handles POST /locations/:id/claim
func (s *LocationService) ClaimLocation(c *fiber.Ctx) error {
	wallet := c.Locals("wallet_address").(string)
	loc, err := s.Claim(c.Context(), c.Params("id"), wallet)
	if err != nil {
		return lifecycleError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Location claimed successfully", "location": loc})
}

// UploadAfterPhoto handles POST /locations/:id/after-photo (multipart).
// The binary goes to R2; the engine only records the resulting URL.
func (s *LocationService) UploadAfterPhoto(c *fiber.Ctx) error {
	wallet := c.Locals("wallet_address").(string)
	locationID := c.Params("id")

	// Fetch first so ownership/state violations fail before we touch R2.
	loc, err := s.GetLocation(c.Context(), locationID)
	if err != nil {
		return lifecycleError(c, err)
	}
	if loc.ClaimedBy == nil || *loc.ClaimedBy != wallet {
		return lifecycleError(c, models.ErrForbidden)
	}
	if loc.Status != models.StatusClaimed {
		return lifecycleError(c, models.ErrInvalidState)
	}

	fileHeader, err := c.FormFile("photo")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "photo file is required"})
	}
	if !strings.HasPrefix(fileHeader.Header.Get("Content-Type"), "image/") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "photo must be an image"})
	}

	photoURL, err := utils.UploadFileToR2(fileHeader, utils.AfterPhotoKey(loc.Name, fileHeader.Filename))
	if err != nil {
		log.Printf("❌ Failed to upload after-photo for %s: %v", locationID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "failed to store photo"})
	}

	updated, err := s.SubmitAfterPhoto(c.Context(), locationID, wallet, photoURL)
	if err != nil {
		return lifecycleError(c, err)
	}
	return c.JSON(fiber.Map{"message": "After photo uploaded successfully", "location": updated})
}

// GetLocationByID handles GET /locations/:id
func (s *LocationService) GetLocationByID(c *fiber.Ctx) error {
	loc, err := s.GetLocation(c.Context(), c.Params("id"))
	if err != nil {
		return lifecycleError(c, err)
	}
	return c.JSON(loc)
}

// GetAllLocations handles GET /locations (map view)
func (s *LocationService) GetAllLocations(c *fiber.Ctx) error {
	var locations []models.Location
	if err := s.DB.WithContext(c.Context()).Preload("Votes", preloadVotes).Order("created_at ASC").Find(&locations).Error; err != nil {
		log.Printf("DB Error fetching locations: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch locations"})
	}
	return c.JSON(fiber.Map{"locations": tallied(locations)})
}

// GetUserLocations handles GET /locations/mine — everything the wallet has
// claimed, cleaned or had verified.
func (s *LocationService) GetUserLocations(c *fiber.Ctx) error {
	wallet := c.Locals("wallet_address").(string)
	var locations []models.Location
	if err := s.DB.WithContext(c.Context()).Preload("Votes", preloadVotes).
		Where("claimed_by = ?", wallet).
		Order("claimed_at DESC").
		Find(&locations).Error; err != nil {
		log.Printf("DB Error fetching locations for %s: %v", wallet, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch locations"})
	}
	return c.JSON(fiber.Map{"locations": tallied(locations)})
}

// GetGalleryLocations handles GET /gallery — submitted cleanups the
// community can vote on plus the verified permanent record, with tallies.
func (s *LocationService) GetGalleryLocations(c *fiber.Ctx) error {
	var locations []models.Location
	if err := s.DB.WithContext(c.Context()).Preload("Votes", preloadVotes).
		Where("status IN ? AND after_photo_url IS NOT NULL",
			[]models.LocationStatus{models.StatusCleaned, models.StatusPhotoUploaded, models.StatusVerified}).
		Order("claimed_at DESC").
		Find(&locations).Error; err != nil {
		log.Printf("DB Error fetching gallery: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch gallery"})
	}
	return c.JSON(tallied(locations))
}

// CreateLocationEndpoint handles POST /admin/locations (seeding).
func (s *LocationService) CreateLocationEndpoint(c *fiber.Ctx) error {
	var req struct {
		Name           string  `json:"name"`
		Lat            float64 `json:"lat"`
		Lng            float64 `json:"lng"`
		BeforePhotoURL string  `json:"beforePhotoUrl"`
		RewardTokens   int64   `json:"rewardTokens"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}
	if req.RewardTokens <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "rewardTokens must be positive"})
	}

	loc, err := s.CreateLocation(c.Context(), req.Name, req.Lat, req.Lng, req.BeforePhotoURL, req.RewardTokens)
	if err != nil {
		log.Printf("DB Error creating location: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create location"})
	}
	return c.Status(fiber.StatusCreated).JSON(loc)
}
