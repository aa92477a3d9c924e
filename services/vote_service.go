// services/vote_service.go
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

// VoteService is the vote ledger: it accepts or rejects a vote and hands the
// re-derived tally to the lifecycle engine. Counts are always computed from
// the vote rows — there is no stored counter to drift.
type VoteService struct {
	DB        *gorm.DB
	Lifecycle *LocationService
}

func NewVoteService(db *gorm.DB, lifecycle *LocationService) *VoteService {
	return &VoteService{DB: db, Lifecycle: lifecycle}
}

// CastVote records one wallet's vote on a submitted cleanup and re-evaluates
// verification. The pre-checks give friendly errors on the common paths; the
// unique index on (location_id, voter_id) is the real duplicate guard, so a
// wallet firing the same vote concurrently still lands exactly one row.
func (s *VoteService) CastVote(ctx context.Context, locationID, wallet string, voteType models.VoteType) (*models.Location, error) {
	if voteType != models.VoteTypeUp && voteType != models.VoteTypeDown {
		return nil, errors.New("voteType must be 'up' or 'down'")
	}

	loc, err := s.Lifecycle.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if loc.ClaimedBy != nil && *loc.ClaimedBy == wallet {
		return nil, models.ErrSelfVote
	}
	if !loc.Voteable() {
		return nil, models.ErrInvalidState
	}
	for _, v := range loc.Votes {
		if v.VoterID == wallet {
			return nil, models.ErrDuplicateVote
		}
	}

	vote := models.Vote{
		ID:         uuid.NewString(),
		LocationID: locationID,
		VoterID:    wallet,
		VoteType:   voteType,
	}
	if err := s.insertVote(ctx, &vote); err != nil {
		return nil, err
	}

	log.Printf("🗳️  Vote recorded: %s voted %s on %s", wallet, voteType, locationID)
	return s.Lifecycle.EvaluateVerification(ctx, locationID)
}

// insertVote appends the vote only while the location is still voteable. The
// status guard lives in the insert itself, so a vote racing a concurrent
// verification cannot land on an already-verified location after the
// pre-checks passed.
func (s *VoteService) insertVote(ctx context.Context, vote *models.Vote) error {
	res := s.DB.WithContext(ctx).Exec(
		"INSERT INTO votes (id, location_id, voter_id, vote_type, cast_at) "+
			"SELECT ?, ?, ?, ?, ? WHERE EXISTS "+
			"(SELECT 1 FROM locations WHERE id = ? AND status IN (?, ?))",
		vote.ID, vote.LocationID, vote.VoterID, vote.VoteType, time.Now().UTC(),
		vote.LocationID, models.StatusCleaned, models.StatusPhotoUploaded,
	)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return models.ErrDuplicateVote
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrInvalidState
	}
	return nil
}

// SubmitVote handles POST /locations/:id/votes
func (s *VoteService) SubmitVote(c *fiber.Ctx) error {
	wallet := c.Locals("wallet_address").(string)

	var req struct {
		VoteType models.VoteType `json:"voteType"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.VoteType != models.VoteTypeUp && req.VoteType != models.VoteTypeDown {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "voteType must be 'up' or 'down'"})
	}

	loc, err := s.CastVote(c.Context(), c.Params("id"), wallet, req.VoteType)
	if err != nil {
		return lifecycleError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Vote submitted successfully", "location": loc})
}
