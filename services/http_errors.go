package services

import (
	"errors"
	"log"

	"cleanup-rewards-system/models"

	"github.com/gofiber/fiber/v2"
)

// lifecycleError maps the shared error taxonomy onto HTTP statuses. Anything
// outside the taxonomy is a real server fault and logged as such.
func lifecycleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Location not found"})
	case errors.Is(err, models.ErrAlreadyClaimed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Location already claimed"})
	case errors.Is(err, models.ErrInvalidState):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, models.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You do not own this claim"})
	case errors.Is(err, models.ErrSelfVote):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You cannot vote on your own cleanup"})
	case errors.Is(err, models.ErrDuplicateVote):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "You have already voted on this location"})
	case errors.Is(err, models.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Concurrent update, please retry"})
	case errors.Is(err, models.ErrTransfer):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Token transfer failed, payout will be retried"})
	default:
		log.Printf("Unexpected error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
}
