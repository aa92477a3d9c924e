// handlers/location.go
package handlers

import (
	"cleanup-rewards-system/middleware"
	"cleanup-rewards-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLocationRoutes(app *fiber.App, locationService *services.LocationService, voteService *services.VoteService, rewardService *services.RewardService) {
	// 🔓 Public reads — no wallet context needed
	app.Get("/locations", locationService.GetAllLocations)
	app.Get("/gallery", locationService.GetGalleryLocations)

	// 🛠 Admin routes — gateway service token only, used by seeding and ops
	admin := app.Group("/admin", middleware.GatewayAuthMiddleware())
	admin.Post("/locations", locationService.CreateLocationEndpoint)
	admin.Post("/locations/:id/retry-payout", rewardService.RetryPayout)

	// 🔐 Wallet-scoped routes. The group prefix keeps the wallet guard off
	// the login, admin and public routes — it must never mount on "/".
	secured := app.Group("/locations", middleware.WalletContextMiddleware())
	secured.Get("/mine", locationService.GetUserLocations)
	secured.Get("/:id", locationService.GetLocationByID)
	secured.Post("/:id/claim", locationService.ClaimLocation)
	secured.Post("/:id/after-photo", locationService.UploadAfterPhoto)
	secured.Post("/:id/votes", voteService.SubmitVote)
}
