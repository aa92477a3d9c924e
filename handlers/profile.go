// handlers/profile.go
package handlers

import (
	"cleanup-rewards-system/middleware"
	"cleanup-rewards-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupProfileRoutes(app *fiber.App, profileService *services.ProfileService) {
	// Login is the one route that carries the wallet in the body — the
	// profile may not exist yet.
	app.Post("/auth/wallet-login", profileService.WalletLogin)

	secured := app.Group("/profile", middleware.WalletContextMiddleware())
	secured.Get("/", profileService.GetProfile)
	secured.Post("/", profileService.UpdateProfile)
	secured.Get("/balance", profileService.GetWalletBalance)
}
