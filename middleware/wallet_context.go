// middleware/wallet_context.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// WalletContextMiddleware extracts the caller's wallet identity set by the
// gateway after signature verification. The core trusts this header — wallet
// signature checking is the gateway's job, not ours.
func WalletContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		wallet := strings.TrimSpace(c.Get("X-Wallet-Address"))
		if wallet == "" {
			log.Printf("❌ [WALLET_CTX] X-Wallet-Address missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-Wallet-Address — request must come through gateway with wallet context",
			})
		}

		c.Locals("wallet_address", strings.ToLower(wallet))
		return c.Next()
	}
}
