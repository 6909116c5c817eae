package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/playmate/playmate/internal/middleware"
	"github.com/playmate/playmate/internal/wallet"
)

// RegisterWalletRoutes wires wallet endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	group := r.Group("/wallet")
	group.Get("/flow/list", h.Flow)
	group.Get("/balance", h.Balance)
	group.Post("/deposit", middleware.RequireAdmin(), h.Deposit)
}
