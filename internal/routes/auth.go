package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/playmate/playmate/internal/auth"
	"github.com/playmate/playmate/internal/httpx"
	"github.com/playmate/playmate/internal/identity"
	"github.com/playmate/playmate/internal/ledger"
	"github.com/playmate/playmate/internal/wallet"
)

// RegisterAuthRoutes wires the public authentication endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/register", h.Register)
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
}

// RegisterProfileRoute exposes the caller's profile together with their balance.
func RegisterProfileRoute(r fiber.Router, ids *identity.Service, wallets *wallet.Service) {
	r.Get("/auth/profile", func(c *fiber.Ctx) error {
		p, err := auth.FromCtx(c)
		if err != nil {
			return err
		}
		user, err := ids.Get(c.UserContext(), p.ID)
		if err != nil {
			return err
		}
		bal, err := wallets.Balance(c.UserContext(), p.ID)
		if err != nil {
			return err
		}
		return httpx.OK(c, fiber.Map{
			"user":       auth.ViewOf(user),
			"balance":    ledger.JSONAmount(bal.Amount),
			"as_of":      bal.AsOf,
			"created_at": user.CreatedAt,
		})
	})
}
