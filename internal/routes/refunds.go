package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/playmate/playmate/internal/middleware"
	"github.com/playmate/playmate/internal/refund"
)

// RegisterRefundRoutes wires refund endpoints. Review routes are admin only.
func RegisterRefundRoutes(r fiber.Router, h *refund.Handler) {
	group := r.Group("/refunds")
	group.Post("/apply", h.Apply)
	group.Get("/my", h.Mine)
	group.Get("/all", middleware.RequireAdmin(), h.All)
	group.Post("/:id/approve", middleware.RequireAdmin(), h.Approve)
	group.Post("/:id/reject", middleware.RequireAdmin(), h.Reject)
}
