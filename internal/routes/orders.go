package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/playmate/playmate/internal/middleware"
	"github.com/playmate/playmate/internal/order"
)

// RegisterOrderRoutes wires order lifecycle endpoints.
func RegisterOrderRoutes(r fiber.Router, h *order.Handler) {
	group := r.Group("/orders")
	group.Post("/create", h.Create)
	group.Get("/my", h.Mine)
	group.Get("/all", middleware.RequireAdmin(), h.All)
	group.Post("/accept/:id", h.Accept)
	group.Post("/complete/:id", h.Complete)
	group.Post("/cancel/:id", h.Cancel)
	group.Post("/evaluate/:id", h.Evaluate)
}
