package refund

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/playmate/playmate/internal/apperr"
	"github.com/playmate/playmate/internal/auth"
	"github.com/playmate/playmate/internal/httpx"
)

// Handler exposes refund endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a refund HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type applyRequest struct {
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

// Apply opens a refund request for the caller's completed order.
func (h *Handler) Apply(c *fiber.Ctx) error {
	p, err := auth.FromCtx(c)
	if err != nil {
		return err
	}
	var req applyRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	if req.OrderID <= 0 {
		return apperr.E(apperr.KindValidation, "order_id is required")
	}
	r, err := h.service.Apply(c.UserContext(), ApplyInput{OrderID: req.OrderID, ApplicantID: p.ID, Reason: req.Reason})
	if err != nil {
		return err
	}
	return httpx.Created(c, r)
}

// Mine lists the caller's refund requests.
func (h *Handler) Mine(c *fiber.Ctx) error {
	p, err := auth.FromCtx(c)
	if err != nil {
		return err
	}
	views, err := h.service.ListMine(c.UserContext(), p.ID)
	if err != nil {
		return err
	}
	return httpx.OK(c, views)
}

// All lists refunds filtered by ?status= and ?keyword=. Admin only.
func (h *Handler) All(c *fiber.Ctx) error {
	p, err := auth.FromCtx(c)
	if err != nil {
		return err
	}
	views, err := h.service.ListAll(c.UserContext(), p, Filter{
		Status:  Status(c.Query("status")),
		Keyword: c.Query("keyword"),
	})
	if err != nil {
		return err
	}
	return httpx.OK(c, views)
}

// Approve reverses the order payment. Admin only.
func (h *Handler) Approve(c *fiber.Ctx) error {
	return h.review(c, h.service.Approve)
}

// Reject closes the request without moving money. Admin only.
func (h *Handler) Reject(c *fiber.Ctx) error {
	return h.review(c, h.service.Reject)
}

func (h *Handler) review(c *fiber.Ctx, fn func(context.Context, auth.Principal, int64) (Refund, error)) error {
	p, err := auth.FromCtx(c)
	if err != nil {
		return err
	}
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	r, err := fn(c.UserContext(), p, id)
	if err != nil {
		return err
	}
	return httpx.OK(c, r)
}
