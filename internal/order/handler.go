package order

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/playmate/playmate/internal/apperr"
	"github.com/playmate/playmate/internal/auth"
	"github.com/playmate/playmate/internal/httpx"
)

// Handler exposes order endpoints. Every route requires a principal.
type Handler struct {
	service *Service
}

// NewHandler builds an order HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	CompanionID int64           `json:"companion_id"`
	GameID      int64           `json:"game_id"`
	Amount      decimal.Decimal `json:"amount"`
	Duration    decimal.Decimal `json:"duration_hours"`
	Remark      string          `json:"remark"`
}

type evaluateRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

// Create books the companion for the calling client.
func (h *Handler) Create(c *fiber.Ctx) error {
	p, err := auth.FromCtx(c)
	if err != nil {
		return err
	}
	var req createRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	if req.CompanionID <= 0 || req.GameID <= 0 {
		return apperr.E(apperr.KindValidation, "companion_id and game_id are required")
	}
	o, err := h.service.Create(c.UserContext(), CreateInput{
		ClientID:      p.ID,
		CompanionID:   req.CompanionID,
		GameID:        req.GameID,
		Amount:        req.Amount,
		DurationHours: req.Duration,
		Remark:        req.Remark,
	})
	if err != nil {
		return err
	}
	return httpx.Created(c, o)
}

// Mine lists the caller's orders; ?role=companion lists orders addressed to them.
func (h *Handler) Mine(c *fiber.Ctx) error {
	p, err := auth.FromCtx(c)
	if err != nil {
		return err
	}
	var asCompanion bool
	switch c.Query("role", "client") {
	case "client":
	case "companion":
		asCompanion = true
	default:
		return apperr.E(apperr.KindValidation, "role must be client or companion")
	}
	orders, err := h.service.ListMine(c.UserContext(), p.ID, asCompanion)
	if err != nil {
		return err
	}
	return httpx.OK(c, orders)
}

// All lists every order, optionally filtered by ?keyword=. Admin only.
func (h *Handler) All(c *fiber.Ctx) error {
	p, err := auth.FromCtx(c)
	if err != nil {
		return err
	}
	orders, err := h.service.ListAll(c.UserContext(), p, c.Query("keyword"))
	if err != nil {
		return err
	}
	return httpx.OK(c, orders)
}

// Accept moves a pending order addressed to the caller to accepted.
func (h *Handler) Accept(c *fiber.Ctx) error {
	return h.act(c, h.service.Accept)
}

// Complete settles the caller's accepted order.
func (h *Handler) Complete(c *fiber.Ctx) error {
	return h.act(c, h.service.Complete)
}

// Cancel withdraws a pending order on behalf of either party.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	return h.act(c, h.service.Cancel)
}

// Evaluate records the caller's rating for a completed order.
func (h *Handler) Evaluate(c *fiber.Ctx) error {
	p, err := auth.FromCtx(c)
	if err != nil {
		return err
	}
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	var req evaluateRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	o, err := h.service.Evaluate(c.UserContext(), id, p.ID, req.Rating, req.Review)
	if err != nil {
		return err
	}
	return httpx.OK(c, o)
}

func (h *Handler) act(c *fiber.Ctx, fn func(ctx context.Context, orderID, actorID int64) (Order, error)) error {
	p, err := auth.FromCtx(c)
	if err != nil {
		return err
	}
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return err
	}
	o, err := fn(c.UserContext(), id, p.ID)
	if err != nil {
		return err
	}
	return httpx.OK(c, o)
}
