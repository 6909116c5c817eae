package wallet

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/playmate/playmate/internal/apperr"
	"github.com/playmate/playmate/internal/auth"
	"github.com/playmate/playmate/internal/httpx"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type depositRequest struct {
	UserID int64           `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

// Flow returns the caller's wallet history.
func (h *Handler) Flow(c *fiber.Ctx) error {
	p, err := auth.FromCtx(c)
	if err != nil {
		return err
	}
	items, err := h.service.Flow(c.UserContext(), p.ID)
	if err != nil {
		return err
	}
	return httpx.OK(c, items)
}

// Balance returns the caller's balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	p, err := auth.FromCtx(c)
	if err != nil {
		return err
	}
	balance, err := h.service.Balance(c.UserContext(), p.ID)
	if err != nil {
		return err
	}
	return httpx.OK(c, balance)
}

// Deposit credits a user's balance. Admin only.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	p, err := auth.FromCtx(c)
	if err != nil {
		return err
	}
	var req depositRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	if req.UserID <= 0 {
		return apperr.E(apperr.KindValidation, "user_id is required")
	}
	balance, err := h.service.Deposit(c.UserContext(), p, req.UserID, req.Amount)
	if err != nil {
		return err
	}
	return httpx.OK(c, balance)
}
