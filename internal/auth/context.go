package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/playmate/playmate/internal/apperr"
)

const principalKey = "principal"

// WithPrincipal stores p on the request.
func WithPrincipal(c *fiber.Ctx, p Principal) {
	c.Locals(principalKey, p)
}

// FromCtx returns the caller stored by the JWT middleware.
func FromCtx(c *fiber.Ctx) (Principal, error) {
	p, ok := c.Locals(principalKey).(Principal)
	if !ok {
		return Principal{}, apperr.E(apperr.KindUnauthorized, "unauthorized")
	}
	return p, nil
}
