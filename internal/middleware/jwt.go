package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/playmate/playmate/internal/apperr"
	"github.com/playmate/playmate/internal/auth"
)

// JWTAuth validates bearer access tokens and stores the caller's principal
// in Locals.
func JWTAuth(tokens *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return apperr.E(apperr.KindUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		principal, err := tokens.Verify(tokenStr)
		if err != nil {
			return apperr.Wrap(apperr.KindUnauthorized, "invalid token", err)
		}

		auth.WithPrincipal(c, principal)
		return c.Next()
	}
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := auth.FromCtx(c)
		if err != nil {
			return err
		}
		if !p.IsAdmin() {
			return apperr.E(apperr.KindForbidden, "admin only")
		}
		return c.Next()
	}
}
