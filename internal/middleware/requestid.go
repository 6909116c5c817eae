package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/playmate/playmate/internal/httpx"
)

const maxRequestIDLen = 64

// RequestID propagates the caller's X-Request-ID or mints a uuid. Incoming
// ids that are too long or contain anything but [A-Za-z0-9._-] are replaced
// so they can be logged verbatim.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(httpx.RequestIDKey)
		if !validRequestID(reqID) {
			reqID = uuid.NewString()
		}
		c.Set(httpx.RequestIDKey, reqID)
		c.Locals(httpx.RequestIDKey, reqID)
		return c.Next()
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
