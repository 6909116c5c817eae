package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/playmate/playmate/internal/auth"
	"github.com/playmate/playmate/internal/httpx"
)

// Audit emits one structured log line per request. Handler errors are
// rendered through the app's error handler first so the logged status is
// the one the client receives.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				return herr
			}
		}

		status := c.Response().StatusCode()
		requestID, _ := c.Locals(httpx.RequestIDKey).(string)

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if p, perr := auth.FromCtx(c); perr == nil {
			attrs = append(attrs, slog.Int64("user_id", p.ID))
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}

		logger.Info("request completed", attrs...)
		return nil
	}
}
