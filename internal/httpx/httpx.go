// Package httpx holds the JSON envelope shared by every handler and the
// Fiber error handler that renders failures into it.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/playmate/playmate/internal/apperr"
)

// RequestIDKey is the Locals key holding the request id.
const RequestIDKey = "X-Request-ID"

// Envelope is the uniform response body. On failure Code equals the HTTP
// status and Data is omitted.
type Envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// OK writes a 200 envelope.
func OK(c *fiber.Ctx, data any) error {
	return c.Status(http.StatusOK).JSON(Envelope{Code: http.StatusOK, Msg: "success", Data: data})
}

// Created writes a 201 envelope.
func Created(c *fiber.Ctx, data any) error {
	return c.Status(http.StatusCreated).JSON(Envelope{Code: http.StatusCreated, Msg: "success", Data: data})
}

// ParamID parses a positive int64 route parameter.
func ParamID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.E(apperr.KindValidation, "invalid "+name)
	}
	return id, nil
}

// Bind parses the request body into dst.
func Bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid request body", err)
	}
	return nil
}

// ErrorHandler renders any error returned by a handler or middleware.
// Transient store failures are logged at WARN with transient=true so they
// can be told apart from defects, which are logged at ERROR.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(Envelope{Code: fe.Code, Msg: fe.Message})
		}

		kind := apperr.KindOf(err)
		status := apperr.Status(kind)
		requestID, _ := c.Locals(RequestIDKey).(string)
		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("request_id", requestID),
			slog.Any("error", err),
		}
		switch kind {
		case apperr.KindTransient:
			logger.Warn("transient failure", append(attrs, slog.Bool("transient", true))...)
		case apperr.KindInternal:
			logger.Error("internal failure", attrs...)
		}

		return c.Status(status).JSON(Envelope{Code: status, Msg: apperr.Message(err)})
	}
}
