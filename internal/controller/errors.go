package controller

import (
	"errors"
	"net/http"
	"strings"

	"form-analytics-service/internal/apperr"
	"form-analytics-service/internal/logger"

	"github.com/gofiber/fiber/v2"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ErrorHandler renders every handler error as {"error": {...}}. Upstream and
// unknown errors are logged and reported without detail.
func ErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := http.StatusInternalServerError
		body := errorBody{Code: "internal_error", Message: "internal server error"}

		var fe *fiber.Error
		if appErr, ok := apperr.As(err); ok {
			status = apperr.StatusCode(appErr)
			if appErr.Kind == apperr.KindUpstream {
				log.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
			} else {
				body = errorBody{Code: appErr.Code, Message: appErr.Message, Field: appErr.Field}
			}
		} else if errors.As(err, &fe) {
			status = fe.Code
			body = errorBody{Code: statusCode(fe.Code), Message: fe.Message}
		} else {
			log.Error("unhandled error", "method", c.Method(), "path", c.Path(), "error", err)
		}

		return c.Status(status).JSON(fiber.Map{"error": body})
	}
}

// statusCode turns an HTTP status into a snake_case error code.
func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
