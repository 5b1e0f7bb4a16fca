package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"assignly/internal/http/middleware"
	"assignly/internal/ledger"
	"assignly/internal/model"
	"assignly/internal/repository"
	"assignly/internal/service"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string               `json:"code"`
	Message string               `json:"message"`
	Details []service.FieldError `json:"details,omitempty"`
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_LIMIT", "ORDER_NOT_FOUND")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorPayload{
		RequestID: middleware.RequestIDFrom(c),
		Error:     errorEnvelope{Code: code, Message: message},
	})
}

// writeServiceError maps a service error to its HTTP response. Unknown
// errors are returned so that the request logger records them and
// ErrorHandler renders a generic 500.
func writeServiceError(c *fiber.Ctx, err error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(errorPayload{
			RequestID: middleware.RequestIDFrom(c),
			Error: errorEnvelope{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Details: verr.Fields,
			},
		})
	case errors.Is(err, service.ErrForbidden):
		return writeError(c, fiber.StatusForbidden, "FORBIDDEN", "not allowed for this account")
	case errors.Is(err, repository.ErrAccountNotFound):
		return writeError(c, fiber.StatusNotFound, "ACCOUNT_NOT_FOUND", "account not found")
	case errors.Is(err, repository.ErrOrderNotFound):
		return writeError(c, fiber.StatusNotFound, "ORDER_NOT_FOUND", "order not found")
	case errors.Is(err, ledger.ErrAccountInactive):
		return writeError(c, fiber.StatusForbidden, "ACCOUNT_INACTIVE", "account is inactive")
	case errors.Is(err, ledger.ErrInsufficientQuota):
		return writeError(c, fiber.StatusConflict, "INSUFFICIENT_QUOTA", "not enough pages left in quota")
	case errors.Is(err, model.ErrInvalidTransition):
		return writeError(c, fiber.StatusConflict, "INVALID_TRANSITION", "order status cannot move backwards")
	case errors.Is(err, service.ErrUploadFailed):
		return writeError(c, fiber.StatusBadGateway, "UPLOAD_FAILED", "file upload failed, please retry")
	case errors.Is(err, repository.ErrStorageUnavailable):
		return writeError(c, fiber.StatusServiceUnavailable, "STORE_UNAVAILABLE", "storage temporarily unavailable, please retry")
	default:
		return err
	}
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusUnauthorized:
			return writeError(c, status, "UNAUTHORIZED", fe.Message)
		case fiber.StatusForbidden:
			return writeError(c, status, "FORBIDDEN", "not allowed for this account")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "PAYLOAD_TOO_LARGE", "request body too large")
		case fiber.StatusServiceUnavailable:
			return writeError(c, status, "STORE_UNAVAILABLE", "storage temporarily unavailable, please retry")
		default:
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
	}
}
