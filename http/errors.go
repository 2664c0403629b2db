package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/handover"
	"github.com/labstack/echo/v4"
)

// errorStatusCode maps domain error codes to HTTP status codes.
func errorStatusCode(code string) int {
	switch code {
	case handover.ENOTFOUND:
		return http.StatusNotFound
	case handover.EINVALID:
		return http.StatusBadRequest
	case handover.EPERMISSION:
		return http.StatusForbidden
	case handover.ECONFLICT:
		return http.StatusConflict
	case handover.ERATELIMIT:
		return http.StatusTooManyRequests
	case handover.EFILETOOLARGE:
		return http.StatusRequestEntityTooLarge
	case handover.EINVALIDFILETYPE:
		return http.StatusUnsupportedMediaType
	case handover.EPHOTOLIMIT, handover.EVIDEOLIMIT, handover.EVIDEOTOOLONG:
		return http.StatusUnprocessableEntity
	case handover.EUNAVAILABLE:
		return http.StatusServiceUnavailable
	case handover.ETIMEOUT:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// statusErrorCode maps echo's own HTTP errors back to domain codes.
func statusErrorCode(status int) string {
	switch status {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return handover.ENOTFOUND
	case http.StatusTooManyRequests:
		return handover.ERATELIMIT
	case http.StatusRequestEntityTooLarge:
		return handover.EFILETOOLARGE
	case http.StatusUnsupportedMediaType:
		return handover.EINVALIDFILETYPE
	case http.StatusServiceUnavailable:
		return handover.EUNAVAILABLE
	case http.StatusGatewayTimeout:
		return handover.ETIMEOUT
	}
	if status >= 400 && status < 500 {
		return handover.EINVALID
	}
	return handover.EINTERNAL
}

// ErrorResponse represents the JSON error response format.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// HandleError converts domain errors to appropriate HTTP responses.
// It logs server-side failures and returns user-safe messages.
func HandleError(c echo.Context, logger *slog.Logger, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && handover.ErrorCode(err) == handover.EINTERNAL {
		err = handover.WrapError(handover.ETIMEOUT, "The operation timed out", err)
	}

	code := handover.ErrorCode(err)
	message := handover.ErrorMessage(err)
	fields := handover.ErrorFields(err)
	status := errorStatusCode(code)

	switch code {
	case handover.EINTERNAL:
		logger.Error("internal error",
			slog.String("error", err.Error()),
			slog.String("path", c.Path()),
			slog.String("method", c.Request().Method))
		// Don't expose internal error details to clients
		message = "An internal error occurred."
	case handover.EUNAVAILABLE, handover.ETIMEOUT:
		logger.Warn("upstream failure",
			slog.String("error", err.Error()),
			slog.String("path", c.Path()))
	}

	return c.JSON(status, ErrorResponse{
		Error:   code,
		Message: message,
		Fields:  fields,
	})
}
