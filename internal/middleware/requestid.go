package middleware

import (
	"log/slog"
	"regexp"

	"github.com/dukerupert/handover"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestIDMiddleware tags each request with an ID and a request-scoped
// logger. A well-formed X-Request-ID sent by the client is kept so offline
// replays from a tablet can be traced end to end.
//
// Usage in server.go:
//
//	e.Use(middleware.RequestIDMiddleware(logger))
func RequestIDMiddleware(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(echo.HeaderXRequestID)
			if !validRequestID.MatchString(requestID) {
				requestID = uuid.New().String()
			}

			req := c.Request()
			c.SetRequest(req.WithContext(handover.NewContextWithRequestID(req.Context(), requestID)))
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)
			c.Set("request_id", requestID)
			c.Set("logger", logger.With(slog.String("request_id", requestID)))

			return next(c)
		}
	}
}

// GetRequestID retrieves the request ID from the Echo context.
func GetRequestID(c echo.Context) string {
	requestID, _ := c.Get("request_id").(string)
	return requestID
}

// GetRequestLogger retrieves the request-scoped logger, falling back to
// slog.Default.
//
// Usage in handlers:
//
//	logger := middleware.GetRequestLogger(c)
//	logger.Info("phase signed", slog.Int64("inspection_id", id))
func GetRequestLogger(c echo.Context) *slog.Logger {
	logger, ok := c.Get("logger").(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return logger
}
