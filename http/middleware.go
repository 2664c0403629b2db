package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/handover"
	appmw "github.com/dukerupert/handover/internal/middleware"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	// DefaultTimeout bounds JSON handlers.
	DefaultTimeout = 5 * time.Second

	// LongTimeout bounds media upload, phase signing, and report completion.
	LongTimeout = 2 * time.Minute

	// maxBodySize leaves room for multipart framing around a MaxMediaSize file.
	maxBodySize = "60M"
)

// registerMiddleware sets up all middleware for the server.
func (s *Server) registerMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(appmw.RequestIDMiddleware(s.logger))
	s.echo.Use(s.requestLoggerMiddleware())
	s.echo.Use(appmw.MetricsMiddleware())
	s.echo.Use(s.rateLimiter.Middleware())
	s.echo.Use(middleware.BodyLimit(maxBodySize))

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderXRequestID},
	}))

	s.echo.HTTPErrorHandler = s.httpErrorHandler
}

// requestLoggerMiddleware logs each request with the request-scoped logger.
func (s *Server) requestLoggerMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			logger := s.getRequestLogger(c).With(
				slog.String("method", c.Request().Method),
				slog.String("path", c.Path()))
			c.Set("logger", logger)

			err := next(c)
			if err != nil {
				// Write the response now so the logged status is final.
				c.Error(err)
			}

			status := c.Response().Status
			attrs := []any{
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
			}

			switch {
			case status >= 500:
				logger.Error("request completed with server error", attrs...)
			case status >= 400:
				logger.Warn("request completed with client error", attrs...)
			default:
				logger.Info("request completed", attrs...)
			}

			return nil
		}
	}
}

// httpErrorHandler writes domain errors and echo HTTP errors as JSON.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	if he, ok := err.(*echo.HTTPError); ok {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		err = &handover.Error{Code: statusErrorCode(he.Code), Message: msg, Err: he.Internal}
	}

	_ = HandleError(c, s.getRequestLogger(c), err)
}

// getRequestLogger retrieves the request-scoped logger from context.
func (s *Server) getRequestLogger(c echo.Context) *slog.Logger {
	if logger, ok := c.Get("logger").(*slog.Logger); ok {
		return logger
	}
	return s.logger
}
