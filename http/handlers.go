package http

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukerupert/handover"
	"github.com/dukerupert/handover/internal/audit"
	"github.com/labstack/echo/v4"
)

// withTimeout creates a context with the default handler timeout.
func withTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), DefaultTimeout)
}

// withLongTimeout is withTimeout for uploads and report completion.
func withLongTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), LongTimeout)
}

// requireParam extracts a required route parameter, returning error if empty.
func requireParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)
	if value == "" {
		return "", handover.Invalid("%s is required", name)
	}
	return value, nil
}

// requireIDParam extracts and parses a required numeric route parameter.
func requireIDParam(c echo.Context, name string) (int64, error) {
	value, err := requireParam(c, name)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, handover.Invalid("Invalid ID format")
	}
	return id, nil
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(c echo.Context, name string, def int) (int, error) {
	value := c.QueryParam(name)
	if value == "" {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, handover.Invalid("%s must be a non-negative integer", name)
	}
	return n, nil
}

// bind binds the request body to a struct and validates it.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return handover.Invalid("Invalid request body")
	}
	if err := c.Validate(v); err != nil {
		return err
	}
	return nil
}

// log returns the request-scoped logger.
func (s *Server) log(c echo.Context) *slog.Logger {
	return s.getRequestLogger(c)
}

// Health handlers

func (s *Server) handleHealthCheck(c echo.Context) error {
	return RespondOK(c, map[string]string{"status": "ok"})
}

func (s *Server) handleLivenessCheck(c echo.Context) error {
	return RespondOK(c, map[string]string{"status": "alive"})
}

func (s *Server) handleReadinessCheck(c echo.Context) error {
	if s.db != nil {
		ctx, cancel := withTimeout(c)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			return handover.Unavailable("Database is not reachable", err)
		}
	}
	return RespondOK(c, map[string]string{"status": "ready"})
}

// record adds an entry to the inspection history when auditing is enabled.
func (s *Server) record(c echo.Context, inspectionID int64, action string, details map[string]any) {
	if s.auditLog == nil {
		return
	}
	s.auditLog.Record(c.Request().Context(), audit.FromRequest(c, inspectionID, action, details))
}
