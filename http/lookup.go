package http

import (
	"github.com/dukerupert/handover"
	"github.com/dukerupert/handover/internal/validation"
	"github.com/labstack/echo/v4"
)

// handleLookupOrder returns the order details used to open an inspection.
// With the fallback lookup installed this never fails for a valid number.
func (s *Server) handleLookupOrder(c echo.Context) error {
	orderNumber, err := requireParam(c, "orderNumber")
	if err != nil {
		return err
	}
	if !validation.ValidOrderNumber(orderNumber) {
		return handover.Invalid("Invalid order number")
	}
	if s.orders == nil {
		return handover.Unavailable("Order lookup is not configured", nil)
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	order, err := s.orders.LookupOrder(ctx, orderNumber)
	if err != nil {
		return err
	}
	return RespondOK(c, order)
}

func (s *Server) handleGetCatalog(c echo.Context) error {
	if s.catalog == nil {
		return handover.NotFound("No checklist catalog configured")
	}
	return RespondOK(c, s.catalog)
}
