package http

import (
	"log/slog"
	"time"

	"github.com/dukerupert/handover"
	"github.com/dukerupert/handover/internal/audit"
	"github.com/dukerupert/handover/internal/validation"
	"github.com/labstack/echo/v4"
)

const maxPageSize = 100

// handleCreateInspection opens an inspection for an order. Order details
// missing from the request are looked up, and an empty checklist is seeded
// from the catalog.
func (s *Server) handleCreateInspection(c echo.Context) error {
	var req validation.CreateInspectionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	order := req.Order()
	if req.VIN == "" && s.orders != nil {
		looked, err := s.orders.LookupOrder(ctx, req.OrderNumber)
		if err != nil {
			return err
		}
		order = looked
	}
	if order.DeliveryDate.IsZero() {
		order.DeliveryDate = time.Now().UTC()
	}

	sections := req.Sections
	if len(sections) == 0 {
		if s.catalog == nil {
			return handover.Invalid("sections are required")
		}
		sections = s.catalog.Sections()
	}

	inspection := handover.NewInspection(order, sections)
	inspection.RepresentativeName = validation.SanitizeInput(req.RepresentativeName)
	if req.Language != "" {
		inspection.Language = req.Language
	}

	if err := s.inspectionService.CreateInspection(ctx, inspection); err != nil {
		return err
	}

	s.log(c).Info("inspection created",
		slog.Int64("inspection_id", inspection.ID),
		slog.String("order_number", inspection.OrderNumber),
		slog.Bool("placeholder_order", order.Placeholder))
	s.record(c, inspection.ID, audit.ActionCreated, map[string]any{
		"orderNumber": inspection.OrderNumber,
		"placeholder": order.Placeholder,
	})

	return RespondCreated(c, inspection)
}

// handleListInspections lists inspections, newest first.
func (s *Server) handleListInspections(c echo.Context) error {
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		return err
	}
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return err
	}

	filter := handover.InspectionFilter{Limit: limit, Offset: offset}
	if v := c.QueryParam("status"); v != "" {
		status, err := parseStatus(v)
		if err != nil {
			return err
		}
		filter.Status = &status
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	inspections, total, err := s.inspectionService.FindInspections(ctx, filter)
	if err != nil {
		return err
	}

	return RespondList(c, inspections, total, offset, limit)
}

func parseStatus(s string) (handover.Status, error) {
	switch st := handover.Status(s); st {
	case handover.StatusOnDeliveryPending,
		handover.StatusOnDeliveryCompleted,
		handover.StatusTestDrivePending,
		handover.StatusTestDriveCompleted,
		handover.StatusFinalCompleted:
		return st, nil
	default:
		return "", handover.Invalid("Unknown status %q", s)
	}
}

func (s *Server) handleGetInspection(c echo.Context) error {
	id, err := requireIDParam(c, "id")
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	inspection, err := s.inspectionService.FindInspectionByID(ctx, id)
	if err != nil {
		return err
	}
	return RespondOK(c, inspection)
}

func (s *Server) handleGetInspectionByOrder(c echo.Context) error {
	orderNumber, err := requireParam(c, "orderNumber")
	if err != nil {
		return err
	}
	if !validation.ValidOrderNumber(orderNumber) {
		return handover.Invalid("Invalid order number")
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	inspection, err := s.inspectionService.FindInspectionByOrderNumber(ctx, orderNumber)
	if err != nil {
		return err
	}
	return RespondOK(c, inspection)
}

// handleUpdateInspection applies a partial update of the inspector-editable
// content. Phase records and status only move through the phase endpoint.
func (s *Server) handleUpdateInspection(c echo.Context) error {
	id, err := requireIDParam(c, "id")
	if err != nil {
		return err
	}

	var req validation.UpdateInspectionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	current, err := s.inspectionService.FindInspectionByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status.IsTerminal() {
		return handover.Conflict("Inspection %d is already completed", id)
	}

	upd := handover.InspectionUpdate{
		Sections:            req.Sections,
		TestDriveKilometers: req.TestDriveKilometers,
		CustomerEmail:       req.CustomerEmail,
		Language:            req.Language,
	}
	if req.RepresentativeName != nil {
		name := validation.SanitizeInput(*req.RepresentativeName)
		upd.RepresentativeName = &name
	}

	inspection, err := s.inspectionService.UpdateInspection(ctx, id, upd)
	if err != nil {
		return err
	}
	s.record(c, id, audit.ActionUpdated, map[string]any{
		"completedItems": inspection.CompletedItems,
		"failedItems":    inspection.FailedItems,
	})
	return RespondOK(c, inspection)
}

// handleUpdateItem patches the status or notes of one checklist item.
func (s *Server) handleUpdateItem(c echo.Context) error {
	id, err := requireIDParam(c, "id")
	if err != nil {
		return err
	}
	itemID, err := requireParam(c, "itemId")
	if err != nil {
		return err
	}

	var req validation.ItemUpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	var patch handover.ItemPatch
	if req.Status != nil {
		status := handover.ItemStatus(*req.Status)
		patch.Status = &status
	}
	if req.Notes != nil {
		notes := validation.SanitizeInput(*req.Notes)
		patch.Notes = &notes
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	inspection, err := s.inspectionService.FindInspectionByID(ctx, id)
	if err != nil {
		return err
	}
	if inspection.Status.IsTerminal() {
		return handover.Conflict("Inspection %d is already completed", id)
	}
	if err := inspection.UpdateItemByID(itemID, patch); err != nil {
		return err
	}

	updated, err := s.inspectionService.UpdateInspection(ctx, id, handover.InspectionUpdate{
		Sections: inspection.Sections,
	})
	if err != nil {
		return err
	}

	item, _ := updated.Item(itemID)
	s.log(c).Debug("item updated",
		slog.Int64("inspection_id", id),
		slog.String("item_id", itemID),
		slog.String("status", string(item.Status)))
	s.record(c, id, audit.ActionItemUpdated, map[string]any{
		"itemId": itemID,
		"status": string(item.Status),
	})

	return RespondOK(c, updated)
}
