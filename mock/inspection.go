package mock

import (
	"context"
	"time"

	"github.com/dukerupert/handover"
)

// Compile-time interface check
var _ handover.InspectionService = (*InspectionService)(nil)

// InspectionService is a mock implementation of handover.InspectionService.
type InspectionService struct {
	FindInspectionByIDFn          func(ctx context.Context, id int64) (*handover.Inspection, error)
	FindInspectionByOrderNumberFn func(ctx context.Context, orderNumber string) (*handover.Inspection, error)
	FindInspectionsFn             func(ctx context.Context, filter handover.InspectionFilter) ([]*handover.Inspection, int, error)
	CreateInspectionFn            func(ctx context.Context, inspection *handover.Inspection) error
	UpdateInspectionFn            func(ctx context.Context, id int64, upd handover.InspectionUpdate) (*handover.Inspection, error)
	DeleteInspectionFn            func(ctx context.Context, id int64) error
}

func (s *InspectionService) FindInspectionByID(ctx context.Context, id int64) (*handover.Inspection, error) {
	if s.FindInspectionByIDFn != nil {
		return s.FindInspectionByIDFn(ctx, id)
	}
	return nil, handover.NotFound("Inspection not found")
}

func (s *InspectionService) FindInspectionByOrderNumber(ctx context.Context, orderNumber string) (*handover.Inspection, error) {
	if s.FindInspectionByOrderNumberFn != nil {
		return s.FindInspectionByOrderNumberFn(ctx, orderNumber)
	}
	return nil, handover.NotFound("No inspection for order %s", orderNumber)
}

func (s *InspectionService) FindInspections(ctx context.Context, filter handover.InspectionFilter) ([]*handover.Inspection, int, error) {
	if s.FindInspectionsFn != nil {
		return s.FindInspectionsFn(ctx, filter)
	}
	return []*handover.Inspection{}, 0, nil
}

func (s *InspectionService) CreateInspection(ctx context.Context, inspection *handover.Inspection) error {
	if s.CreateInspectionFn != nil {
		return s.CreateInspectionFn(ctx, inspection)
	}
	inspection.ID = 1
	inspection.CreatedAt = time.Now()
	inspection.UpdatedAt = time.Now()
	return nil
}

func (s *InspectionService) UpdateInspection(ctx context.Context, id int64, upd handover.InspectionUpdate) (*handover.Inspection, error) {
	if s.UpdateInspectionFn != nil {
		return s.UpdateInspectionFn(ctx, id, upd)
	}
	return nil, handover.NotFound("Inspection not found")
}

func (s *InspectionService) DeleteInspection(ctx context.Context, id int64) error {
	if s.DeleteInspectionFn != nil {
		return s.DeleteInspectionFn(ctx, id)
	}
	return nil
}
