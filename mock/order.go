package mock

import (
	"context"

	"github.com/dukerupert/handover"
)

// Compile-time interface check
var _ handover.OrderLookup = (*OrderLookup)(nil)

// OrderLookup is a mock implementation of handover.OrderLookup.
type OrderLookup struct {
	LookupOrderFn func(ctx context.Context, orderNumber string) (*handover.Order, error)
}

func (l *OrderLookup) LookupOrder(ctx context.Context, orderNumber string) (*handover.Order, error) {
	if l.LookupOrderFn != nil {
		return l.LookupOrderFn(ctx, orderNumber)
	}
	return nil, handover.NotFound("Order %s not found", orderNumber)
}
