package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/handover"
)

// Fallback wraps a lookup so that it never fails. Any error, including a
// missing client, yields the placeholder order.
type Fallback struct {
	next   handover.OrderLookup
	logger *slog.Logger
	now    func() time.Time
}

// WithFallback wraps next. A nil next always returns the placeholder.
func WithFallback(next handover.OrderLookup, logger *slog.Logger) *Fallback {
	return &Fallback{next: next, logger: logger, now: time.Now}
}

// LookupOrder returns the real order or the placeholder. The error is
// always nil.
func (f *Fallback) LookupOrder(ctx context.Context, orderNumber string) (*handover.Order, error) {
	if f.next != nil {
		order, err := f.next.LookupOrder(ctx, orderNumber)
		if err == nil && order != nil {
			return order, nil
		}
		if err != nil {
			f.logger.Warn("order lookup failed, using placeholder",
				slog.String("order_number", orderNumber),
				slog.String("error", err.Error()))
		}
	}
	return handover.PlaceholderOrder(orderNumber, f.now()), nil
}

// New builds the production lookup chain: fleet client, cache, fallback.
// Without a configured API base URL only placeholders are returned.
func New(cfg handover.OrderConfig, logger *slog.Logger) handover.OrderLookup {
	if cfg.BaseURL == "" {
		logger.Warn("order API not configured, placeholder orders will be used")
		return WithFallback(nil, logger)
	}
	return WithFallback(NewCached(NewFleetClient(cfg), cfg.CacheTTL), logger)
}
