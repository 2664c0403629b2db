package orders

import (
	"context"
	"time"

	"github.com/dukerupert/handover"
	"github.com/patrickmn/go-cache"
)

// Cached memoizes successful order lookups.
//
// Purpose:
// - Avoid a round trip to the order API every time an inspection is opened
// - Keep failures uncached so a recovered API is used on the next call
//
// Orders rarely change between the start of a delivery and its end, so a TTL
// of minutes is enough. Entries live in process memory only.
type Cached struct {
	next  handover.OrderLookup
	cache *cache.Cache
}

// NewCached wraps next with a cache. A zero ttl uses 15 minutes.
func NewCached(next handover.OrderLookup, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Cached{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

// LookupOrder returns a copy of the cached order or fetches it.
func (c *Cached) LookupOrder(ctx context.Context, orderNumber string) (*handover.Order, error) {
	if cached, found := c.cache.Get(orderNumber); found {
		order := cached.(handover.Order)
		return &order, nil
	}

	order, err := c.next.LookupOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if !order.Placeholder {
		c.cache.Set(orderNumber, *order, cache.DefaultExpiration)
	}
	return order, nil
}

// Forget drops an order from the cache.
func (c *Cached) Forget(orderNumber string) {
	c.cache.Delete(orderNumber)
}
