package mock

import (
	"sync"

	"github.com/dukerupert/handover"
)

// Compile-time interface check
var _ handover.DraftCache = (*DraftCache)(nil)

// DraftCache is an in-memory handover.DraftCache. The function fields
// override the default behaviour.
type DraftCache struct {
	SaveFn  func(snapshot *handover.DraftSnapshot) error
	LoadFn  func() (*handover.DraftSnapshot, error)
	ClearFn func() error

	mu       sync.Mutex
	snapshot *handover.DraftSnapshot
	Saves    int
}

func (c *DraftCache) Save(snapshot *handover.DraftSnapshot) error {
	if c.SaveFn != nil {
		return c.SaveFn(snapshot)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := *snapshot
	if s.Inspection != nil {
		s.Inspection = s.Inspection.Clone()
	}
	c.snapshot = &s
	c.Saves++
	return nil
}

func (c *DraftCache) Load() (*handover.DraftSnapshot, error) {
	if c.LoadFn != nil {
		return c.LoadFn()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return nil, nil
	}
	s := *c.snapshot
	if s.Inspection != nil {
		s.Inspection = s.Inspection.Clone()
	}
	return &s, nil
}

func (c *DraftCache) Clear() error {
	if c.ClearFn != nil {
		return c.ClearFn()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
	return nil
}
