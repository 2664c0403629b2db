// Package draft keeps a local snapshot of an in-progress inspection so work
// survives a restart of the client.
package draft

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/dukerupert/handover"
	"github.com/gofrs/flock"
)

// Compile-time interface check
var _ handover.DraftCache = (*FileCache)(nil)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// FileCache stores one order's snapshot as a JSON file.
//
// Purpose:
// - Recover unsaved item changes after the CLI or app is restarted
// - Remember that a signed inspection still needs report completion
//
// Writes are last-write-wins. A sidecar lock file serializes writers from
// separate processes working on the same order.
type FileCache struct {
	path string
	lock *flock.Flock
}

// NewFileCache returns the cache for orderNumber under dir, creating dir if
// needed.
func NewFileCache(dir, orderNumber string) (*FileCache, error) {
	if orderNumber == "" {
		return nil, handover.Invalid("Order number is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating draft directory: %w", err)
	}

	name := "draft_" + unsafeChars.ReplaceAllString(orderNumber, "_")
	path := filepath.Join(dir, name+".json")
	return &FileCache{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Path returns the snapshot file location.
func (c *FileCache) Path() string {
	return c.path
}

// Save replaces the snapshot.
func (c *FileCache) Save(snapshot *handover.DraftSnapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding draft: %w", err)
	}

	if err := c.lock.Lock(); err != nil {
		return fmt.Errorf("locking draft: %w", err)
	}
	defer c.lock.Unlock()

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing draft: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replacing draft: %w", err)
	}
	return nil
}

// Load returns the snapshot, or nil if none has been saved.
func (c *FileCache) Load() (*handover.DraftSnapshot, error) {
	if err := c.lock.RLock(); err != nil {
		return nil, fmt.Errorf("locking draft: %w", err)
	}
	defer c.lock.Unlock()

	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading draft: %w", err)
	}

	var snapshot handover.DraftSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decoding draft: %w", err)
	}
	return &snapshot, nil
}

// Clear removes the snapshot. Clearing a missing snapshot is not an error.
func (c *FileCache) Clear() error {
	if err := c.lock.Lock(); err != nil {
		return fmt.Errorf("locking draft: %w", err)
	}
	defer c.lock.Unlock()

	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing draft: %w", err)
	}
	return nil
}
