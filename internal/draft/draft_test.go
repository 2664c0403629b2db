package draft

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukerupert/handover"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCache(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir, "RN123")
	require.NoError(t, err)

	got, err := c.Load()
	require.NoError(t, err)
	assert.Nil(t, got)

	saved := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	snap := &handover.DraftSnapshot{
		Inspection: &handover.Inspection{ID: 7, OrderNumber: "RN123", TotalItems: 3},
		SavedAt:    saved,
		Unsaved:    true,
	}
	require.NoError(t, c.Save(snap))

	got, err = c.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.Inspection.ID)
	assert.True(t, got.Unsaved)
	assert.True(t, saved.Equal(got.SavedAt))

	// Last write wins.
	snap.Unsaved = false
	snap.CompletionPending = true
	require.NoError(t, c.Save(snap))
	got, err = c.Load()
	require.NoError(t, err)
	assert.False(t, got.Unsaved)
	assert.True(t, got.CompletionPending)

	require.NoError(t, c.Clear())
	got, err = c.Load()
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Clear())
}

func TestFileCache_ScopedPerOrder(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileCache(dir, "RN1")
	require.NoError(t, err)
	b, err := NewFileCache(dir, "RN2")
	require.NoError(t, err)

	require.NoError(t, a.Save(&handover.DraftSnapshot{Inspection: &handover.Inspection{OrderNumber: "RN1"}}))

	got, err := b.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNewFileCache(t *testing.T) {
	dir := t.TempDir()

	c, err := NewFileCache(dir, "../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(c.Path()))

	_, err = NewFileCache(dir, "")
	assert.Equal(t, handover.EINVALID, handover.ErrorCode(err))
}

func TestFileCache_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir, "RN9")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(c.Path(), []byte("{not json"), 0o600))

	_, err = c.Load()
	assert.ErrorContains(t, err, "decoding draft")
}
