package handover

import "time"

// DraftSnapshot is a local copy of an in-progress inspection.
type DraftSnapshot struct {
	Inspection *Inspection `json:"inspection"`
	SavedAt    time.Time   `json:"savedAt"`

	// Unsaved is true when the snapshot holds changes the server has not
	// acknowledged.
	Unsaved bool `json:"unsaved"`

	// CompletionPending is true when the final phase was signed locally but
	// report completion has not succeeded.
	CompletionPending bool `json:"completionPending,omitempty"`
}

// DraftCache is a best-effort local store for one inspection session.
// Writes are last-write-wins with no conflict detection.
type DraftCache interface {
	Save(snapshot *DraftSnapshot) error

	// Load returns nil when no snapshot exists.
	Load() (*DraftSnapshot, error)

	Clear() error
}
