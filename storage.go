package handover

import (
	"context"
	"time"
)

// FileStorage defines operations for remote object storage. It holds both
// media evidence and generated reports.
type FileStorage interface {
	// Upload stores the object and makes it link-shareable.
	// Objects up to MaxMediaSize must be accepted.
	Upload(ctx context.Context, obj Object) (*StoredObject, error)

	// Delete removes an object by its storage ID.
	// Returns nil if the object doesn't exist.
	Delete(ctx context.Context, id string) error
}

// Object is a file to be stored.
type Object struct {
	// Key is the logical path, e.g. "media/42/vin-match/<uuid>.jpg".
	Key         string
	FileName    string
	ContentType string
	Data        []byte
}

// StoredObject is the opaque reference returned by storage.
type StoredObject struct {
	ID       string `json:"id"`
	ViewLink string `json:"viewLink"`
}

// StorageConfig holds configuration for file storage.
type StorageConfig struct {
	// Provider is the storage provider ("local", "s3", or "drive").
	Provider string

	// Local storage configuration
	LocalPath string
	LocalURL  string

	// S3 storage configuration
	S3Bucket     string
	S3Region     string
	S3BaseURL    string
	S3PresignTTL time.Duration

	// Google Drive configuration
	DriveFolderID        string
	DriveCredentialsFile string

	// Upload retry configuration
	RetryAttempts uint64
	RetryBase     time.Duration
}
