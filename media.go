package handover

import (
	"context"
	"strings"
	"time"
)

// MediaKind is the type of evidence attached to an item.
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// MediaKindFromContentType infers the media kind from a MIME type.
// Returns false for anything that is neither an image nor a video.
func MediaKindFromContentType(contentType string) (MediaKind, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case strings.HasPrefix(ct, "image/"):
		return MediaPhoto, true
	case strings.HasPrefix(ct, "video/"):
		return MediaVideo, true
	default:
		return "", false
	}
}

// UploadStatus tracks a media attachment through the upload pipeline.
type UploadStatus string

const (
	UploadPending  UploadStatus = "pending"
	UploadUploaded UploadStatus = "uploaded"
	UploadFailed   UploadStatus = "failed"
)

// MediaAttachment is a photo or video stored remotely and referenced from an
// inspection item. Attachments are only ever added, never edited.
type MediaAttachment struct {
	ID           int64        `json:"id"`
	InspectionID int64        `json:"inspectionId"`
	ItemID       string       `json:"itemId"`
	Kind         MediaKind    `json:"kind"`
	FileName     string       `json:"fileName"`
	ContentType  string       `json:"contentType"`
	Size         int64        `json:"size"`
	StorageID    string       `json:"storageId,omitempty"`
	Link         string       `json:"link,omitempty"`
	UploadStatus UploadStatus `json:"uploadStatus"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// MediaCounts tallies attachments by kind.
type MediaCounts struct {
	Photos int
	Videos int
}

// CountMedia counts photos and videos in a list of attachments.
func CountMedia(media []MediaAttachment) MediaCounts {
	var c MediaCounts
	for _, m := range media {
		switch m.Kind {
		case MediaPhoto:
			c.Photos++
		case MediaVideo:
			c.Videos++
		}
	}
	return c
}

// MediaService defines operations for managing media records.
type MediaService interface {
	// CreateMedia creates a new media record.
	// Note: Actual file upload is handled by FileStorage.
	CreateMedia(ctx context.Context, media *MediaAttachment) error

	// UpdateMedia records the outcome of an upload.
	// Returns ENOTFOUND if the media record does not exist.
	UpdateMedia(ctx context.Context, id int64, upd MediaUpdate) (*MediaAttachment, error)

	// FindMedia retrieves media matching the filter criteria, oldest first.
	FindMedia(ctx context.Context, filter MediaFilter) ([]*MediaAttachment, error)
}

// MediaFilter defines criteria for filtering media.
type MediaFilter struct {
	InspectionID *int64
	ItemID       *string
	UploadStatus *UploadStatus
}

// MediaUpdate defines fields that can be updated on a media record.
type MediaUpdate struct {
	UploadStatus *UploadStatus
	StorageID    *string
	Link         *string
}

// MediaUpload is a file ready to be stored for an item.
type MediaUpload struct {
	InspectionID int64
	ItemID       string
	FileName     string
	ContentType  string
	Kind         MediaKind
	Data         []byte

	// Duration is the probed video length, zero when unknown.
	Duration time.Duration
}

// Candidate returns the evidence candidate for the upload.
func (u *MediaUpload) Candidate() Candidate {
	return Candidate{Kind: u.Kind, Size: int64(len(u.Data)), Duration: u.Duration}
}

// MediaUploader validates, stores, and records one media file.
type MediaUploader interface {
	UploadMedia(ctx context.Context, upload *MediaUpload) (*MediaAttachment, error)
}
