package mock

import (
	"context"
	"time"

	"github.com/dukerupert/handover"
)

// Compile-time interface checks
var (
	_ handover.MediaService  = (*MediaService)(nil)
	_ handover.MediaUploader = (*MediaUploader)(nil)
)

// MediaService is a mock implementation of handover.MediaService.
type MediaService struct {
	CreateMediaFn func(ctx context.Context, media *handover.MediaAttachment) error
	UpdateMediaFn func(ctx context.Context, id int64, upd handover.MediaUpdate) (*handover.MediaAttachment, error)
	FindMediaFn   func(ctx context.Context, filter handover.MediaFilter) ([]*handover.MediaAttachment, error)
}

func (s *MediaService) CreateMedia(ctx context.Context, media *handover.MediaAttachment) error {
	if s.CreateMediaFn != nil {
		return s.CreateMediaFn(ctx, media)
	}
	media.ID = 1
	if media.UploadStatus == "" {
		media.UploadStatus = handover.UploadPending
	}
	media.CreatedAt = time.Now()
	return nil
}

func (s *MediaService) UpdateMedia(ctx context.Context, id int64, upd handover.MediaUpdate) (*handover.MediaAttachment, error) {
	if s.UpdateMediaFn != nil {
		return s.UpdateMediaFn(ctx, id, upd)
	}
	return nil, handover.NotFound("Media not found")
}

func (s *MediaService) FindMedia(ctx context.Context, filter handover.MediaFilter) ([]*handover.MediaAttachment, error) {
	if s.FindMediaFn != nil {
		return s.FindMediaFn(ctx, filter)
	}
	return []*handover.MediaAttachment{}, nil
}

// MediaUploader is a mock implementation of handover.MediaUploader.
type MediaUploader struct {
	UploadMediaFn func(ctx context.Context, upload *handover.MediaUpload) (*handover.MediaAttachment, error)

	// Uploads records every upload request.
	Uploads []*handover.MediaUpload
}

func (u *MediaUploader) UploadMedia(ctx context.Context, upload *handover.MediaUpload) (*handover.MediaAttachment, error) {
	u.Uploads = append(u.Uploads, upload)
	if u.UploadMediaFn != nil {
		return u.UploadMediaFn(ctx, upload)
	}
	return &handover.MediaAttachment{
		ID:           int64(len(u.Uploads)),
		InspectionID: upload.InspectionID,
		ItemID:       upload.ItemID,
		Kind:         upload.Kind,
		FileName:     upload.FileName,
		ContentType:  upload.ContentType,
		Size:         int64(len(upload.Data)),
		Link:         "https://mock-storage.example.com/" + upload.FileName,
		UploadStatus: handover.UploadUploaded,
		CreatedAt:    time.Now(),
	}, nil
}
