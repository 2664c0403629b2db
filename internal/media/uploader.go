// Package media stores evidence uploads on the server.
package media

import (
	"context"
	"log/slog"

	"github.com/dukerupert/handover"
	"github.com/dukerupert/handover/internal/middleware"
	"github.com/dukerupert/handover/internal/storage"
)

// Compile-time interface check
var _ handover.MediaUploader = (*Uploader)(nil)

// Uploader validates an upload against the item's stored media, writes the
// bytes to file storage, and records the outcome.
type Uploader struct {
	inspections handover.InspectionService
	media       handover.MediaService
	storage     handover.FileStorage
	logger      *slog.Logger
}

// NewUploader creates an Uploader.
func NewUploader(inspections handover.InspectionService, media handover.MediaService, fs handover.FileStorage, logger *slog.Logger) *Uploader {
	return &Uploader{
		inspections: inspections,
		media:       media,
		storage:     fs,
		logger:      logger,
	}
}

// UploadMedia stores one file for an item. The media record is created as
// pending before the bytes are stored and marked uploaded or failed after.
// Failed records still count toward the item's limits.
func (u *Uploader) UploadMedia(ctx context.Context, upload *handover.MediaUpload) (att *handover.MediaAttachment, err error) {
	if upload.Kind == "" {
		upload.Kind, _ = handover.MediaKindFromContentType(upload.ContentType)
	}
	defer func() {
		middleware.RecordMediaUpload(string(upload.Kind), err)
	}()

	in, err := u.inspections.FindInspectionByID(ctx, upload.InspectionID)
	if err != nil {
		return nil, err
	}
	if _, ok := in.Item(upload.ItemID); !ok {
		return nil, handover.NotFound("Item %s not found", upload.ItemID)
	}

	itemID := upload.ItemID
	existing, err := u.media.FindMedia(ctx, handover.MediaFilter{
		InspectionID: &upload.InspectionID,
		ItemID:       &itemID,
	})
	if err != nil {
		return nil, err
	}
	if err := handover.ValidateUpload(existing, upload.Candidate()); err != nil {
		return nil, err
	}

	att = &handover.MediaAttachment{
		InspectionID: upload.InspectionID,
		ItemID:       upload.ItemID,
		Kind:         upload.Kind,
		FileName:     upload.FileName,
		ContentType:  upload.ContentType,
		Size:         int64(len(upload.Data)),
		UploadStatus: handover.UploadPending,
	}
	if err := u.media.CreateMedia(ctx, att); err != nil {
		return nil, err
	}

	logger := u.logger.With(
		slog.Int64("inspection_id", upload.InspectionID),
		slog.String("item_id", upload.ItemID),
		slog.Int64("media_id", att.ID))

	stored, err := u.storage.Upload(ctx, handover.Object{
		Key:         storage.MediaKey(upload.InspectionID, upload.ItemID, upload.FileName),
		FileName:    upload.FileName,
		ContentType: upload.ContentType,
		Data:        upload.Data,
	})
	if err != nil {
		logger.Error("media upload failed", slog.String("error", err.Error()))

		failed := handover.UploadFailed
		// Use a fresh context; the request context may be what failed.
		if _, uerr := u.media.UpdateMedia(context.WithoutCancel(ctx), att.ID, handover.MediaUpdate{UploadStatus: &failed}); uerr != nil {
			logger.Error("marking media failed", slog.String("error", uerr.Error()))
		}
		return nil, handover.Unavailable("Upload failed, please try again", err)
	}

	uploaded := handover.UploadUploaded
	att, err = u.media.UpdateMedia(ctx, att.ID, handover.MediaUpdate{
		UploadStatus: &uploaded,
		StorageID:    &stored.ID,
		Link:         &stored.ViewLink,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("media uploaded",
		slog.String("kind", string(att.Kind)),
		slog.Int64("size", att.Size))
	return att, nil
}
