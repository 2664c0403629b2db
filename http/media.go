package http

import (
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukerupert/handover"
	"github.com/dukerupert/handover/internal/audit"
	"github.com/dukerupert/handover/internal/capture"
	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"
)

// handleUploadMedia accepts a multipart upload with fields "file", "itemId",
// and an optional "duration" in seconds. The media kind is taken from the
// sniffed content, never from the file name or the declared type. Video
// duration is recorded but only enforced on the capturing client.
func (s *Server) handleUploadMedia(c echo.Context) error {
	id, err := requireIDParam(c, "id")
	if err != nil {
		return err
	}

	itemID := c.FormValue("itemId")
	if itemID == "" {
		return handover.ErrorWithFields(map[string]string{"itemId": "is required"})
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return handover.ErrorWithFields(map[string]string{"file": "is required"})
	}
	if fh.Size > handover.MaxMediaSize {
		return handover.Errorf(handover.EFILETOOLARGE, "File exceeds the 50 MB limit")
	}

	f, err := fh.Open()
	if err != nil {
		return handover.Invalid("Could not read uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, handover.MaxMediaSize+1))
	if err != nil {
		return handover.Invalid("Could not read uploaded file")
	}
	if int64(len(data)) > handover.MaxMediaSize {
		return handover.Errorf(handover.EFILETOOLARGE, "File exceeds the 50 MB limit")
	}

	contentType := mimetype.Detect(data).String()
	kind, ok := handover.MediaKindFromContentType(contentType)
	if !ok {
		return handover.Errorf(handover.EINVALIDFILETYPE, "Only photos and videos can be attached")
	}

	var duration time.Duration
	if kind == handover.MediaVideo {
		if v := c.FormValue("duration"); v != "" {
			secs, err := strconv.ParseFloat(v, 64)
			if err != nil || secs < 0 {
				return handover.ErrorWithFields(map[string]string{"duration": "must be a number of seconds"})
			}
			duration = time.Duration(secs * float64(time.Second))
		}
		if probed, ok := capture.ProbeDuration(data); ok {
			duration = probed
		}
	}

	ctx, cancel := withLongTimeout(c)
	defer cancel()

	att, err := s.uploader.UploadMedia(ctx, &handover.MediaUpload{
		InspectionID: id,
		ItemID:       itemID,
		FileName:     fh.Filename,
		ContentType:  contentType,
		Kind:         kind,
		Data:         data,
		Duration:     duration,
	})
	if err != nil {
		return err
	}

	s.log(c).Info("media uploaded",
		slog.Int64("inspection_id", id),
		slog.String("item_id", itemID),
		slog.String("kind", string(kind)),
		slog.Int("size", len(data)),
		slog.Duration("duration", duration))
	details := map[string]any{
		"itemId":   itemID,
		"kind":     string(kind),
		"fileName": att.FileName,
	}
	if duration > 0 {
		details["durationSeconds"] = duration.Seconds()
	}
	s.record(c, id, audit.ActionMediaUploaded, details)

	return RespondCreated(c, att)
}

// handleListMedia lists an inspection's media, optionally for one item.
func (s *Server) handleListMedia(c echo.Context) error {
	id, err := requireIDParam(c, "id")
	if err != nil {
		return err
	}

	filter := handover.MediaFilter{InspectionID: &id}
	if itemID := c.QueryParam("itemId"); itemID != "" {
		filter.ItemID = &itemID
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	media, err := s.mediaService.FindMedia(ctx, filter)
	if err != nil {
		return err
	}
	if media == nil {
		media = []*handover.MediaAttachment{}
	}
	return RespondOK(c, media)
}
