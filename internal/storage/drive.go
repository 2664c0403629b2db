package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dukerupert/handover"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DriveStorage implements handover.FileStorage for Google Drive. Uploaded
// files are placed in one folder and shared read-only with anyone holding
// the link.
type DriveStorage struct {
	service  *drive.Service
	folderID string
}

// NewDriveStorage authenticates with a service account credentials file.
func NewDriveStorage(ctx context.Context, credentialsFile, folderID string, opts ...option.ClientOption) (*DriveStorage, error) {
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, option.WithScopes(drive.DriveFileScope))

	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}
	return &DriveStorage{service: service, folderID: folderID}, nil
}

// Upload creates the file and grants link-based read access.
func (s *DriveStorage) Upload(ctx context.Context, obj handover.Object) (*handover.StoredObject, error) {
	name := obj.FileName
	if name == "" {
		name = objectKey(obj)
	}

	meta := &drive.File{Name: name, MimeType: obj.ContentType}
	if s.folderID != "" {
		meta.Parents = []string{s.folderID}
	}

	f, err := s.service.Files.Create(meta).
		Media(bytes.NewReader(obj.Data), googleapi.ContentType(obj.ContentType)).
		Fields("id", "webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return nil, driveError("failed to upload to drive", err)
	}

	perm := &drive.Permission{Role: "reader", Type: "anyone"}
	if _, err := s.service.Permissions.Create(f.Id, perm).Context(ctx).Do(); err != nil {
		return nil, driveError("failed to share drive file", err)
	}

	return &handover.StoredObject{ID: f.Id, ViewLink: f.WebViewLink}, nil
}

// Delete removes a file from Drive.
func (s *DriveStorage) Delete(ctx context.Context, id string) error {
	err := s.service.Files.Delete(id).Context(ctx).Do()
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return driveError("failed to delete from drive", err)
	}
	return nil
}

// driveError maps auth failures to EPERMISSION so they are not retried.
func driveError(msg string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden) {
		return handover.WrapError(handover.EPERMISSION, "Storage access was refused", err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
