// Package storage provides handover.FileStorage implementations for local
// disk, Amazon S3 and Google Drive.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dukerupert/handover"
)

// Compile-time interface checks
var (
	_ handover.FileStorage = (*LocalStorage)(nil)
	_ handover.FileStorage = (*S3Storage)(nil)
	_ handover.FileStorage = (*DriveStorage)(nil)
	_ handover.FileStorage = (*RetryStorage)(nil)
)

// NewFileStorage creates a file storage instance based on the provider
// configuration. The backend is wrapped with upload retries.
func NewFileStorage(ctx context.Context, logger *slog.Logger, cfg handover.StorageConfig) (handover.FileStorage, error) {
	var backend handover.FileStorage

	switch cfg.Provider {
	case "s3":
		// Load AWS configuration
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.S3Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		backend = NewS3Storage(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Region, cfg.S3BaseURL, cfg.S3PresignTTL)

		logger.Info("initialized S3 storage",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)

	case "drive":
		drive, err := NewDriveStorage(ctx, cfg.DriveCredentialsFile, cfg.DriveFolderID)
		if err != nil {
			return nil, fmt.Errorf("failed to create drive storage: %w", err)
		}
		backend = drive

		logger.Info("initialized drive storage",
			slog.String("folder", cfg.DriveFolderID),
		)

	case "local", "":
		local, err := NewLocalStorage(cfg.LocalPath, cfg.LocalURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create local storage: %w", err)
		}
		backend = local

		logger.Info("initialized local storage",
			slog.String("path", cfg.LocalPath),
			slog.String("url", cfg.LocalURL),
		)

	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}

	return NewRetryStorage(backend, logger, cfg.RetryAttempts, cfg.RetryBase), nil
}

// LocalStorage implements handover.FileStorage for local disk storage.
// The storage ID is the object key relative to the base path.
type LocalStorage struct {
	basePath string
	baseURL  string
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(basePath, baseURL string) (*LocalStorage, error) {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
		baseURL:  baseURL,
	}, nil
}

// Upload writes the object to disk under its key.
func (s *LocalStorage) Upload(ctx context.Context, obj handover.Object) (*handover.StoredObject, error) {
	key := objectKey(obj)
	destPath, err := s.path(key)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	if err := os.WriteFile(destPath, obj.Data, 0644); err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	return &handover.StoredObject{ID: key, ViewLink: s.GetURL(key)}, nil
}

// Delete removes a file from local disk
func (s *LocalStorage) Delete(ctx context.Context, id string) error {
	filePath, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// GetURL returns the URL to access the file
func (s *LocalStorage) GetURL(key string) string {
	return fmt.Sprintf("%s/%s", s.baseURL, key)
}

// path resolves key under the base path and rejects keys that escape it.
func (s *LocalStorage) path(key string) (string, error) {
	p := filepath.Join(s.basePath, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.basePath, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", handover.Invalid("Invalid storage key %q", key)
	}
	return p, nil
}
