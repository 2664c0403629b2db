package mock

import (
	"context"
	"sync"

	"github.com/dukerupert/handover"
)

// Compile-time interface check
var _ handover.FileStorage = (*FileStorage)(nil)

// FileStorage is a mock implementation of handover.FileStorage.
type FileStorage struct {
	UploadFn func(ctx context.Context, obj handover.Object) (*handover.StoredObject, error)
	DeleteFn func(ctx context.Context, id string) error

	// Uploads records every object passed to Upload.
	mu      sync.Mutex
	Uploads []handover.Object
}

func (s *FileStorage) Upload(ctx context.Context, obj handover.Object) (*handover.StoredObject, error) {
	s.mu.Lock()
	s.Uploads = append(s.Uploads, obj)
	s.mu.Unlock()

	if s.UploadFn != nil {
		return s.UploadFn(ctx, obj)
	}
	return &handover.StoredObject{
		ID:       obj.Key,
		ViewLink: "https://mock-storage.example.com/" + obj.Key,
	}, nil
}

func (s *FileStorage) Delete(ctx context.Context, id string) error {
	if s.DeleteFn != nil {
		return s.DeleteFn(ctx, id)
	}
	return nil
}

// UploadCount returns the number of Upload calls.
func (s *FileStorage) UploadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Uploads)
}
