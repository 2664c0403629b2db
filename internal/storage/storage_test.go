package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukerupert/handover"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLocalStorage_UploadDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir, "http://localhost:8080/uploads")
	require.NoError(t, err)

	ctx := context.Background()
	obj := handover.Object{
		Key:         MediaKey(42, "paint-quality", "Scratch.JPG"),
		FileName:    "Scratch.JPG",
		ContentType: "image/jpeg",
		Data:        []byte("jpeg bytes"),
	}

	stored, err := s.Upload(ctx, obj)
	require.NoError(t, err)
	assert.Equal(t, obj.Key, stored.ID)
	assert.True(t, strings.HasPrefix(stored.ViewLink, "http://localhost:8080/uploads/media/42/paint-quality/"))
	assert.True(t, strings.HasSuffix(stored.ID, ".jpg"))

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(stored.ID)))
	require.NoError(t, err)
	assert.Equal(t, obj.Data, data)

	require.NoError(t, s.Delete(ctx, stored.ID))
	_, err = os.Stat(filepath.Join(dir, filepath.FromSlash(stored.ID)))
	assert.True(t, os.IsNotExist(err))

	t.Run("delete missing is not an error", func(t *testing.T) {
		assert.NoError(t, s.Delete(ctx, "nope.jpg"))
	})

	t.Run("generated key", func(t *testing.T) {
		stored, err := s.Upload(ctx, handover.Object{FileName: "a.mp4", Data: []byte{1}})
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(stored.ID, ".mp4"))
	})

	t.Run("rejects escaping keys", func(t *testing.T) {
		_, err := s.Upload(ctx, handover.Object{Key: "../outside.jpg", Data: []byte{1}})
		assert.Equal(t, handover.EINVALID, handover.ErrorCode(err))
	})
}

func TestReportKey(t *testing.T) {
	assert.Equal(t, "reports/7/Inspection_RN123.pdf", ReportKey(7, "RN123"))
}

func TestNewFileStorage(t *testing.T) {
	ctx := context.Background()

	s, err := NewFileStorage(ctx, testLogger(), handover.StorageConfig{
		Provider:  "local",
		LocalPath: t.TempDir(),
		LocalURL:  "http://example.com/files",
	})
	require.NoError(t, err)
	_, ok := s.(*RetryStorage)
	assert.True(t, ok, "Expected storage to be wrapped with retries")

	_, err = NewFileStorage(ctx, testLogger(), handover.StorageConfig{Provider: "ftp"})
	assert.Error(t, err)
}

// flakyStorage fails a fixed number of uploads before succeeding.
type flakyStorage struct {
	failures int32
	err      error
	calls    atomic.Int32
}

func (f *flakyStorage) Upload(ctx context.Context, obj handover.Object) (*handover.StoredObject, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return nil, f.err
	}
	return &handover.StoredObject{ID: obj.Key, ViewLink: "https://example.com/" + obj.Key}, nil
}

func (f *flakyStorage) Delete(ctx context.Context, id string) error { return nil }

func TestRetryStorage(t *testing.T) {
	ctx := context.Background()
	obj := handover.Object{Key: "k", Data: []byte{1}}

	t.Run("recovers from transient failures", func(t *testing.T) {
		backend := &flakyStorage{failures: 2, err: errors.New("connection reset")}
		s := NewRetryStorage(backend, testLogger(), 3, time.Millisecond)

		stored, err := s.Upload(ctx, obj)
		require.NoError(t, err)
		assert.Equal(t, "k", stored.ID)
		assert.Equal(t, int32(3), backend.calls.Load())
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		backend := &flakyStorage{failures: 100, err: errors.New("connection reset")}
		s := NewRetryStorage(backend, testLogger(), 3, time.Millisecond)

		_, err := s.Upload(ctx, obj)
		assert.Equal(t, handover.EUNAVAILABLE, handover.ErrorCode(err))
		assert.True(t, handover.Retryable(err))
		assert.Equal(t, int32(4), backend.calls.Load())
	})

	t.Run("permission errors are not retried", func(t *testing.T) {
		backend := &flakyStorage{failures: 100, err: handover.PermissionDenied("denied")}
		s := NewRetryStorage(backend, testLogger(), 3, time.Millisecond)

		_, err := s.Upload(ctx, obj)
		assert.Equal(t, handover.EPERMISSION, handover.ErrorCode(err))
		assert.Equal(t, int32(1), backend.calls.Load())
	})

	t.Run("cancelled context times out", func(t *testing.T) {
		backend := &flakyStorage{failures: 100, err: errors.New("slow")}
		s := NewRetryStorage(backend, testLogger(), 10, 50*time.Millisecond)

		ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := s.Upload(ctx, obj)
		assert.Equal(t, handover.ETIMEOUT, handover.ErrorCode(err))
	})
}
