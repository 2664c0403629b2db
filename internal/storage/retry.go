package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/handover"
	"github.com/sethvargo/go-retry"
)

// RetryStorage retries failed uploads with exponential backoff. Validation
// and permission failures are returned immediately. When every attempt
// fails the caller gets EUNAVAILABLE.
type RetryStorage struct {
	next     handover.FileStorage
	logger   *slog.Logger
	attempts uint64
	base     time.Duration
}

// NewRetryStorage wraps next. Zero values select 3 retries starting at one
// second.
func NewRetryStorage(next handover.FileStorage, logger *slog.Logger, attempts uint64, base time.Duration) *RetryStorage {
	if attempts == 0 {
		attempts = 3
	}
	if base <= 0 {
		base = time.Second
	}
	return &RetryStorage{next: next, logger: logger, attempts: attempts, base: base}
}

// Upload stores obj, retrying transient failures.
func (s *RetryStorage) Upload(ctx context.Context, obj handover.Object) (*handover.StoredObject, error) {
	var (
		stored  *handover.StoredObject
		attempt int
	)

	b := retry.WithMaxRetries(s.attempts, retry.NewExponential(s.base))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		var err error
		stored, err = s.next.Upload(ctx, obj)
		if err == nil {
			return nil
		}
		switch handover.ErrorCode(err) {
		case handover.EINVALID, handover.EPERMISSION:
			return err
		}
		s.logger.Warn("upload attempt failed",
			slog.String("key", obj.Key),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		return retry.RetryableError(err)
	})
	if err != nil {
		switch handover.ErrorCode(err) {
		case handover.EINVALID, handover.EPERMISSION:
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, handover.WrapError(handover.ETIMEOUT, "Upload timed out", err)
		}
		return nil, handover.Unavailable("Failed to upload file", err)
	}
	return stored, nil
}

// Delete is not retried.
func (s *RetryStorage) Delete(ctx context.Context, id string) error {
	return s.next.Delete(ctx, id)
}
