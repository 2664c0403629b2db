package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dukerupert/handover"
)

// S3Storage implements handover.FileStorage for AWS S3.
//
// View links come from the configured base URL when set (CloudFront or a
// public bucket). Otherwise a presigned GET URL is issued with the
// configured lifetime.
type S3Storage struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	region     string
	baseURL    string
	presignTTL time.Duration
}

// NewS3Storage creates a new S3 storage instance
func NewS3Storage(client *s3.Client, bucket, region, baseURL string, presignTTL time.Duration) *S3Storage {
	if presignTTL <= 0 {
		presignTTL = 7 * 24 * time.Hour
	}
	return &S3Storage{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     bucket,
		region:     region,
		baseURL:    baseURL,
		presignTTL: presignTTL,
	}
}

// Upload uploads a file to S3
func (s *S3Storage) Upload(ctx context.Context, obj handover.Object) (*handover.StoredObject, error) {
	key := objectKey(obj)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(obj.Data),
		ContentType:   aws.String(obj.ContentType),
		ContentLength: aws.Int64(int64(len(obj.Data))),
	}
	if obj.FileName != "" {
		input.ContentDisposition = aws.String(fmt.Sprintf("inline; filename=%q", obj.FileName))
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	link, err := s.viewLink(ctx, key)
	if err != nil {
		return nil, err
	}
	return &handover.StoredObject{ID: key, ViewLink: link}, nil
}

// Delete removes a file from S3
func (s *S3Storage) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

func (s *S3Storage) viewLink(ctx context.Context, key string) (string, error) {
	if s.baseURL != "" {
		return fmt.Sprintf("%s/%s", s.baseURL, key), nil
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign S3 link: %w", err)
	}
	return req.URL, nil
}
