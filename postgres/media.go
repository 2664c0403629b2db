package postgres

import (
	"context"

	"github.com/dukerupert/handover"
	"github.com/jackc/pgx/v5"
)

// Compile-time check that MediaService implements handover.MediaService.
var _ handover.MediaService = (*MediaService)(nil)

// MediaService implements handover.MediaService using PostgreSQL.
type MediaService struct {
	db *DB
}

const mediaColumns = `
	id, inspection_id, item_id, kind, file_name, content_type, size,
	storage_id, link, upload_status, created_at`

func scanMedia(row pgx.Row) (*handover.MediaAttachment, error) {
	var m handover.MediaAttachment
	err := row.Scan(
		&m.ID,
		&m.InspectionID,
		&m.ItemID,
		&m.Kind,
		&m.FileName,
		&m.ContentType,
		&m.Size,
		&m.StorageID,
		&m.Link,
		&m.UploadStatus,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MediaService) CreateMedia(ctx context.Context, media *handover.MediaAttachment) error {
	if media.UploadStatus == "" {
		media.UploadStatus = handover.UploadPending
	}

	query := `
		INSERT INTO media (
			inspection_id, item_id, kind, file_name, content_type, size,
			storage_id, link, upload_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err := s.db.pool.QueryRow(ctx, query,
		media.InspectionID,
		media.ItemID,
		string(media.Kind),
		media.FileName,
		media.ContentType,
		media.Size,
		media.StorageID,
		media.Link,
		string(media.UploadStatus),
	).Scan(&media.ID, &media.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return handover.NotFound("Inspection not found")
		}
		return handover.Internal("Failed to create media record", err)
	}

	return nil
}

func (s *MediaService) UpdateMedia(ctx context.Context, id int64, upd handover.MediaUpdate) (*handover.MediaAttachment, error) {
	query := `
		UPDATE media SET
			upload_status = COALESCE($2, upload_status),
			storage_id = COALESCE($3, storage_id),
			link = COALESCE($4, link)
		WHERE id = $1
		RETURNING ` + mediaColumns

	m, err := scanMedia(s.db.pool.QueryRow(ctx, query,
		id,
		stringPtr(upd.UploadStatus),
		upd.StorageID,
		upd.Link,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, handover.NotFound("Media not found")
		}
		return nil, handover.Internal("Failed to update media record", err)
	}
	return m, nil
}

func (s *MediaService) FindMedia(ctx context.Context, filter handover.MediaFilter) ([]*handover.MediaAttachment, error) {
	var where whereBuilder
	if filter.InspectionID != nil {
		where.add("inspection_id = ?", *filter.InspectionID)
	}
	if filter.ItemID != nil {
		where.add("item_id = ?", *filter.ItemID)
	}
	if filter.UploadStatus != nil {
		where.add("upload_status = ?", string(*filter.UploadStatus))
	}

	query := `SELECT ` + mediaColumns + ` FROM media` + where.String() + ` ORDER BY created_at ASC, id ASC`
	rows, err := s.db.pool.Query(ctx, query, where.args...)
	if err != nil {
		return nil, handover.Internal("Failed to list media", err)
	}
	defer rows.Close()

	var media []*handover.MediaAttachment
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, handover.Internal("Failed to list media", err)
		}
		media = append(media, m)
	}
	if err := rows.Err(); err != nil {
		return nil, handover.Internal("Failed to list media", err)
	}
	return media, nil
}
