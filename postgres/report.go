package postgres

import (
	"context"
	"encoding/json"

	"github.com/dukerupert/handover"
	"github.com/jackc/pgx/v5"
)

// Compile-time check that ReportService implements handover.ReportService.
var _ handover.ReportService = (*ReportService)(nil)

// ReportService implements handover.ReportService using PostgreSQL.
type ReportService struct {
	db *DB
}

const reportColumns = `
	id, inspection_id, file_name, storage_id, link, email_sent, notifications, created_at`

func scanReport(row pgx.Row) (*handover.InspectionReport, error) {
	var (
		r             handover.InspectionReport
		notifications []byte
	)
	err := row.Scan(
		&r.ID,
		&r.InspectionID,
		&r.FileName,
		&r.StorageID,
		&r.Link,
		&r.EmailSent,
		&notifications,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(notifications, &r.Notifications); err != nil {
		return nil, err
	}
	return &r, nil
}

func marshalNotifications(n []handover.Notification) ([]byte, error) {
	if n == nil {
		n = []handover.Notification{}
	}
	return json.Marshal(n)
}

func (s *ReportService) CreateReport(ctx context.Context, report *handover.InspectionReport) error {
	notifications, err := marshalNotifications(report.Notifications)
	if err != nil {
		return handover.Internal("Failed to encode notifications", err)
	}

	query := `
		INSERT INTO reports (inspection_id, file_name, storage_id, link, email_sent, notifications)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (inspection_id) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			storage_id = EXCLUDED.storage_id,
			link = EXCLUDED.link,
			email_sent = EXCLUDED.email_sent,
			notifications = EXCLUDED.notifications,
			created_at = now()
		RETURNING id, created_at
	`

	err = s.db.pool.QueryRow(ctx, query,
		report.InspectionID,
		report.FileName,
		report.StorageID,
		report.Link,
		report.EmailSent,
		notifications,
	).Scan(&report.ID, &report.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return handover.NotFound("Inspection not found")
		}
		return handover.Internal("Failed to create report", err)
	}
	return nil
}

func (s *ReportService) FindReportByInspectionID(ctx context.Context, inspectionID int64) (*handover.InspectionReport, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE inspection_id = $1`
	r, err := scanReport(s.db.pool.QueryRow(ctx, query, inspectionID))
	if err != nil {
		if isNoRows(err) {
			return nil, handover.NotFound("Report not found")
		}
		return nil, handover.Internal("Failed to fetch report", err)
	}
	return r, nil
}

func (s *ReportService) UpdateReport(ctx context.Context, id int64, upd handover.ReportUpdate) (*handover.InspectionReport, error) {
	var notifications []byte
	if upd.Notifications != nil {
		var err error
		if notifications, err = marshalNotifications(upd.Notifications); err != nil {
			return nil, handover.Internal("Failed to encode notifications", err)
		}
	}

	query := `
		UPDATE reports SET
			email_sent = COALESCE($2, email_sent),
			notifications = COALESCE($3, notifications)
		WHERE id = $1
		RETURNING ` + reportColumns

	r, err := scanReport(s.db.pool.QueryRow(ctx, query, id, upd.EmailSent, notifications))
	if err != nil {
		if isNoRows(err) {
			return nil, handover.NotFound("Report not found")
		}
		return nil, handover.Internal("Failed to update report", err)
	}
	return r, nil
}
