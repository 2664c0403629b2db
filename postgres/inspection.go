package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukerupert/handover"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Compile-time check that InspectionService implements handover.InspectionService.
var _ handover.InspectionService = (*InspectionService)(nil)

// InspectionService implements handover.InspectionService using PostgreSQL.
// The section tree and phase records are stored as JSONB documents on the
// inspection row.
type InspectionService struct {
	db *DB
}

const inspectionColumns = `
	id, order_number, vin, vehicle_model, vehicle_color, customer_name,
	customer_email, sales_rep_email, representative_name, delivery_date,
	language, status, sections, on_delivery, test_drive, test_drive_kilometers,
	total_items, completed_items, failed_items, created_at, updated_at`

func scanInspection(row pgx.Row) (*handover.Inspection, error) {
	var (
		i            handover.Inspection
		deliveryDate pgtype.Timestamptz
		docs         inspectionDocs
	)
	err := row.Scan(
		&i.ID,
		&i.OrderNumber,
		&i.VIN,
		&i.VehicleModel,
		&i.VehicleColor,
		&i.CustomerName,
		&i.CustomerEmail,
		&i.SalesRepEmail,
		&i.RepresentativeName,
		&deliveryDate,
		&i.Language,
		&i.Status,
		&docs.sections,
		&docs.onDelivery,
		&docs.testDrive,
		&i.TestDriveKilometers,
		&i.TotalItems,
		&i.CompletedItems,
		&i.FailedItems,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	i.DeliveryDate = fromPgTimestamp(deliveryDate)
	if err := docs.unmarshalInto(&i); err != nil {
		return nil, fmt.Errorf("decoding inspection documents: %w", err)
	}
	return &i, nil
}

func (s *InspectionService) FindInspectionByID(ctx context.Context, id int64) (*handover.Inspection, error) {
	return findInspectionByID(ctx, s.db.pool, id, false)
}

func findInspectionByID(ctx context.Context, q querier, id int64, forUpdate bool) (*handover.Inspection, error) {
	query := `SELECT ` + inspectionColumns + ` FROM inspections WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	i, err := scanInspection(q.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, handover.NotFound("Inspection not found")
		}
		return nil, handover.Internal("Failed to fetch inspection", err)
	}
	return i, nil
}

func (s *InspectionService) FindInspectionByOrderNumber(ctx context.Context, orderNumber string) (*handover.Inspection, error) {
	query := `SELECT ` + inspectionColumns + ` FROM inspections WHERE order_number = $1`
	i, err := scanInspection(s.db.pool.QueryRow(ctx, query, orderNumber))
	if err != nil {
		if isNoRows(err) {
			return nil, handover.NotFound("No inspection for order %s", orderNumber)
		}
		return nil, handover.Internal("Failed to fetch inspection", err)
	}
	return i, nil
}

func (s *InspectionService) FindInspections(ctx context.Context, filter handover.InspectionFilter) ([]*handover.Inspection, int, error) {
	var where whereBuilder
	if filter.ID != nil {
		where.add("id = ?", *filter.ID)
	}
	if filter.OrderNumber != nil {
		where.add("order_number = ?", *filter.OrderNumber)
	}
	if filter.Status != nil {
		where.add("status = ?", string(*filter.Status))
	}

	var total int
	if err := s.db.pool.QueryRow(ctx, `SELECT count(*) FROM inspections`+where.String(), where.args...).Scan(&total); err != nil {
		return nil, 0, handover.Internal("Failed to count inspections", err)
	}

	query := `SELECT ` + inspectionColumns + ` FROM inspections` + where.String() + ` ORDER BY created_at DESC, id DESC`
	args := where.args
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, handover.Internal("Failed to list inspections", err)
	}
	defer rows.Close()

	var inspections []*handover.Inspection
	for rows.Next() {
		i, err := scanInspection(rows)
		if err != nil {
			return nil, 0, handover.Internal("Failed to list inspections", err)
		}
		inspections = append(inspections, i)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, handover.Internal("Failed to list inspections", err)
	}

	return inspections, total, nil
}

func (s *InspectionService) CreateInspection(ctx context.Context, inspection *handover.Inspection) error {
	docs, err := marshalInspectionDocs(inspection)
	if err != nil {
		return handover.Internal("Failed to encode inspection", err)
	}
	if inspection.Language == "" {
		inspection.Language = handover.DefaultLanguage
	}

	query := `
		INSERT INTO inspections (
			order_number, vin, vehicle_model, vehicle_color, customer_name,
			customer_email, sales_rep_email, representative_name, delivery_date,
			language, status, sections, on_delivery, test_drive, test_drive_kilometers,
			total_items, completed_items, failed_items
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, created_at, updated_at
	`

	err = s.db.pool.QueryRow(ctx, query,
		inspection.OrderNumber,
		inspection.VIN,
		inspection.VehicleModel,
		inspection.VehicleColor,
		inspection.CustomerName,
		inspection.CustomerEmail,
		inspection.SalesRepEmail,
		inspection.RepresentativeName,
		toPgTimestamp(inspection.DeliveryDate),
		inspection.Language,
		string(inspection.Status),
		docs.sections,
		docs.onDelivery,
		docs.testDrive,
		inspection.TestDriveKilometers,
		inspection.TotalItems,
		inspection.CompletedItems,
		inspection.FailedItems,
	).Scan(&inspection.ID, &inspection.CreatedAt, &inspection.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return handover.Conflict("Order %s already has an inspection", inspection.OrderNumber)
		}
		return handover.Internal("Failed to create inspection", err)
	}

	return nil
}

// UpdateInspection applies the update under a row lock so concurrent item
// writes to the same inspection serialize.
func (s *InspectionService) UpdateInspection(ctx context.Context, id int64, upd handover.InspectionUpdate) (*handover.Inspection, error) {
	var updated *handover.Inspection

	err := pgx.BeginFunc(ctx, s.db.pool, func(tx pgx.Tx) error {
		i, err := findInspectionByID(ctx, tx, id, true)
		if err != nil {
			return err
		}

		upd.Apply(i)

		docs, err := marshalInspectionDocs(i)
		if err != nil {
			return handover.Internal("Failed to encode inspection", err)
		}

		query := `
			UPDATE inspections SET
				customer_email = $2,
				sales_rep_email = $3,
				representative_name = $4,
				language = $5,
				status = $6,
				sections = $7,
				on_delivery = $8,
				test_drive = $9,
				test_drive_kilometers = $10,
				total_items = $11,
				completed_items = $12,
				failed_items = $13,
				updated_at = now()
			WHERE id = $1
			RETURNING updated_at
		`
		err = tx.QueryRow(ctx, query,
			id,
			i.CustomerEmail,
			i.SalesRepEmail,
			i.RepresentativeName,
			i.Language,
			string(i.Status),
			docs.sections,
			docs.onDelivery,
			docs.testDrive,
			i.TestDriveKilometers,
			i.TotalItems,
			i.CompletedItems,
			i.FailedItems,
		).Scan(&i.UpdatedAt)
		if err != nil {
			return handover.Internal("Failed to update inspection", err)
		}

		updated = i
		return nil
	})
	if err != nil {
		var appErr *handover.Error
		if !errors.As(err, &appErr) {
			return nil, handover.Internal("Failed to update inspection", err)
		}
		return nil, err
	}

	return updated, nil
}

func (s *InspectionService) DeleteInspection(ctx context.Context, id int64) error {
	tag, err := s.db.pool.Exec(ctx, `DELETE FROM inspections WHERE id = $1`, id)
	if err != nil {
		return handover.Internal("Failed to delete inspection", err)
	}
	if tag.RowsAffected() == 0 {
		return handover.NotFound("Inspection not found")
	}
	return nil
}
