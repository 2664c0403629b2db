// Package audit keeps an append-only history of what happened to each
// inspection: creation, content edits, uploads, phase signatures, and
// report completion. Signatures are the legally meaningful step of a
// handover, so every entry records where the request came from.
package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/handover"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// Actions recorded in the history.
const (
	ActionCreated       = "inspection.created"
	ActionUpdated       = "inspection.updated"
	ActionItemUpdated   = "item.updated"
	ActionMediaUploaded = "media.uploaded"
	ActionPhaseSigned   = "phase.signed"
	ActionCompleted     = "inspection.completed"
)

// insertTimeout bounds the background insert of one entry.
const insertTimeout = 5 * time.Second

// Entry is one history record.
type Entry struct {
	ID           uuid.UUID      `json:"id"`
	InspectionID int64          `json:"inspectionId"`
	Action       string         `json:"action"`
	Details      map[string]any `json:"details,omitempty"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	RequestID    string         `json:"requestId,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// FromRequest builds an entry carrying the caller's address, user agent,
// and request ID.
func FromRequest(c echo.Context, inspectionID int64, action string, details map[string]any) Entry {
	req := c.Request()
	return Entry{
		InspectionID: inspectionID,
		Action:       action,
		Details:      details,
		IPAddress:    c.RealIP(),
		UserAgent:    req.UserAgent(),
		RequestID:    handover.RequestIDFromContext(req.Context()),
	}
}

// Logger writes entries to the inspection_events table.
type Logger struct {
	db     *pgxpool.Pool
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewLogger creates an audit logger.
func NewLogger(db *pgxpool.Pool, logger *slog.Logger) *Logger {
	return &Logger{db: db, logger: logger}
}

// Record stores entry in the background so requests never wait on the
// history. A failed insert is logged with the entry's fields instead.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	// The request context ends with the response.
	ctx = context.WithoutCancel(ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, insertTimeout)
		defer cancel()

		if err := l.insert(ctx, entry); err != nil {
			l.logger.Error("failed to insert audit entry",
				slog.String("error", err.Error()),
				slog.Int64("inspection_id", entry.InspectionID),
				slog.String("action", entry.Action),
				slog.String("request_id", entry.RequestID),
				slog.Any("details", entry.Details))
		}
	}()
}

// Wait blocks until pending inserts are done.
func (l *Logger) Wait() {
	l.wg.Wait()
}

func (l *Logger) insert(ctx context.Context, e Entry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("encoding details: %w", err)
	}
	_, err = l.db.Exec(ctx, `
		INSERT INTO inspection_events (
			id, inspection_id, action, details, ip_address, user_agent, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.InspectionID, e.Action, details, e.IPAddress, e.UserAgent, e.RequestID, e.CreatedAt)
	return err
}

// History returns the entries of one inspection, oldest first.
func (l *Logger) History(ctx context.Context, inspectionID int64, limit, offset int) ([]Entry, error) {
	rows, err := l.db.Query(ctx, `
		SELECT id, inspection_id, action, details, ip_address, user_agent, request_id, created_at
		FROM inspection_events
		WHERE inspection_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`,
		inspectionID, limit, offset)
	if err != nil {
		return nil, handover.Internal("Failed to load inspection history", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var details []byte
		if err := rows.Scan(&e.ID, &e.InspectionID, &e.Action, &details,
			&e.IPAddress, &e.UserAgent, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, handover.Internal("Failed to load inspection history", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, handover.Internal("Failed to decode inspection history", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, handover.Internal("Failed to load inspection history", err)
	}
	return entries, nil
}

var csvHeader = []string{"timestamp", "action", "details", "ip_address", "user_agent", "request_id"}

// WriteCSV writes entries as CSV with a header row.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		details := ""
		if len(e.Details) > 0 {
			b, err := json.Marshal(e.Details)
			if err != nil {
				return err
			}
			details = string(b)
		}
		if err := cw.Write([]string{
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.Action,
			details,
			e.IPAddress,
			e.UserAgent,
			e.RequestID,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
