package handover

import (
	"context"
	"time"
)

// RecipientCategory identifies who a report notification is addressed to.
type RecipientCategory string

const (
	RecipientRepresentative RecipientCategory = "representative"
	RecipientCustomer       RecipientCategory = "customer"
	RecipientSupport        RecipientCategory = "support"
)

// Notification records the outcome of one report email.
type Notification struct {
	Category  RecipientCategory `json:"category"`
	Recipient string            `json:"recipient"`
	Sent      bool              `json:"sent"`
	Error     string            `json:"error,omitempty"`
}

// InspectionReport is the generated PDF for a completed inspection.
type InspectionReport struct {
	ID            int64          `json:"id"`
	InspectionID  int64          `json:"inspectionId"`
	FileName      string         `json:"fileName"`
	StorageID     string         `json:"storageId"`
	Link          string         `json:"link"`
	EmailSent     bool           `json:"emailSent"`
	Notifications []Notification `json:"notifications"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// ReportService defines operations for managing inspection reports.
type ReportService interface {
	// CreateReport creates the report record for an inspection.
	// A repeated completion replaces the earlier record for the inspection.
	CreateReport(ctx context.Context, report *InspectionReport) error

	// FindReportByInspectionID retrieves the report for an inspection.
	// Returns ENOTFOUND if the inspection has no report.
	FindReportByInspectionID(ctx context.Context, inspectionID int64) (*InspectionReport, error)

	// UpdateReport records notification outcomes.
	// Returns ENOTFOUND if the report does not exist.
	UpdateReport(ctx context.Context, id int64, upd ReportUpdate) (*InspectionReport, error)
}

// ReportUpdate defines fields that can be updated on a report.
type ReportUpdate struct {
	EmailSent     *bool
	Notifications []Notification
}

// CompletionResult is returned to the client after report completion.
type CompletionResult struct {
	Success       bool           `json:"success"`
	ReportID      int64          `json:"reportId"`
	FileName      string         `json:"fileName"`
	PDFLink       string         `json:"pdfLink"`
	EmailSent     bool           `json:"emailSent"`
	Notifications []Notification `json:"notifications"`
}

// DocumentRenderer lays out an inspection as a printable document.
type DocumentRenderer interface {
	// Render produces the report bytes. It performs no retries.
	Render(ctx context.Context, inspection *Inspection, media []*MediaAttachment) ([]byte, error)
}

// ReportFileName is the stored name of the PDF for an order.
func ReportFileName(orderNumber string) string {
	return "Inspection_" + orderNumber + ".pdf"
}

// PhaseCompletion is the outcome of signing a phase. Report is set when the
// test drive was signed and report completion succeeded.
type PhaseCompletion struct {
	Inspection *Inspection       `json:"inspection"`
	Report     *CompletionResult `json:"report,omitempty"`
}
