package mock

import (
	"context"
	"time"

	"github.com/dukerupert/handover"
)

// Compile-time interface checks
var (
	_ handover.ReportService    = (*ReportService)(nil)
	_ handover.DocumentRenderer = (*DocumentRenderer)(nil)
)

// ReportService is a mock implementation of handover.ReportService.
type ReportService struct {
	CreateReportFn             func(ctx context.Context, report *handover.InspectionReport) error
	FindReportByInspectionIDFn func(ctx context.Context, inspectionID int64) (*handover.InspectionReport, error)
	UpdateReportFn             func(ctx context.Context, id int64, upd handover.ReportUpdate) (*handover.InspectionReport, error)
}

func (s *ReportService) CreateReport(ctx context.Context, report *handover.InspectionReport) error {
	if s.CreateReportFn != nil {
		return s.CreateReportFn(ctx, report)
	}
	report.ID = 1
	report.CreatedAt = time.Now()
	return nil
}

func (s *ReportService) FindReportByInspectionID(ctx context.Context, inspectionID int64) (*handover.InspectionReport, error) {
	if s.FindReportByInspectionIDFn != nil {
		return s.FindReportByInspectionIDFn(ctx, inspectionID)
	}
	return nil, handover.NotFound("Report not found")
}

func (s *ReportService) UpdateReport(ctx context.Context, id int64, upd handover.ReportUpdate) (*handover.InspectionReport, error) {
	if s.UpdateReportFn != nil {
		return s.UpdateReportFn(ctx, id, upd)
	}
	return nil, handover.NotFound("Report not found")
}

// DocumentRenderer is a mock implementation of handover.DocumentRenderer.
type DocumentRenderer struct {
	RenderFn func(ctx context.Context, inspection *handover.Inspection, media []*handover.MediaAttachment) ([]byte, error)

	Calls int
}

func (r *DocumentRenderer) Render(ctx context.Context, inspection *handover.Inspection, media []*handover.MediaAttachment) ([]byte, error) {
	r.Calls++
	if r.RenderFn != nil {
		return r.RenderFn(ctx, inspection, media)
	}
	return []byte("%PDF-1.4 mock"), nil
}
