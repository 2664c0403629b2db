package http

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/dukerupert/handover"
	"github.com/dukerupert/handover/internal/audit"
	"github.com/dukerupert/handover/internal/validation"
	"github.com/labstack/echo/v4"
)

// handleCompletePhase signs a phase. Signing the test drive also completes
// the inspection and returns the report outcome.
func (s *Server) handleCompletePhase(c echo.Context) error {
	id, err := requireIDParam(c, "id")
	if err != nil {
		return err
	}
	phase, err := handover.ParsePhase(c.Param("phase"))
	if err != nil {
		return err
	}

	var req validation.PhaseCompleteRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := withLongTimeout(c)
	defer cancel()

	completion, err := s.completer.CompletePhase(ctx, id, phase, req.Signature)
	if err != nil {
		return err
	}

	s.log(c).Info("phase completed",
		slog.Int64("inspection_id", id),
		slog.String("phase", string(phase)),
		slog.Bool("report", completion.Report != nil))
	s.record(c, id, audit.ActionPhaseSigned, map[string]any{"phase": string(phase)})
	if completion.Report != nil {
		s.record(c, id, audit.ActionCompleted, completionDetails(completion.Report))
	}

	return RespondOK(c, completion)
}

// handleCompleteInspection reruns report completion for an inspection whose
// test drive is signed.
func (s *Server) handleCompleteInspection(c echo.Context) error {
	id, err := requireIDParam(c, "id")
	if err != nil {
		return err
	}

	ctx, cancel := withLongTimeout(c)
	defer cancel()

	result, err := s.completer.Complete(ctx, id)
	if err != nil {
		return err
	}
	s.record(c, id, audit.ActionCompleted, completionDetails(result))
	return RespondOK(c, result)
}

func completionDetails(r *handover.CompletionResult) map[string]any {
	return map[string]any{
		"reportId":  r.ReportID,
		"fileName":  r.FileName,
		"emailSent": r.EmailSent,
	}
}

// handleGetHistory lists the audit history of an inspection as JSON, or as
// a CSV download with ?format=csv.
func (s *Server) handleGetHistory(c echo.Context) error {
	id, err := requireIDParam(c, "id")
	if err != nil {
		return err
	}
	if s.auditLog == nil {
		return handover.Unavailable("Inspection history is not enabled", nil)
	}
	limit, err := queryInt(c, "limit", 500)
	if err != nil {
		return err
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	if _, err := s.inspectionService.FindInspectionByID(ctx, id); err != nil {
		return err
	}
	entries, err := s.auditLog.History(ctx, id, limit, offset)
	if err != nil {
		return err
	}

	if c.QueryParam("format") != "csv" {
		return RespondOK(c, entries)
	}
	return RespondCSV(c, fmt.Sprintf("inspection-%d-history.csv", id), func(w io.Writer) error {
		return audit.WriteCSV(w, entries)
	})
}

func (s *Server) handleGetReport(c echo.Context) error {
	id, err := requireIDParam(c, "id")
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	report, err := s.reportService.FindReportByInspectionID(ctx, id)
	if err != nil {
		return err
	}
	return RespondOK(c, report)
}
