// Package report runs the server side of phase sign-off and the final
// report: render the PDF, store it, record it, notify recipients, and mark
// the inspection final.
package report

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dukerupert/handover"
	"github.com/dukerupert/handover/internal/email"
	"github.com/dukerupert/handover/internal/middleware"
	"github.com/dukerupert/handover/internal/storage"
)

// Config holds the collaborators of a Completer.
type Config struct {
	Inspections handover.InspectionService
	Media       handover.MediaService
	Reports     handover.ReportService
	Renderer    handover.DocumentRenderer
	Storage     handover.FileStorage
	Mailer      handover.Mailer

	// Queue receives phase notification jobs. Nil disables them.
	Queue handover.Queue

	// SupportAddress receives an internal copy of every report when set.
	SupportAddress string

	Logger *slog.Logger
	Now    func() time.Time
}

// Completer signs phases and completes inspections.
type Completer struct {
	cfg    Config
	logger *slog.Logger
}

// NewCompleter creates a Completer.
func NewCompleter(cfg Config) *Completer {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Completer{cfg: cfg, logger: cfg.Logger}
}

// CompletePhase records a phase signature. The test drive can only be
// signed after the on-delivery phase. Signing the on-delivery phase queues
// a staff notification; signing the test drive runs Complete.
//
// If report completion fails the signature stays stored and the error is
// returned; Complete may be retried.
func (c *Completer) CompletePhase(ctx context.Context, id int64, phase handover.Phase, signature string) (*handover.PhaseCompletion, error) {
	if _, err := handover.ParsePhase(string(phase)); err != nil {
		return nil, err
	}

	in, err := c.cfg.Inspections.FindInspectionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := in.CompletePhase(phase, signature, c.cfg.Now()); err != nil {
		return nil, err
	}

	upd := handover.InspectionUpdate{Status: &in.Status}
	switch phase {
	case handover.PhaseOnDelivery:
		upd.OnDelivery = &in.OnDelivery
	case handover.PhaseTestDrive:
		// Final only once the report is done.
		status := handover.StatusTestDriveCompleted
		upd.Status = &status
		upd.TestDrive = &in.TestDrive
	}

	updated, err := c.cfg.Inspections.UpdateInspection(ctx, id, upd)
	if err != nil {
		return nil, err
	}

	c.logger.Info("phase completed",
		slog.String("request_id", handover.RequestIDFromContext(ctx)),
		slog.Int64("inspection_id", id),
		slog.String("order_number", updated.OrderNumber),
		slog.String("phase", string(phase)))

	if phase == handover.PhaseOnDelivery {
		c.enqueuePhaseNotification(ctx, id, phase)
		return &handover.PhaseCompletion{Inspection: updated}, nil
	}

	result, err := c.Complete(ctx, id)
	if err != nil {
		return nil, err
	}
	updated.Status = handover.StatusFinalCompleted
	return &handover.PhaseCompletion{Inspection: updated, Report: result}, nil
}

func (c *Completer) enqueuePhaseNotification(ctx context.Context, id int64, phase handover.Phase) {
	if c.cfg.Queue == nil {
		return
	}
	payload, err := json.Marshal(handover.PhaseNotificationPayload{InspectionID: id, Phase: phase})
	if err != nil {
		c.logger.Error("encoding phase notification", slog.String("error", err.Error()))
		return
	}
	job := &handover.Job{
		QueueName:    handover.QueueNotifications,
		JobType:      handover.JobTypePhaseNotification,
		InspectionID: id,
		Payload:      payload,
	}
	if err := c.cfg.Queue.Enqueue(ctx, job); err != nil {
		c.logger.Error("queueing phase notification",
			slog.Int64("inspection_id", id),
			slog.String("error", err.Error()))
	}
}

// cancelPhaseNotifications drops staff notifications still waiting in the
// queue. The final report reaches the same staff recipients.
func (c *Completer) cancelPhaseNotifications(ctx context.Context, logger *slog.Logger, id int64) {
	if c.cfg.Queue == nil {
		return
	}
	jobs, err := c.cfg.Queue.GetPendingJobs(ctx, id, handover.QueueNotifications)
	if err != nil {
		logger.Warn("listing pending notifications", slog.String("error", err.Error()))
		return
	}
	for _, job := range jobs {
		if job.JobType != handover.JobTypePhaseNotification {
			continue
		}
		if err := c.cfg.Queue.CancelJob(ctx, job.ID); err != nil {
			// A worker may have claimed it in the meantime.
			logger.Debug("cancelling phase notification",
				slog.String("job_id", job.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		logger.Info("phase notification superseded by report", slog.String("job_id", job.ID.String()))
	}
}

// Complete generates, stores, and sends the report for a signed inspection,
// then marks it final. Any failure before the emails aborts with a single
// "Failed to complete inspection" error. Email failures are recorded on the
// report and do not fail the call.
func (c *Completer) Complete(ctx context.Context, id int64) (result *handover.CompletionResult, err error) {
	start := time.Now()
	defer func() {
		middleware.RecordReportCompletion(time.Since(start).Seconds(), err)
	}()

	in, err := c.cfg.Inspections.FindInspectionByID(ctx, id)
	if err != nil {
		if handover.IsErrorCode(err, handover.ENOTFOUND) {
			return nil, err
		}
		return nil, c.fail(id, "fetch inspection", err)
	}
	if in.TestDrive.Status != handover.PhaseStatusCompleted {
		return nil, handover.Invalid("The test drive must be signed before completing the inspection")
	}
	logger := c.logger.With(
		slog.String("request_id", handover.RequestIDFromContext(ctx)),
		slog.Int64("inspection_id", id),
		slog.String("order_number", in.OrderNumber))

	media, err := c.cfg.Media.FindMedia(ctx, handover.MediaFilter{InspectionID: &id})
	if err != nil {
		return nil, c.fail(id, "fetch media", err)
	}

	pdf, err := c.cfg.Renderer.Render(ctx, in, media)
	if err != nil {
		return nil, c.fail(id, "render", err)
	}

	fileName := handover.ReportFileName(in.OrderNumber)
	stored, err := c.cfg.Storage.Upload(ctx, handover.Object{
		Key:         storage.ReportKey(id, in.OrderNumber),
		FileName:    fileName,
		ContentType: "application/pdf",
		Data:        pdf,
	})
	if err != nil {
		return nil, c.fail(id, "upload", err)
	}

	report := &handover.InspectionReport{
		InspectionID: id,
		FileName:     fileName,
		StorageID:    stored.ID,
		Link:         stored.ViewLink,
	}
	if err := c.cfg.Reports.CreateReport(ctx, report); err != nil {
		return nil, c.fail(id, "create report", err)
	}

	notifications := c.notify(ctx, logger, in, report, pdf)
	emailSent := len(notifications) > 0
	for _, n := range notifications {
		emailSent = emailSent && n.Sent
	}

	report, err = c.cfg.Reports.UpdateReport(ctx, report.ID, handover.ReportUpdate{
		EmailSent:     &emailSent,
		Notifications: notifications,
	})
	if err != nil {
		return nil, c.fail(id, "update report", err)
	}

	final := handover.StatusFinalCompleted
	if _, err := c.cfg.Inspections.UpdateInspection(ctx, id, handover.InspectionUpdate{Status: &final}); err != nil {
		return nil, c.fail(id, "finalize", err)
	}
	c.cancelPhaseNotifications(ctx, logger, id)

	logger.Info("inspection completed",
		slog.Int64("report_id", report.ID),
		slog.Bool("email_sent", emailSent),
		slog.Duration("duration", time.Since(start)))

	return &handover.CompletionResult{
		Success:       true,
		ReportID:      report.ID,
		FileName:      report.FileName,
		PDFLink:       report.Link,
		EmailSent:     emailSent,
		Notifications: notifications,
	}, nil
}

func (c *Completer) fail(id int64, step string, err error) error {
	c.logger.Error("inspection completion failed",
		slog.Int64("inspection_id", id),
		slog.String("step", step),
		slog.String("error", err.Error()))
	return handover.Unavailable("Failed to complete inspection", err)
}

type recipient struct {
	category handover.RecipientCategory
	address  string
	internal bool
}

func (c *Completer) recipients(in *handover.Inspection) []recipient {
	var rs []recipient
	if in.SalesRepEmail != "" {
		rs = append(rs, recipient{handover.RecipientRepresentative, in.SalesRepEmail, true})
	}
	if in.CustomerEmail != "" {
		rs = append(rs, recipient{handover.RecipientCustomer, in.CustomerEmail, false})
	}
	if c.cfg.SupportAddress != "" {
		rs = append(rs, recipient{handover.RecipientSupport, c.cfg.SupportAddress, true})
	}
	return rs
}

// notify sends one message per recipient category and records each outcome.
func (c *Completer) notify(ctx context.Context, logger *slog.Logger, in *handover.Inspection, report *handover.InspectionReport, pdf []byte) []handover.Notification {
	var out []handover.Notification
	for _, r := range c.recipients(in) {
		n := handover.Notification{Category: r.category, Recipient: r.address}

		msg, err := email.ReportEmail(r.address, email.ReportData{
			Inspection: in,
			Link:       report.Link,
			FileName:   report.FileName,
			PDF:        pdf,
			Internal:   r.internal,
		})
		if err == nil {
			err = c.cfg.Mailer.Send(ctx, msg)
		}

		if err != nil {
			n.Error = err.Error()
			logger.Warn("report email failed",
				slog.String("category", string(r.category)),
				slog.String("error", err.Error()))
		} else {
			n.Sent = true
		}
		middleware.RecordNotification(string(r.category), n.Sent)
		out = append(out, n)
	}
	return out
}
