package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/handover"
	"github.com/dukerupert/handover/internal/email"
)

// Compile-time interface check
var _ handover.JobHandler = (*PhaseNotifier)(nil)

// PhaseNotifier handles phase_notification jobs by emailing the
// representative and support that a phase was signed.
type PhaseNotifier struct {
	inspections    handover.InspectionService
	mailer         handover.Mailer
	supportAddress string
	logger         *slog.Logger
}

// NewPhaseNotifier creates the job handler.
func NewPhaseNotifier(inspections handover.InspectionService, mailer handover.Mailer, supportAddress string, logger *slog.Logger) *PhaseNotifier {
	return &PhaseNotifier{
		inspections:    inspections,
		mailer:         mailer,
		supportAddress: supportAddress,
		logger:         logger,
	}
}

// Handle sends the notification. A disabled mailer is not retried.
func (n *PhaseNotifier) Handle(ctx context.Context, job *handover.Job) error {
	var p handover.PhaseNotificationPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}

	in, err := n.inspections.FindInspectionByID(ctx, p.InspectionID)
	if err != nil {
		return fmt.Errorf("fetching inspection: %w", err)
	}

	var to []string
	for _, addr := range []string{in.SalesRepEmail, n.supportAddress} {
		if addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		n.logger.Debug("no recipients for phase notification", slog.Int64("inspection_id", in.ID))
		return nil
	}

	msg, err := email.PhaseEmail(to, in, p.Phase)
	if err != nil {
		return err
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		if errors.Is(err, handover.ErrEmailDisabled) {
			return nil
		}
		return err
	}

	n.logger.Info("phase notification sent",
		slog.Int64("inspection_id", in.ID),
		slog.String("phase", string(p.Phase)))
	return nil
}
