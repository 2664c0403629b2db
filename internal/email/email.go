// Package email provides handover.Mailer implementations and the report
// and phase notification messages.
package email

import (
	"context"
	"log/slog"

	"github.com/dukerupert/handover"
)

// Compile-time interface checks
var (
	_ handover.Mailer = (*LogMailer)(nil)
	_ handover.Mailer = (*PostmarkMailer)(nil)
	_ handover.Mailer = (*SendGridMailer)(nil)
)

// NewMailer creates a mailer based on the provider configuration. A
// provider without credentials falls back to logging.
func NewMailer(logger *slog.Logger, cfg handover.EmailConfig) handover.Mailer {
	switch cfg.Provider {
	case "postmark":
		if cfg.PostmarkServerToken != "" {
			return NewPostmarkMailer(logger, cfg)
		}
		logger.Warn("postmark server token not set, email delivery disabled")
	case "sendgrid":
		if cfg.SendGridAPIKey != "" {
			return NewSendGridMailer(logger, cfg)
		}
		logger.Warn("sendgrid API key not set, email delivery disabled")
	}
	return NewLogMailer(logger)
}

// LogMailer logs messages instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a mailer that only logs.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the message and reports that delivery is disabled.
func (m *LogMailer) Send(ctx context.Context, email *handover.Email) error {
	m.logger.Info("email not sent, delivery disabled",
		slog.Any("to", email.To),
		slog.Any("cc", email.Cc),
		slog.String("subject", email.Subject),
		slog.Int("attachments", len(email.Attachments)),
	)
	return handover.ErrEmailDisabled
}

// fromHeader formats the sender as "Name <address>".
func fromHeader(cfg handover.EmailConfig) string {
	if cfg.FromName == "" {
		return cfg.FromAddress
	}
	return cfg.FromName + " <" + cfg.FromAddress + ">"
}
