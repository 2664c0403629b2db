package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/dukerupert/handover"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridMailer sends emails via the SendGrid v3 API.
type SendGridMailer struct {
	client *sendgrid.Client
	logger *slog.Logger
	config handover.EmailConfig
}

// NewSendGridMailer creates a new SendGrid mailer.
func NewSendGridMailer(logger *slog.Logger, config handover.EmailConfig) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(config.SendGridAPIKey),
		logger: logger,
		config: config,
	}
}

// Send delivers one message. Any non-2xx response is a failure.
func (m *SendGridMailer) Send(ctx context.Context, email *handover.Email) error {
	message := buildSendGridMessage(m.config, email)

	resp, err := m.client.SendWithContext(ctx, message)
	if err == nil && resp.StatusCode >= 300 {
		err = fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	if err != nil {
		m.logger.Error("failed to send email via SendGrid",
			slog.Any("to", email.To),
			slog.String("tag", email.Tag),
			slog.String("error", err.Error()),
		)
		if ctx.Err() != nil {
			return handover.WrapError(handover.ETIMEOUT, "Email was not sent", err)
		}
		return handover.Unavailable("Failed to send email", err)
	}

	m.logger.Info("email sent via SendGrid",
		slog.Any("to", email.To),
		slog.String("tag", email.Tag),
		slog.Int("status", resp.StatusCode),
	)
	return nil
}

func buildSendGridMessage(cfg handover.EmailConfig, email *handover.Email) *mail.SGMailV3 {
	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(cfg.FromName, cfg.FromAddress))
	message.Subject = email.Subject

	p := mail.NewPersonalization()
	for _, to := range email.To {
		p.AddTos(mail.NewEmail("", to))
	}
	for _, cc := range email.Cc {
		p.AddCCs(mail.NewEmail("", cc))
	}
	message.AddPersonalizations(p)

	if email.TextBody != "" {
		message.AddContent(mail.NewContent("text/plain", email.TextBody))
	}
	if email.HTMLBody != "" {
		message.AddContent(mail.NewContent("text/html", email.HTMLBody))
	}
	if email.Tag != "" {
		message.AddCategories(email.Tag)
	}

	for _, a := range email.Attachments {
		attachment := mail.NewAttachment()
		attachment.SetContent(base64.StdEncoding.EncodeToString(a.Data))
		attachment.SetType(a.ContentType)
		attachment.SetFilename(a.Name)
		attachment.SetDisposition("attachment")
		message.AddAttachment(attachment)
	}
	return message
}
