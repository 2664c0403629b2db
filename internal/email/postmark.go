package email

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"

	"github.com/dukerupert/handover"
	"github.com/keighl/postmark"
)

// PostmarkMailer sends emails via Postmark.
type PostmarkMailer struct {
	client *postmark.Client
	logger *slog.Logger
	config handover.EmailConfig
}

// NewPostmarkMailer creates a new Postmark mailer.
func NewPostmarkMailer(logger *slog.Logger, config handover.EmailConfig) *PostmarkMailer {
	client := postmark.NewClient(config.PostmarkServerToken, config.PostmarkAccountToken)
	return &PostmarkMailer{
		client: client,
		logger: logger,
		config: config,
	}
}

// Send delivers one message. The Postmark client has no context support, so
// cancellation is only honored before the request starts.
func (m *PostmarkMailer) Send(ctx context.Context, email *handover.Email) error {
	if err := ctx.Err(); err != nil {
		return handover.WrapError(handover.ETIMEOUT, "Email was not sent", err)
	}

	msg := postmark.Email{
		From:       fromHeader(m.config),
		To:         strings.Join(email.To, ","),
		Cc:         strings.Join(email.Cc, ","),
		Subject:    email.Subject,
		HtmlBody:   email.HTMLBody,
		TextBody:   email.TextBody,
		Tag:        email.Tag,
		TrackOpens: true,
	}
	for _, a := range email.Attachments {
		msg.Attachments = append(msg.Attachments, postmark.Attachment{
			Name:        a.Name,
			Content:     base64.StdEncoding.EncodeToString(a.Data),
			ContentType: a.ContentType,
		})
	}

	if _, err := m.client.SendEmail(msg); err != nil {
		m.logger.Error("failed to send email via Postmark",
			slog.Any("to", email.To),
			slog.String("tag", email.Tag),
			slog.String("error", err.Error()),
		)
		return handover.Unavailable("Failed to send email", err)
	}

	m.logger.Info("email sent via Postmark",
		slog.Any("to", email.To),
		slog.String("tag", email.Tag),
	)
	return nil
}
