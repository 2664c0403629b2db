package handover

import "context"

// Mailer sends a single email message. Each recipient category is sent as
// its own message so failures can be tracked separately.
type Mailer interface {
	// Send delivers the message. Providers that are not configured log the
	// message and return ErrEmailDisabled instead of sending.
	Send(ctx context.Context, email *Email) error
}

// ErrEmailDisabled is returned when no email provider is configured.
var ErrEmailDisabled = &Error{Code: EUNAVAILABLE, Message: "Email delivery is not configured"}

// Email represents an email message.
type Email struct {
	To          []string
	Cc          []string
	Subject     string
	HTMLBody    string
	TextBody    string
	Tag         string
	Attachments []Attachment
}

// Attachment is a file sent with an email.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// EmailConfig holds configuration for email services.
type EmailConfig struct {
	// Provider is the email provider ("log", "postmark", or "sendgrid").
	Provider string

	// FromAddress is the sender email address.
	FromAddress string

	// FromName is the sender display name.
	FromName string

	// SupportAddress receives an internal copy of every report when set.
	SupportAddress string

	// Postmark-specific configuration
	PostmarkServerToken  string
	PostmarkAccountToken string

	// SendGrid-specific configuration
	SendGridAPIKey string
}
