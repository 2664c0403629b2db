package mock

import (
	"context"
	"sync"

	"github.com/dukerupert/handover"
)

// Compile-time interface check
var _ handover.Mailer = (*Mailer)(nil)

// Mailer is a mock implementation of handover.Mailer.
type Mailer struct {
	SendFn func(ctx context.Context, email *handover.Email) error

	// Tracking sent emails for assertions
	mu         sync.Mutex
	SentEmails []*handover.Email
}

func (m *Mailer) Send(ctx context.Context, email *handover.Email) error {
	m.mu.Lock()
	m.SentEmails = append(m.SentEmails, email)
	m.mu.Unlock()

	if m.SendFn != nil {
		return m.SendFn(ctx, email)
	}
	return nil
}

// Reset clears all sent emails.
func (m *Mailer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentEmails = nil
}

// LastEmail returns the last sent email, or nil if none.
func (m *Mailer) LastEmail() *handover.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.SentEmails) == 0 {
		return nil
	}
	return m.SentEmails[len(m.SentEmails)-1]
}

// EmailsSentTo returns all emails whose To list contains the address.
func (m *Mailer) EmailsSentTo(to string) []*handover.Email {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*handover.Email
	for _, email := range m.SentEmails {
		for _, addr := range email.To {
			if addr == to {
				result = append(result, email)
				break
			}
		}
	}
	return result
}
