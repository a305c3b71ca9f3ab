package auth

import (
	"context"
	"log/slog"
	"sync"
)

// Message is an outgoing auth email.
type Message struct {
	To      string
	Subject string
	Link    string
}

// Mailer delivers auth emails.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "auth email", "to", msg.To, "subject", msg.Subject, "link", msg.Link)
	return nil
}

// OutboxMailer keeps sent messages in memory, for demos and tests.
type OutboxMailer struct {
	mu   sync.Mutex
	sent []Message
}

func (m *OutboxMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Last returns the most recent message sent to address.
func (m *OutboxMailer) Last(address string) (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == address {
			return m.sent[i], true
		}
	}
	return Message{}, false
}
