package mail

import "context"

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer defines an interface for delivering email receipts.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
