package mail

import "context"

// Message is one outbound email.
type Message struct {
	To       []string
	Subject  string
	TextBody string
	HTMLBody string
}

// Sender delivers messages. Implementations must be safe for
// concurrent use; the worker sends from multiple task handlers.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
