package notify

import "context"

// Notification is a fully formatted, channel-agnostic message.
type Notification struct {
	Subject  string
	HTMLBody string
	TextBody string
}

// Channel delivers a formatted notification. Send reports success and must
// never leak errors or panics past its boundary; a channel with missing
// configuration fails closed without attempting network delivery.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) bool
}
