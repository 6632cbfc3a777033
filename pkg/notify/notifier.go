// Package notify delivers outbound messages over email and Telegram.
package notify

import (
	"context"
	"errors"
	"strings"
)

// ErrNoRecipients is returned when a message has nowhere to go.
var ErrNoRecipients = errors.New("no recipients")

// Attachment is a file carried by channels that support it.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a channel-neutral notification.
type Message struct {
	To          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Notifier sends a message over a single channel.
type Notifier interface {
	Channel() string
	Send(ctx context.Context, msg Message) error
}

// Multi fans a message out to every channel and joins the failures.
type Multi []Notifier

// Channel implements Notifier.
func (m Multi) Channel() string {
	names := make([]string, 0, len(m))
	for _, n := range m {
		names = append(names, n.Channel())
	}
	return strings.Join(names, "+")
}

// Send implements Notifier.
func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, msg); err != nil && !errors.Is(err, ErrNoRecipients) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
