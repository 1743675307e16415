// Package notify delivers terminal-outcome alerts to a human. Two transports
// are supported: an email-to-SMS gateway and a Discord webhook. Both are
// nil-safe — when unconfigured, sends are silent no-ops — and a failure to
// notify is logged by callers, never fatal to the scheduling loop.
package notify

import "context"

// Notifier sends one human-readable message. Fire-and-forget from the
// scheduler's perspective.
type Notifier interface {
	Send(ctx context.Context, subject, body string) error
}

// Multi fans a message out to every configured notifier. An empty Multi is a
// valid no-op notifier.
type Multi []Notifier

// Send delivers to all notifiers, returning the first error encountered
// after attempting every one.
func (m Multi) Send(ctx context.Context, subject, body string) error {
	var first error
	for _, n := range m {
		if err := n.Send(ctx, subject, body); err != nil && first == nil {
			first = err
		}
	}
	return first
}
