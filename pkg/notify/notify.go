// Package notify delivers push notifications to mobile devices. Delivery is
// fire-and-forget from the domain's perspective: callers log failures and
// move on.
package notify

import "context"

// Payload is the push message contract shared with the delivery transport.
type Payload struct {
	TargetToken string            `json:"targetToken"`
	Data        map[string]string `json:"data,omitempty"`
	Title       string            `json:"notificationTitle"`
	Body        string            `json:"notificationBody"`
}

// Notifier submits one payload to a device.
type Notifier interface {
	Send(ctx context.Context, p Payload) error
}

// Nop drops every payload. Used when no push transport is configured.
type Nop struct{}

// Send discards the payload.
func (Nop) Send(context.Context, Payload) error { return nil }
