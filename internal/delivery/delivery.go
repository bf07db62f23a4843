// Package delivery implements the outbound email and SMS channels used for
// best-effort notification delivery. Failures here are logged and counted,
// never propagated to the request path.
package delivery

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a channel has no credentials. Callers
// treat it like any other delivery failure.
var ErrNotConfigured = errors.New("delivery channel not configured")

// EmailSender sends a single email to one recipient.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMSSender sends a single text message to one phone number.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}
