// Package provider defines the contract shared by the delivery provider
// adapters and the policy that maps their failures to SMTP reply codes.
package provider

import (
	"context"
	"fmt"

	"github.io/infrasutra/mailbridge/internal/message"
)

// Request carries everything an adapter may need to forward one message.
// Adapters pick what they use: MailerSend and Postmark rebuild a structured
// payload, Mailgun ships Raw untouched and derives the sending domain from
// the SMTP login.
type Request struct {
	Raw    []byte
	Parsed *message.Message
	Token  string
	Login  string
}

// Outcome reports a completed forward: the provider's HTTP status and
// response body.
type Outcome struct {
	StatusCode int
	Body       string
}

// Sender is implemented once per delivery provider.
type Sender interface {
	// Forward delivers the message through the provider. A non-2xx provider
	// response is returned as a *StatusError.
	Forward(ctx context.Context, req Request) (*Outcome, error)

	// Name returns the provider's lowercase identifier.
	Name() string
}

// StatusError is a provider response outside the 2xx range. It keeps the
// upstream status code structured so reply classification does not have to
// rely on the rendered message alone.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}
