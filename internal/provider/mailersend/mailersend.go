// Package mailersend forwards messages through the MailerSend
// transactional email API.
package mailersend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.io/infrasutra/mailbridge/internal/message"
	"github.io/infrasutra/mailbridge/internal/provider"
)

const defaultEndpoint = "https://api.mailersend.com/v1/email"

// Adapter sends messages via the MailerSend v1 email endpoint using the
// session token as a bearer credential.
type Adapter struct {
	// Endpoint may be overridden in tests.
	Endpoint string

	client *http.Client
}

// New creates a MailerSend adapter. A nil client gets a default with a
// 30 second timeout.
func New(client *http.Client) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Adapter{Endpoint: defaultEndpoint, client: client}
}

func (a *Adapter) Name() string { return "mailersend" }

type mailbox struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type payload struct {
	From    mailbox   `json:"from"`
	To      []mailbox `json:"to"`
	Subject string    `json:"subject"`
	Cc      []mailbox `json:"cc,omitempty"`
	Bcc     []mailbox `json:"bcc,omitempty"`
	HTML    string    `json:"html,omitempty"`
	Text    string    `json:"text,omitempty"`
}

// Forward re-decodes the raw payload, builds the MailerSend JSON body and
// POSTs it. The message must carry a From address and at least one To
// recipient; both are validated before any HTTP call is made.
func (a *Adapter) Forward(ctx context.Context, req provider.Request) (*provider.Outcome, error) {
	parsed, err := message.Decode(req.Raw)
	if err != nil {
		return nil, fmt.Errorf("mailersend: decode message: %w", err)
	}

	if parsed.From == nil {
		return nil, fmt.Errorf("mailersend requires a From address")
	}
	to := mailboxes(parsed.To)
	if len(to) == 0 {
		return nil, fmt.Errorf("mailersend requires at least one To recipient")
	}

	body := payload{
		From:    mailbox{Email: parsed.From.Email, Name: parsed.From.Name},
		To:      to,
		Subject: parsed.Subject,
		Cc:      mailboxes(parsed.Cc),
		Bcc:     mailboxes(parsed.Bcc),
		HTML:    parsed.HTML,
		Text:    parsed.Text,
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("mailersend: encode payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("mailersend: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mailersend: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mailersend: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &provider.StatusError{Provider: "mailersend", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return &provider.Outcome{StatusCode: resp.StatusCode, Body: string(respBody)}, nil
}

func mailboxes(list []message.Mailbox) []mailbox {
	var out []mailbox
	for _, m := range list {
		if m.Email == "" {
			continue
		}
		out = append(out, mailbox{Email: m.Email, Name: m.Name})
	}
	return out
}
