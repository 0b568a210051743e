// Package postmark forwards messages through the Postmark email API.
package postmark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.io/infrasutra/mailbridge/internal/message"
	"github.io/infrasutra/mailbridge/internal/provider"
)

const defaultEndpoint = "https://api.postmarkapp.com/email"

// Adapter sends messages via the Postmark single-email endpoint. The
// session token is a Postmark server token passed in the
// X-Postmark-Server-Token header.
type Adapter struct {
	// Endpoint may be overridden in tests.
	Endpoint string

	client *http.Client
}

// New creates a Postmark adapter. A nil client gets a default with a
// 30 second timeout.
func New(client *http.Client) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Adapter{Endpoint: defaultEndpoint, client: client}
}

func (a *Adapter) Name() string { return "postmark" }

// Postmark takes flat capitalized fields with comma-joined bare addresses
// rather than mailbox objects.
type payload struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	Cc       string `json:"Cc,omitempty"`
	Bcc      string `json:"Bcc,omitempty"`
	HTMLBody string `json:"HtmlBody,omitempty"`
	TextBody string `json:"TextBody,omitempty"`
}

// Forward re-decodes the raw payload and POSTs the Postmark JSON body.
// Validation matches MailerSend: From and at least one To are required
// before any HTTP call is made.
func (a *Adapter) Forward(ctx context.Context, req provider.Request) (*provider.Outcome, error) {
	parsed, err := message.Decode(req.Raw)
	if err != nil {
		return nil, fmt.Errorf("postmark: decode message: %w", err)
	}

	if parsed.From == nil {
		return nil, fmt.Errorf("postmark requires a From address")
	}
	to := message.Emails(parsed.To)
	if len(to) == 0 {
		return nil, fmt.Errorf("postmark requires at least one To recipient")
	}

	body := payload{
		From:     parsed.From.Format(),
		To:       strings.Join(to, ","),
		Subject:  parsed.Subject,
		Cc:       strings.Join(message.Emails(parsed.Cc), ","),
		Bcc:      strings.Join(message.Emails(parsed.Bcc), ","),
		HTMLBody: parsed.HTML,
		TextBody: parsed.Text,
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("postmark: encode payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("postmark: build request: %w", err)
	}
	httpReq.Header.Set("X-Postmark-Server-Token", req.Token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("postmark: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("postmark: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &provider.StatusError{Provider: "postmark", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return &provider.Outcome{StatusCode: resp.StatusCode, Body: string(respBody)}, nil
}
