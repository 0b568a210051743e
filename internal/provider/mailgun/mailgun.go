// Package mailgun forwards messages through Mailgun's raw-MIME send API.
//
// Unlike the JSON providers, Mailgun accepts the message exactly as it came
// off the wire, so original headers, encodings and attachments survive
// untouched. The sending domain is scoped per request and derived from the
// SMTP login.
package mailgun

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.io/infrasutra/mailbridge/internal/message"
	"github.io/infrasutra/mailbridge/internal/provider"
)

const defaultBaseURL = "https://api.mailgun.net/v3"

// Adapter sends messages via Mailgun's domain-scoped messages.mime
// endpoint using HTTP Basic auth with the fixed "api" user and the session
// token as password.
type Adapter struct {
	// BaseURL may be overridden in tests.
	BaseURL string

	client *http.Client
}

// New creates a Mailgun adapter. A nil client gets a default with a
// 30 second timeout.
func New(client *http.Client) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Adapter{BaseURL: defaultBaseURL, client: client}
}

func (a *Adapter) Name() string { return "mailgun" }

// DomainFromLogin resolves the Mailgun sending domain from the SMTP login:
// the part after the last "@", or the whole login when no "@" is present.
func DomainFromLogin(login string) string {
	login = strings.TrimSpace(login)
	if idx := strings.LastIndex(login, "@"); idx >= 0 {
		return login[idx+1:]
	}
	return login
}

// Forward posts the raw MIME payload as a message/rfc822 form file. Mailgun
// derives the envelope sender from the MIME content, so only a resolvable
// To list is required.
func (a *Adapter) Forward(ctx context.Context, req provider.Request) (*provider.Outcome, error) {
	if req.Parsed == nil {
		return nil, fmt.Errorf("mailgun: no decoded message available")
	}
	to := message.FormatList(req.Parsed.To)
	if to == "" {
		return nil, fmt.Errorf("mailgun could not determine a To header")
	}

	domain := DomainFromLogin(req.Login)

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	if err := writer.WriteField("to", to); err != nil {
		return nil, fmt.Errorf("mailgun: build form: %w", err)
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="message"; filename="message.eml"`)
	header.Set("Content-Type", "message/rfc822")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("mailgun: build form: %w", err)
	}
	if _, err := part.Write(req.Raw); err != nil {
		return nil, fmt.Errorf("mailgun: build form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("mailgun: build form: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages.mime", a.BaseURL, url.PathEscape(domain))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &form)
	if err != nil {
		return nil, fmt.Errorf("mailgun: build request: %w", err)
	}
	httpReq.SetBasicAuth("api", req.Token)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mailgun: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mailgun: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &provider.StatusError{Provider: "mailgun", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return &provider.Outcome{StatusCode: resp.StatusCode, Body: string(respBody)}, nil
}
