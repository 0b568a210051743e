// Package smtpserver runs the relay's SMTP listeners. Each session
// authenticates with a provider API token as its password, buffers one
// message and hands it to the adapter for the token's provider.
package smtpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.io/infrasutra/mailbridge/internal/message"
	"github.io/infrasutra/mailbridge/internal/provider"
	"github.io/infrasutra/mailbridge/internal/sse"
	"github.io/infrasutra/mailbridge/internal/store"
	"github.io/infrasutra/mailbridge/internal/token"
)

// Options configures one SMTP listener.
type Options struct {
	Addr    string
	Port    int
	Domain  string
	Senders map[token.Provider]provider.Sender
	Store   *store.Store
	Hub     *sse.Hub
	Logger  *slog.Logger
}

type Server struct {
	smtp   *smtp.Server
	logger *slog.Logger
}

func New(opts Options) *Server {
	backend := &backend{
		senders: opts.Senders,
		store:   opts.Store,
		hub:     opts.Hub,
		logger:  opts.Logger,
		port:    opts.Port,
	}
	server := smtp.NewServer(backend)
	server.Addr = opts.Addr
	server.Domain = opts.Domain
	server.AllowInsecureAuth = true
	server.ReadTimeout = 60 * time.Second
	server.WriteTimeout = 60 * time.Second
	server.MaxRecipients = 100
	server.MaxMessageBytes = 25 << 20

	return &Server{smtp: server, logger: opts.Logger}
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("smtp server listening", "addr", s.smtp.Addr)
	return s.smtp.ListenAndServe()
}

func (s *Server) Close() error {
	return s.smtp.Close()
}

type backend struct {
	senders map[token.Provider]provider.Sender
	store   *store.Store
	hub     *sse.Hub
	logger  *slog.Logger
	port    int
}

func (b *backend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &session{backend: b}, nil
}

type session struct {
	backend       *backend
	login         string
	token         string
	authenticated bool
	from          string
	to            []string
}

func (s *session) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, smtp.ErrAuthUnsupported
	}
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username == "" || password == "" {
			return &smtp.SMTPError{
				Code:         535,
				EnhancedCode: smtp.EnhancedCode{5, 7, 8},
				Message:      "Authentication required",
			}
		}
		// The password is an API token for one of the delivery providers;
		// its shape is checked again before forwarding.
		s.login = username
		s.token = password
		s.authenticated = true
		return nil
	}), nil
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	if !s.authenticated {
		return smtp.ErrAuthRequired
	}
	s.from = from
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	if !s.authenticated {
		return smtp.ErrAuthRequired
	}
	s.to = append(s.to, to)
	return nil
}

// Data buffers the full message and forwards it. Every failure surfaces as
// an SMTP reply; nothing escapes the session.
func (s *session) Data(r io.Reader) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.backend.logger.Error("panic while forwarding", "panic", recovered, "port", s.backend.port)
			err = &smtp.SMTPError{
				Code:         451,
				EnhancedCode: smtp.EnhancedCode{4, 0, 0},
				Message:      fmt.Sprintf("internal error: %v", recovered),
			}
		}
	}()

	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return s.backend.forward(s, raw)
}

func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *session) Logout() error {
	return nil
}

func (b *backend) forward(s *session, raw []byte) error {
	ctx := context.Background()

	// The token was accepted at AUTH time but is classified here, right
	// before it is used, so a stale session can never pick a provider by
	// accident.
	prov, err := token.Classify(s.token)
	if err != nil {
		b.logger.Error("token classification failed", "login", s.login, "port", b.port)
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 8},
			Message:      "invalid API token",
		}
	}

	parsed, err := message.Decode(raw)
	if err != nil {
		b.logger.Error("decode message failed", "error", err, "port", b.port)
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 4, 0},
			Message:      fmt.Sprintf("unable to process message: %v", err),
		}
	}

	from := ""
	if parsed.From != nil {
		from = parsed.From.Format()
	}
	b.logger.Info("received message",
		"port", b.port,
		"provider", prov.String(),
		"login", s.login,
		"from", from,
		"to", message.FormatList(parsed.To),
		"subject", parsed.Subject,
		"size", len(raw),
	)

	sender, ok := b.senders[prov]
	if !ok {
		b.logger.Error("no adapter registered", "provider", prov.String(), "port", b.port)
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "provider not available",
		}
	}

	outcome, err := sender.Forward(ctx, provider.Request{
		Raw:    raw,
		Parsed: parsed,
		Token:  s.token,
		Login:  s.login,
	})
	if err != nil {
		code := provider.ReplyCode(err)
		b.logger.Error("forward failed",
			"provider", prov.String(),
			"error", err.Error(),
			"port", b.port,
		)
		b.record(ctx, parsed, prov, int64(len(raw)), store.StatusFailed, code, err.Error())

		enhanced := smtp.EnhancedCode{5, 5, 0}
		if code == provider.ReplyTransient {
			enhanced = smtp.EnhancedCode{4, 4, 0}
		}
		return &smtp.SMTPError{Code: code, EnhancedCode: enhanced, Message: err.Error()}
	}

	b.logger.Info("forwarded message",
		"provider", prov.String(),
		"status", outcome.StatusCode,
		"port", b.port,
	)
	b.record(ctx, parsed, prov, int64(len(raw)), store.StatusDelivered, 250, fmt.Sprintf("HTTP %d", outcome.StatusCode))
	return nil
}

// record appends to the audit log and notifies stream subscribers. The log
// is best effort: a storage failure must not fail an already-forwarded
// message.
func (b *backend) record(ctx context.Context, parsed *message.Message, prov token.Provider, size int64, status string, smtpCode int, detail string) {
	from := ""
	if parsed.From != nil {
		from = parsed.From.Email
	}
	delivery := store.Delivery{
		ID:        uuid.NewString(),
		Provider:  prov.String(),
		From:      from,
		To:        message.Emails(parsed.To),
		Subject:   parsed.Subject,
		Size:      size,
		Status:    status,
		SMTPCode:  smtpCode,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := b.store.InsertDelivery(ctx, delivery); err != nil {
		b.logger.Error("record delivery", "error", err)
		return
	}
	b.hub.Broadcast(deliveryEvent(delivery))
}

func deliveryEvent(d store.Delivery) []byte {
	payload := map[string]any{
		"id":        d.ID,
		"provider":  d.Provider,
		"status":    d.Status,
		"from":      d.From,
		"subject":   d.Subject,
		"createdAt": d.CreatedAt.Format(time.RFC3339),
	}
	data, _ := json.Marshal(payload)
	return []byte(fmt.Sprintf("event: delivery\ndata: %s\n\n", data))
}
