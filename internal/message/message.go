// Package message decodes raw MIME payloads into the view the provider
// adapters consume: sender, recipients, subject and bodies.
package message

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"
)

// Mailbox is a single addressable recipient or sender.
type Mailbox struct {
	Email string
	Name  string
}

// Format renders the mailbox as an RFC 5322 style display string:
// "Name <email>" when a display name is present, the bare email otherwise.
func (m Mailbox) Format() string {
	if m.Name != "" {
		return m.Name + " <" + m.Email + ">"
	}
	return m.Email
}

// Message is the decoded, read-only view of one raw MIME payload.
type Message struct {
	From    *Mailbox
	To      []Mailbox
	Cc      []Mailbox
	Bcc     []Mailbox
	Subject string
	Text    string
	HTML    string
}

// FormatList comma-joins the formatted mailboxes.
func FormatList(list []Mailbox) string {
	parts := make([]string, 0, len(list))
	for _, m := range list {
		if m.Email == "" {
			continue
		}
		parts = append(parts, m.Format())
	}
	return strings.Join(parts, ", ")
}

// Emails returns the bare addresses of the list.
func Emails(list []Mailbox) []string {
	out := make([]string, 0, len(list))
	for _, m := range list {
		if m.Email == "" {
			continue
		}
		out = append(out, m.Email)
	}
	return out
}

// Decode parses a raw MIME payload. Addresses that lack a usable email are
// dropped from recipient lists rather than reported as errors; a missing
// From leaves Message.From nil and the caller decides whether that matters.
func Decode(raw []byte) (*Message, error) {
	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	msg := &Message{}

	if subject, err := reader.Header.Subject(); err == nil {
		msg.Subject = subject
	}

	if list, err := reader.Header.AddressList("From"); err == nil && len(list) > 0 {
		if list[0].Address != "" {
			msg.From = &Mailbox{Email: list[0].Address, Name: list[0].Name}
		}
	}
	msg.To = headerMailboxes(reader, "To")
	msg.Cc = headerMailboxes(reader, "Cc")
	msg.Bcc = headerMailboxes(reader, "Bcc")

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Header data is already captured; a malformed part should not
			// discard the message.
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		mediaType, _, _ := header.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(mediaType, "text/plain") || mediaType == "":
			appendBody(&msg.Text, string(body))
		case strings.HasPrefix(mediaType, "text/html"):
			appendBody(&msg.HTML, string(body))
		}
	}

	return msg, nil
}

func headerMailboxes(reader *mail.Reader, name string) []Mailbox {
	list, err := reader.Header.AddressList(name)
	if err != nil {
		return nil
	}
	var out []Mailbox
	for _, addr := range list {
		if addr.Address == "" {
			continue
		}
		out = append(out, Mailbox{Email: addr.Address, Name: addr.Name})
	}
	return out
}

func appendBody(dst *string, body string) {
	if *dst == "" {
		*dst = body
		return
	}
	*dst += "\n" + body
}
