package mailgun

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.io/infrasutra/mailbridge/internal/message"
	"github.io/infrasutra/mailbridge/internal/provider"
)

const rawMessage = "From: Alice <a@x.com>\r\n" +
	"To: Bob <b@y.com>\r\n" +
	"Subject: Hi\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"hello\r\n"

func TestDomainFromLogin(t *testing.T) {
	cases := []struct {
		login string
		want  string
	}{
		{"alice@example.com", "example.com"},
		{"a@b@example.com", "example.com"},
		{"example.com", "example.com"},
		{"  alice@example.com  ", "example.com"},
	}
	for _, tc := range cases {
		if got := DomainFromLogin(tc.login); got != tc.want {
			t.Errorf("DomainFromLogin(%q) = %q, want %q", tc.login, got, tc.want)
		}
	}
}

func TestForward(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/example.com/messages.mime" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "api" || pass != "0123456789abcdef0123456789abcdef-01234567-89abcdef" {
			t.Errorf("unexpected basic auth %q:%q", user, pass)
		}

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart form: %v", err)
		}
		if to := r.FormValue("to"); to != "Bob <b@y.com>" {
			t.Errorf("to field = %q", to)
		}
		file, header, err := r.FormFile("message")
		if err != nil {
			t.Fatalf("message file: %v", err)
		}
		defer file.Close()
		if header.Filename != "message.eml" {
			t.Errorf("filename = %q", header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "message/rfc822" {
			t.Errorf("message content type = %q", ct)
		}
		content, err := io.ReadAll(file)
		if err != nil {
			t.Fatalf("read message file: %v", err)
		}
		if string(content) != rawMessage {
			t.Error("raw MIME must pass through byte-identical")
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"<x@example.com>","message":"Queued."}`))
	}))
	defer server.Close()

	parsed, err := message.Decode([]byte(rawMessage))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}

	adapter := New(nil)
	adapter.BaseURL = server.URL

	outcome, err := adapter.Forward(context.Background(), provider.Request{
		Raw:    []byte(rawMessage),
		Parsed: parsed,
		Token:  "0123456789abcdef0123456789abcdef-01234567-89abcdef",
		Login:  "alice@example.com",
	})
	if err != nil {
		t.Fatalf("Forward returned error: %v", err)
	}
	if outcome.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", outcome.StatusCode)
	}
}

func TestForwardMissingFromIsAccepted(t *testing.T) {
	// Mailgun derives the envelope sender from the MIME content, so a
	// message without From still forwards as long as To resolves.
	raw := "To: b@y.com\r\nSubject: x\r\n\r\nbody\r\n"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	parsed, err := message.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}

	adapter := New(nil)
	adapter.BaseURL = server.URL

	if _, err := adapter.Forward(context.Background(), provider.Request{
		Raw:    []byte(raw),
		Parsed: parsed,
		Token:  "k",
		Login:  "example.com",
	}); err != nil {
		t.Errorf("Forward returned error: %v", err)
	}
}

func TestForwardRequiresTo(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	raw := "From: a@x.com\r\nSubject: x\r\n\r\nbody\r\n"
	parsed, err := message.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}

	adapter := New(nil)
	adapter.BaseURL = server.URL

	if _, err := adapter.Forward(context.Background(), provider.Request{
		Raw:    []byte(raw),
		Parsed: parsed,
		Token:  "k",
		Login:  "example.com",
	}); err == nil {
		t.Error("expected error for missing To")
	}
	if calls != 0 {
		t.Errorf("validation failure must not reach the provider, got %d calls", calls)
	}
}
