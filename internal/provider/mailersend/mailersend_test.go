package mailersend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.io/infrasutra/mailbridge/internal/provider"
)

const rawMessage = "From: Alice <a@x.com>\r\n" +
	"To: b@y.com\r\n" +
	"Subject: Hi\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"hello\r\n"

func TestForward(t *testing.T) {
	var got payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer mlsn.abc123" {
			t.Errorf("unexpected Authorization header %q", auth)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected Content-Type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"id":"1"}`))
	}))
	defer server.Close()

	adapter := New(nil)
	adapter.Endpoint = server.URL

	outcome, err := adapter.Forward(context.Background(), provider.Request{
		Raw:   []byte(rawMessage),
		Token: "mlsn.abc123",
	})
	if err != nil {
		t.Fatalf("Forward returned error: %v", err)
	}
	if outcome.StatusCode != http.StatusAccepted {
		t.Errorf("StatusCode = %d, want 202", outcome.StatusCode)
	}

	if got.From.Email != "a@x.com" || got.From.Name != "Alice" {
		t.Errorf("unexpected from: %+v", got.From)
	}
	if len(got.To) != 1 || got.To[0].Email != "b@y.com" {
		t.Errorf("unexpected to: %+v", got.To)
	}
	if got.Subject != "Hi" {
		t.Errorf("unexpected subject: %q", got.Subject)
	}
	if len(got.Cc) != 0 || len(got.Bcc) != 0 {
		t.Errorf("expected cc/bcc omitted, got %+v / %+v", got.Cc, got.Bcc)
	}
}

func TestForwardOmitsEmptyOptionalFields(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := New(nil)
	adapter.Endpoint = server.URL

	if _, err := adapter.Forward(context.Background(), provider.Request{Raw: []byte(rawMessage), Token: "mlsn.x"}); err != nil {
		t.Fatalf("Forward returned error: %v", err)
	}
	for _, key := range []string{"cc", "bcc", "html"} {
		if _, ok := body[key]; ok {
			t.Errorf("field %q should be omitted when empty", key)
		}
	}
	if _, ok := body["text"]; !ok {
		t.Error("text body should be present")
	}
}

func TestForwardUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"rejected"}`))
	}))
	defer server.Close()

	adapter := New(nil)
	adapter.Endpoint = server.URL

	_, err := adapter.Forward(context.Background(), provider.Request{Raw: []byte(rawMessage), Token: "mlsn.x"})
	if err == nil {
		t.Fatal("expected error on 422 response")
	}
	se, ok := err.(*provider.StatusError)
	if !ok {
		t.Fatalf("expected *provider.StatusError, got %T", err)
	}
	if se.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d, want 422", se.StatusCode)
	}
	if provider.ReplyCode(err) != provider.ReplyPermanent {
		t.Error("422 should classify permanent")
	}
}

func TestForwardValidation(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	adapter := New(nil)
	adapter.Endpoint = server.URL

	noFrom := "To: b@y.com\r\nSubject: x\r\n\r\nbody\r\n"
	if _, err := adapter.Forward(context.Background(), provider.Request{Raw: []byte(noFrom), Token: "mlsn.x"}); err == nil {
		t.Error("expected error for missing From")
	}

	noTo := "From: a@x.com\r\nSubject: x\r\n\r\nbody\r\n"
	if _, err := adapter.Forward(context.Background(), provider.Request{Raw: []byte(noTo), Token: "mlsn.x"}); err == nil {
		t.Error("expected error for missing To")
	}

	if calls != 0 {
		t.Errorf("validation failures must not reach the provider, got %d calls", calls)
	}
}
