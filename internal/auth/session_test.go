package auth

import (
	"testing"
	"time"
)

func TestIssueAndValidate(t *testing.T) {
	m, err := New("secret", time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	now := time.Now()
	token := m.Issue(now)

	if err := m.Validate(token, now.Add(30*time.Minute)); err != nil {
		t.Errorf("valid token rejected: %v", err)
	}
}

func TestValidateExpired(t *testing.T) {
	m, _ := New("secret", time.Hour)
	now := time.Now()
	token := m.Issue(now)

	if err := m.Validate(token, now.Add(2*time.Hour)); err == nil {
		t.Error("expired token accepted")
	}
	// A token issued in the future is also rejected.
	if err := m.Validate(token, now.Add(-time.Minute)); err == nil {
		t.Error("future token accepted")
	}
}

func TestValidateTampered(t *testing.T) {
	m, _ := New("secret", time.Hour)
	token := m.Issue(time.Now())

	for _, bad := range []string{
		token + "x",
		"not-base64!!",
		"",
	} {
		if err := m.Validate(bad, time.Now()); err == nil {
			t.Errorf("tampered token %q accepted", bad)
		}
	}
}

func TestDifferentSecretRejects(t *testing.T) {
	m1, _ := New("one", time.Hour)
	m2, _ := New("two", time.Hour)

	token := m1.Issue(time.Now())
	if err := m2.Validate(token, time.Now()); err == nil {
		t.Error("token signed with another secret accepted")
	}
}

func TestEmptySecretGeneratesRandom(t *testing.T) {
	m1, err := New("", time.Hour)
	if err != nil {
		t.Fatalf("New with empty secret: %v", err)
	}
	m2, _ := New("", time.Hour)

	token := m1.Issue(time.Now())
	if err := m1.Validate(token, time.Now()); err != nil {
		t.Errorf("self-issued token rejected: %v", err)
	}
	if err := m2.Validate(token, time.Now()); err == nil {
		t.Error("random secrets should differ between managers")
	}
}
