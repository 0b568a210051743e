// Package auth issues and validates HMAC-signed admin session tokens for
// the relay's HTTP API.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const cookieName = "mailbridge_session"

var ErrInvalidSession = errors.New("invalid session token")

// Manager signs session tokens with a process-wide secret. When no secret
// is configured a random one is generated, which invalidates sessions on
// restart.
type Manager struct {
	secret []byte
	maxAge time.Duration
}

func New(secret string, maxAge time.Duration) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		generated := make([]byte, 32)
		if _, err := rand.Read(generated); err != nil {
			return nil, fmt.Errorf("generate auth secret: %w", err)
		}
		secret = base64.RawURLEncoding.EncodeToString(generated)
	}
	return &Manager{secret: []byte(secret), maxAge: maxAge}, nil
}

func (m *Manager) CookieName() string {
	return cookieName
}

func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}

// Issue creates a signed session token stamped with the current time.
func (m *Manager) Issue(now time.Time) string {
	timestamp := strconv.FormatInt(now.Unix(), 10)
	sig := m.sign(timestamp)
	return base64.RawURLEncoding.EncodeToString([]byte(timestamp + "|" + sig))
}

// Validate checks the token's signature and age.
func (m *Manager) Validate(token string, now time.Time) error {
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrInvalidSession
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return ErrInvalidSession
	}
	timestamp, sig := parts[0], parts[1]

	if !hmac.Equal([]byte(sig), []byte(m.sign(timestamp))) {
		return ErrInvalidSession
	}

	issued, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSession
	}
	age := now.Sub(time.Unix(issued, 0))
	if age < 0 || age > m.maxAge {
		return ErrInvalidSession
	}
	return nil
}

func (m *Manager) sign(payload string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
