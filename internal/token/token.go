// Package token classifies provider API tokens by their textual shape.
//
// The SMTP password supplied by a client is an API token for one of the
// supported delivery providers. Each provider issues tokens in a distinct
// format, so the owning provider can be determined without any network call.
package token

import (
	"errors"
	"regexp"
	"strings"
)

// Provider identifies one of the supported delivery providers.
type Provider int

const (
	ProviderMailerSend Provider = iota + 1
	ProviderPostmark
	ProviderMailgun
)

func (p Provider) String() string {
	switch p {
	case ProviderMailerSend:
		return "mailersend"
	case ProviderPostmark:
		return "postmark"
	case ProviderMailgun:
		return "mailgun"
	default:
		return "unknown"
	}
}

// ErrInvalidToken is returned when a token matches no known provider format.
var ErrInvalidToken = errors.New("invalid API token")

var (
	// Postmark server tokens are canonical lowercase UUIDs.
	postmarkPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	// Mailgun private API keys are 32-8-8 lowercase hex groups.
	mailgunPattern = regexp.MustCompile(`^[a-f0-9]{32}-[a-f0-9]{8}-[a-f0-9]{8}$`)
)

// Classify maps a token string to its provider. The rules are checked in a
// fixed order and the first match wins; the MailerSend prefix check runs
// before the pattern matches.
func Classify(tok string) (Provider, error) {
	if tok == "" {
		return 0, ErrInvalidToken
	}
	switch {
	case strings.HasPrefix(tok, "mlsn."):
		return ProviderMailerSend, nil
	case postmarkPattern.MatchString(tok):
		return ProviderPostmark, nil
	case mailgunPattern.MatchString(tok):
		return ProviderMailgun, nil
	}
	return 0, ErrInvalidToken
}
