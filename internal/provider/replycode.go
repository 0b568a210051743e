package provider

import (
	"errors"
	"strings"
)

// SMTP reply codes handed back to the submitting client.
const (
	ReplyTransient = 451 // client should retry later
	ReplyPermanent = 550 // retrying will not help
)

// transientMarkers are matched against rendered failure text when no
// structured status is available. Upstream 5xx, timeouts and connection
// resets all mean the provider may recover, so the client gets 451.
var transientMarkers = []string{
	"HTTP 5",
	"ETIMEDOUT",
	"ECONN",
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
}

// ReplyCode decides whether a forward failure is transient (451) or
// permanent (550). A *StatusError in the chain is authoritative: 5xx is
// transient, anything else permanent. Other errors fall back to substring
// matching on the rendered message.
func ReplyCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		if se.StatusCode >= 500 {
			return ReplyTransient
		}
		return ReplyPermanent
	}

	msg := err.Error()
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return ReplyTransient
		}
	}
	return ReplyPermanent
}
