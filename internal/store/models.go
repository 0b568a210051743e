package store

import "time"

// Delivery statuses.
const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// Delivery is one forwarding attempt recorded for the audit log. Only
// metadata is kept; message bytes are never persisted.
type Delivery struct {
	ID        string
	Provider  string
	From      string
	To        []string
	Subject   string
	Size      int64
	Status    string
	SMTPCode  int
	Detail    string
	CreatedAt time.Time
}
