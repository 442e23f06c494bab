package payment

import (
	"errors"
	"time"
)

var ErrInvalidSignature = errors.New("payment: invalid notification signature")

// Notification is a verified provider callback. SessionID is empty for
// event types that do not concern a checkout session.
type Notification struct {
	EventID    string
	Type       string
	SessionID  string
	OccurredAt time.Time
}

type NotificationVerifier interface {
	Verify(payload []byte, signature string) (*Notification, error)
}
