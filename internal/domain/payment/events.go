package payment

import "time"

// SessionNotifiedEvent records that the provider announced a change on a
// session. It carries no outcome; handlers must query the provider.
type SessionNotifiedEvent struct {
	SessionID       string
	ProviderEventID string
	ProviderType    string
	OccurredAt      time.Time
}

func (SessionNotifiedEvent) EventName() string { return "payment.session_notified" }

func (e SessionNotifiedEvent) EventKey() string { return e.SessionID }

func NewSessionNotifiedEvent(sessionID, providerEventID, providerType string) SessionNotifiedEvent {
	return SessionNotifiedEvent{
		SessionID:       sessionID,
		ProviderEventID: providerEventID,
		ProviderType:    providerType,
		OccurredAt:      time.Now().UTC(),
	}
}
