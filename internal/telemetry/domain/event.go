package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a session lifecycle transition.
type EventType string

const (
	EventLogin          EventType = "login"
	EventLogout         EventType = "logout"
	EventForcedLogout   EventType = "forced_logout"
	EventRefresh        EventType = "refresh"
	EventRefreshFailed  EventType = "refresh_failed"
	EventProfileUpdated EventType = "profile_updated"
)

// SessionEvent is one session lifecycle event. It never carries tokens or OTPs;
// PhoneMasked holds only the last four digits.
type SessionEvent struct {
	ID          string
	Type        EventType
	Source      string
	PhoneMasked string
	Status      string
	// Reason is a short machine-readable cause, e.g. "http_401" or "transport".
	Reason    string
	CreatedAt time.Time
}

// NewSessionEvent returns an event with a fresh ID and the current UTC time.
func NewSessionEvent(typ EventType, source string) *SessionEvent {
	return &SessionEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
}
