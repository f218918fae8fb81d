package bus

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds published by the sync core. Subscribers filter by namespace
// prefix, so "message." matches every message event and "" matches all.
const (
	KindSessionLoggedIn    = "session.logged_in"
	KindSessionLoggedOut   = "session.logged_out"
	KindConnectionStatus   = "connection.status_changed"
	KindMessageUpserted    = "message.upserted"
	KindMessageSendFailed  = "message.send_failed"
	KindMessagesLoaded     = "message.history_loaded"
	KindConversationsList  = "conversations.updated"
	KindConversationUpdate = "conversation.updated"
	KindTypingChanged      = "typing.changed"
)

// Event is a domain event published on the bus.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with an id and the current time.
func NewEvent(kind string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}
