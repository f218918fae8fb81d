package chat

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/scribblechat/scribble/internal/handwriting"
)

// ID is a server-assigned identifier. Backends are inconsistent about numeric
// versus string ids, so it unmarshals from either and always compares as a
// normalized string.
type ID string

// UnmarshalJSON accepts a JSON string, number or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	*id = ID(data)
	return nil
}

func (id ID) String() string { return string(id) }

// User is the account the local session belongs to.
type User struct {
	ID          ID     `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// Participant is a member of a conversation.
type Participant struct {
	ID          string
	Username    string
	Email       string
	DisplayName string
}

// Name returns the best available human-readable name for the participant.
func (p Participant) Name() string {
	switch {
	case p.DisplayName != "":
		return p.DisplayName
	case p.Username != "":
		return p.Username
	default:
		return p.Email
	}
}

// Message is one entry in a conversation's message sequence. ID is empty
// until the server acknowledges the message; Key is the stable dedup key
// used to match an optimistic entry to its server echo.
type Message struct {
	ID             string
	Key            string
	ConversationID string
	SenderID       string
	SenderName     string
	Content        string
	CreatedAt      time.Time
	Pending        bool
}

// Conversation is a synced conversation summary. UnreadCount is already
// resolved from whatever unread representation the server used.
type Conversation struct {
	ID           string
	Title        string
	Participants []Participant
	LastMessage  *Message
	UnreadCount  int
}

// Preview returns a short last-message preview suitable for a list row.
func (c *Conversation) Preview() string {
	if c == nil || c.LastMessage == nil {
		return ""
	}
	return handwriting.Preview(c.LastMessage.Content)
}

// DisplayTitle resolves a title for the conversation: explicit title first,
// then the first participant that is not the local user, then a generic label.
func (c *Conversation) DisplayTitle(localUserID string) string {
	if c == nil {
		return "Conversation"
	}
	if c.Title != "" {
		return c.Title
	}
	for _, p := range c.Participants {
		if p.ID != "" && p.ID == localUserID {
			continue
		}
		if name := p.Name(); name != "" {
			return name
		}
	}
	if c.ID != "" {
		return "Conversation #" + c.ID
	}
	return "Conversation"
}
