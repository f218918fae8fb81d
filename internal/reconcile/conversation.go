package reconcile

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/scribblechat/scribble/internal/chat"
	"github.com/scribblechat/scribble/internal/unread"
)

// Conversation decodes a raw conversation record: ids normalized to strings,
// participants flattened, last message normalized, unread count resolved.
func Conversation(raw []byte, localUserID string) chat.Conversation {
	r := gjson.ParseBytes(raw)

	c := chat.Conversation{
		ID:          normalizeID(firstOf(r, "id", "_id", "conversationId")),
		Title:       firstOf(r, "title", "name").String(),
		UnreadCount: unread.Count(raw, localUserID),
	}

	members := firstOf(r, "participants", "users")
	if members.IsArray() {
		for _, p := range members.Array() {
			c.Participants = append(c.Participants, chat.Participant{
				ID:          normalizeID(firstOf(p, "id", "_id", "userId")),
				Username:    p.Get("username").String(),
				Email:       p.Get("email").String(),
				DisplayName: p.Get("displayName").String(),
			})
		}
	}

	if lm := r.Get("lastMessage"); lm.IsObject() {
		m := normalizeResult(lm)
		if m.ConversationID == "" {
			m.ConversationID = c.ID
		}
		c.LastMessage = &m
	}

	return c
}

// ConversationList decodes a bulk conversation fetch.
func ConversationList(raws []json.RawMessage, localUserID string) []chat.Conversation {
	conversations := make([]chat.Conversation, 0, len(raws))
	for _, raw := range raws {
		conversations = append(conversations, Conversation(raw, localUserID))
	}
	return conversations
}
