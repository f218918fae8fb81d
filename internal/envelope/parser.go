// Package envelope normalizes push channel payloads. The backend is loose
// about payload shape: a message may arrive at the top level, nested under
// "message", or wrapped in a generic "data"/"payload" object, and typing
// signals come as flags or as event type strings. This package is the single
// boundary where that untyped wire data becomes typed domain events.
package envelope

import (
	"strings"

	"github.com/tidwall/gjson"

	scriberr "github.com/scribblechat/scribble/internal/errors"
)

// TypingEvent is a normalized typing signal extracted from an envelope.
type TypingEvent struct {
	ConversationID string
	UserID         string
	DisplayName    string
	IsTyping       bool
}

// Envelope is the canonical form of one push payload. Message holds the raw
// JSON of the extracted message object (nil when none was found); the
// reconciler owns turning it into a domain message.
type Envelope struct {
	ConversationID       string
	Message              []byte
	Typing               *TypingEvent
	RefreshConversations bool
}

var messagePaths = []string{"message", "data.message", "data.payload", "payload"}

var conversationIDPaths = []string{
	"conversationId",
	"conversation.id",
	"message.conversationId",
	"message.conversation.id",
	"data.conversationId",
	"data.conversation.id",
}

var typingUserIDPaths = []string{
	"userId", "senderId",
	"user.id", "sender.id",
	"message.senderId", "message.sender.id",
	"data.userId", "data.senderId",
	"data.user.id", "data.sender.id",
}

var typingNamePaths = []string{
	"displayName",
	"user.displayName", "user.username", "user.email",
	"sender.displayName", "sender.username", "sender.email",
	"message.sender.displayName", "message.sender.username", "message.sender.email",
	"data.user.displayName", "data.user.username", "data.user.email",
	"data.sender.displayName", "data.sender.username", "data.sender.email",
}

// Parse normalizes one push payload. Returns ErrMalformedEnvelope when the
// payload is not a JSON object; callers log and drop those.
func Parse(payload []byte) (Envelope, error) {
	if !gjson.ValidBytes(payload) {
		return Envelope{}, scriberr.ErrMalformedEnvelope
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return Envelope{}, scriberr.ErrMalformedEnvelope
	}

	message := extractMessage(root)

	conversationID := NormalizeID(pick(root, conversationIDPaths...))
	if conversationID == "" && message.Exists() {
		conversationID = NormalizeID(pick(message, "conversationId", "conversation.id"))
	}

	eventType := strings.ToLower(pick(root, "type", "event", "data.type", "data.event").String())

	var typing *TypingEvent
	if flag, ok := typingFlag(root, eventType); ok {
		typing = &TypingEvent{
			ConversationID: conversationID,
			UserID:         NormalizeID(pick(root, typingUserIDPaths...)),
			DisplayName:    pick(root, typingNamePaths...).String(),
			IsTyping:       flag,
		}
	}

	env := Envelope{
		ConversationID:       conversationID,
		Typing:               typing,
		RefreshConversations: message.Exists() || pick(root, "conversation", "data.conversation").IsObject(),
	}
	if message.Exists() {
		env.Message = []byte(message.Raw)
	}
	return env, nil
}

// NormalizeID renders an id value as a comparable string: numbers lose any
// decoration, absent/null values become "".
func NormalizeID(v gjson.Result) string {
	if !v.Exists() || v.Type == gjson.Null {
		return ""
	}
	return strings.TrimSpace(v.String())
}

// pick returns the first existing non-null value among the given paths.
func pick(root gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := root.Get(p); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// extractMessage resolves the message object: explicit nested fields first,
// then the payload itself if it looks like a message.
func extractMessage(root gjson.Result) gjson.Result {
	if candidate := pick(root, messagePaths...); looksLikeMessage(candidate) {
		return candidate
	}
	if looksLikeMessage(root) {
		return root
	}
	return gjson.Result{}
}

// looksLikeMessage reports whether an object plausibly is a message: it has
// an id, or both content-like and sender-like fields.
func looksLikeMessage(v gjson.Result) bool {
	if !v.IsObject() {
		return false
	}
	if v.Get("id").Exists() {
		return true
	}
	hasContent := present(pick(v, "content", "body", "text", "message"))
	hasSender := present(pick(v, "senderId", "sender", "user"))
	return hasContent && hasSender
}

// present mirrors loose truthiness: a value counts only when it exists and is
// not null, false, or an empty string.
func present(v gjson.Result) bool {
	if !v.Exists() || v.Type == gjson.Null || v.Type == gjson.False {
		return false
	}
	if v.Type == gjson.String && v.Str == "" {
		return false
	}
	return true
}

// typingFlag resolves the typing signal: an explicit boolean or string flag
// wins; failing that, a "typing" event type implies start unless it also
// names stop/end.
func typingFlag(root gjson.Result, eventType string) (bool, bool) {
	direct := pick(root, "isTyping", "typing", "data.isTyping", "data.typing")
	switch direct.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(direct.Str)) {
		case "true", "1", "typing", "start":
			return true, true
		case "false", "0", "stop", "end":
			return false, true
		}
	}
	if eventType == "" || !strings.Contains(eventType, "typing") {
		return false, false
	}
	if strings.Contains(eventType, "stop") || strings.Contains(eventType, "end") {
		return false, true
	}
	return true, true
}
