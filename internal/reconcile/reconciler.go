// Package reconcile merges raw message records into ordered, deduplicated
// per-conversation sequences and decodes conversation summaries. It is the
// only place that derives message keys and resolves timestamps, so every
// ingestion path (history load, push, optimistic send) stays consistent.
package reconcile

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/scribblechat/scribble/internal/chat"
)

// timestampFields is the priority order for resolving a message timestamp.
var timestampFields = []string{"createdAt", "timestamp", "sentAt", "updatedAt"}

// Normalize turns a raw message record into a domain message: timestamp
// resolved (defaulting to now), key derived, pending preserved.
func Normalize(raw []byte) chat.Message {
	return normalizeResult(gjson.ParseBytes(raw))
}

func normalizeResult(r gjson.Result) chat.Message {
	m := chat.Message{
		ID:             normalizeID(firstOf(r, "id", "_id", "messageId", "uuid")),
		ConversationID: normalizeID(firstOf(r, "conversationId", "conversation.id")),
		SenderID:       normalizeID(firstOf(r, "senderId", "sender.id", "authorId", "author.id")),
		SenderName:     firstOf(r, "senderName", "sender.displayName", "sender.username", "sender.email").String(),
		Content:        firstOf(r, "content", "body", "text", "message").String(),
		CreatedAt:      resolveTimestamp(r),
		Pending:        r.Get("pending").Bool(),
	}
	if key := r.Get("_key"); key.Exists() && key.Str != "" {
		m.Key = key.Str
	} else {
		m.Key = deriveKey(m)
	}
	return m
}

// NewPending constructs the optimistic message shown before the server
// acknowledges a send.
func NewPending(tempID, conversationID, senderID, senderName, content string, now time.Time) chat.Message {
	m := chat.Message{
		ID:             tempID,
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		Content:        content,
		CreatedAt:      now,
		Pending:        true,
	}
	m.Key = deriveKey(m)
	return m
}

// deriveKey produces the stable dedup key: the id when the server assigned
// one, else sender plus timestamp.
func deriveKey(m chat.Message) string {
	if m.ID != "" {
		return "id-" + m.ID
	}
	sender := m.SenderID
	if sender == "" {
		sender = "anonymous"
	}
	return fmt.Sprintf("temp-%s-%s", sender, m.CreatedAt.UTC().Format(time.RFC3339Nano))
}

// Upsert normalizes raw and merges it into the sequence: matched by id first,
// then by key; matches shallow-merge (a server echo clears pending and
// supplies the canonical id without losing locally-set fields), misses
// append. The result is always re-sorted by CreatedAt ascending; the sort is
// stable so identical timestamps keep their arrival order.
func Upsert(messages []chat.Message, raw []byte) []chat.Message {
	return UpsertMessage(messages, Normalize(raw))
}

// UpsertMessage is Upsert for an already-normalized message.
func UpsertMessage(messages []chat.Message, incoming chat.Message) []chat.Message {
	idx := -1
	if incoming.ID != "" {
		idx = slices.IndexFunc(messages, func(m chat.Message) bool { return m.ID == incoming.ID })
	}
	if idx == -1 {
		idx = slices.IndexFunc(messages, func(m chat.Message) bool { return m.Key == incoming.Key })
	}

	next := slices.Clone(messages)
	if idx == -1 {
		next = append(next, incoming)
	} else {
		next[idx] = merge(next[idx], incoming)
	}
	sortByTimestamp(next)
	return next
}

// Remove drops the entry matching the given id or key. Used to roll back an
// optimistic send.
func Remove(messages []chat.Message, id, key string) []chat.Message {
	return slices.DeleteFunc(slices.Clone(messages), func(m chat.Message) bool {
		return (id != "" && m.ID == id) || (key != "" && m.Key == key)
	})
}

// NormalizeList maps then sorts a bulk history load.
func NormalizeList(raws []json.RawMessage) []chat.Message {
	messages := make([]chat.Message, 0, len(raws))
	for _, raw := range raws {
		messages = append(messages, Normalize(raw))
	}
	sortByTimestamp(messages)
	return messages
}

// merge overlays incoming onto old: fields present in incoming win, fields
// the incoming record lacked survive from the old entry. Pending and
// CreatedAt always come from the incoming record, which is how a server echo
// flips pending off.
func merge(old, incoming chat.Message) chat.Message {
	m := incoming
	if m.ID == "" {
		m.ID = old.ID
	}
	if m.ConversationID == "" {
		m.ConversationID = old.ConversationID
	}
	if m.SenderID == "" {
		m.SenderID = old.SenderID
	}
	if m.SenderName == "" {
		m.SenderName = old.SenderName
	}
	if m.Content == "" {
		m.Content = old.Content
	}
	return m
}

func sortByTimestamp(messages []chat.Message) {
	slices.SortStableFunc(messages, func(a, b chat.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

// resolveTimestamp tries the timestamp fields in priority order, accepting
// RFC 3339 strings, a handful of common layouts, and epoch milliseconds.
// Unparseable or absent timestamps resolve to now.
func resolveTimestamp(r gjson.Result) time.Time {
	for _, field := range timestampFields {
		v := r.Get(field)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		if t, ok := parseTime(v); ok {
			return t
		}
	}
	return time.Now().UTC()
}

var stringLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTime(v gjson.Result) (time.Time, bool) {
	switch v.Type {
	case gjson.Number:
		return fromEpoch(v.Num), true
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range stringLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(n), true
		}
	}
	return time.Time{}, false
}

// fromEpoch interprets a numeric timestamp. Values too small to be
// milliseconds are taken as seconds.
func fromEpoch(n float64) time.Time {
	ms := int64(n)
	if ms < 1e11 {
		ms *= 1000
	}
	return time.UnixMilli(ms).UTC()
}

func normalizeID(v gjson.Result) string {
	if !v.Exists() || v.Type == gjson.Null {
		return ""
	}
	return strings.TrimSpace(v.String())
}

func firstOf(root gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := root.Get(p); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}
