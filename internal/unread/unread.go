// Package unread collapses the many unread representations chat backends use
// into one non-negative count per conversation. Servers variously report
// boolean flags, numeric counts, string-encoded booleans or numbers, array
// lengths, nested last-message read flags, or nothing at all.
package unread

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Direct count-like keys on the conversation itself, tried in order.
var directKeys = []string{
	"unreadCount",
	"unreadMessages",
	"unreadMessageCount",
	"unread",
	"unseenCount",
	"unseenMessages",
	"unread_total",
	"unread_total_count",
	"hasUnread",
	"hasUnreadMessages",
	"has_unread",
	"has_unread_messages",
	"hasUnreadMessage",
	"has_unread_message",
}

// Nested paths under the last message, including handwriting read flags.
var nestedPaths = []string{
	"lastMessage.unreadCount",
	"lastMessage.unread",
	"lastMessage.unreadMessages",
	"lastMessage.unseenCount",
	"lastMessage.hasUnread",
	"lastMessage.hasUnreadMessages",
	"lastMessage.has_unread",
	"lastMessage.has_unread_messages",
	"lastMessage.hasUnreadMessage",
	"lastMessage.has_unread_message",
	"lastMessage.handwriting.unread",
	"lastMessage.handwriting.hasUnread",
	"lastMessage.handwriting.has_unread",
	"lastMessage.handwriting.unseen",
	"lastMessage.handwriting.read",
	"lastMessage.handwriting.isRead",
	"lastMessage.handwriting.seen",
	"lastMessage.read",
	"lastMessage.isRead",
	"lastMessage.seen",
}

// Count resolves the unread count for a raw conversation record. Resolution
// order: direct count-like fields, then nested last-message fields, then a
// scan of an embedded message list. Anything unrecognizable counts as zero.
func Count(conversation []byte, localUserID string) int {
	root := gjson.ParseBytes(conversation)
	if !root.IsObject() {
		return 0
	}

	for _, key := range directKeys {
		value := root.Get(key)
		if flag, ok := asFlag(value); ok && flag {
			return max(1, asCount(value))
		}
		if n := asCount(value); n > 0 {
			return n
		}
	}

	for _, path := range nestedPaths {
		value := root.Get(path)
		flag, ok := asFlag(value)
		// A positive read flag set to false means the last message is unread.
		if ok && !flag && isReadKey(path) {
			return 1
		}
		if ok && flag && !isReadKey(path) {
			return max(1, asCount(value))
		}
		if n := asCount(value); !isReadKey(path) && n > 0 {
			return n
		}
	}

	if messages := root.Get("messages"); messages.IsArray() {
		unread := 0
		for _, m := range messages.Array() {
			if isUnreadMessage(m, localUserID) {
				unread++
			}
		}
		if unread > 0 {
			return unread
		}
	}

	return 0
}

// ExplicitCount returns a count only when the record carries an actual
// numeric unread field. Used when reconciling a server response after an
// optimistic clear, so a missing field never resurrects a stale count.
func ExplicitCount(conversation []byte) (int, bool) {
	root := gjson.ParseBytes(conversation)
	for _, key := range directKeys {
		if v := root.Get(key); v.Type == gjson.Number {
			return asCount(v), true
		}
	}
	return 0, false
}

// isReadKey reports whether a path's final segment is a positive read flag
// ("read": false means unread; "unread": false means read).
func isReadKey(path string) bool {
	seg := path[strings.LastIndex(path, ".")+1:]
	switch strings.ToLower(seg) {
	case "read", "isread", "is_read", "seen":
		return true
	}
	return false
}

// isUnreadMessage decides whether one embedded message counts as unread for
// the local user.
func isUnreadMessage(m gjson.Result, localUserID string) bool {
	fromOther := true
	if senderID := firstOf(m, "senderId", "sender.id", "authorId", "author.id"); senderID.Exists() && localUserID != "" {
		fromOther = strings.TrimSpace(senderID.String()) != localUserID
	}

	if read, ok := asFlag(firstOf(m, "read", "isRead", "seen", "acknowledged", "handwritingRead", "handwriting.read")); ok {
		if read {
			return false
		}
		return fromOther
	}

	if unreadFlag, ok := asFlag(firstOf(m, "unread", "isUnread", "unseen", "delivered", "handwritingUnread", "handwriting.unread")); ok {
		return unreadFlag && fromOther
	}

	if m.Get("handwriting").IsObject() && fromOther {
		if read, ok := asFlag(firstOf(m, "handwriting.read", "handwriting.isRead", "handwriting.seen")); ok && !read {
			return true
		}
		if hw, ok := asFlag(firstOf(m, "handwriting.unread", "handwriting.unseen")); ok && hw {
			return true
		}
	}

	return fromOther && !m.Get("pending").Bool()
}

func firstOf(root gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := root.Get(p); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// asCount coerces a value to a non-negative integer: booleans become 0/1,
// arrays count their length, numeric strings parse, junk is zero.
func asCount(v gjson.Result) int {
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return 0
	case v.Type == gjson.True:
		return 1
	case v.Type == gjson.False:
		return 0
	case v.IsArray():
		return len(v.Array())
	case v.Type == gjson.Number:
		if math.IsNaN(v.Num) {
			return 0
		}
		return max(0, int(math.Floor(v.Num)))
	case v.Type == gjson.String:
		s := strings.ToLower(strings.TrimSpace(v.Str))
		switch s {
		case "":
			return 0
		case "true", "yes", "on":
			return 1
		case "false", "no", "off":
			return 0
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return max(0, int(math.Floor(n)))
	}
	return 0
}

// asFlag interprets a value as a boolean where possible. The second return
// reports whether the value was boolean-like at all.
func asFlag(v gjson.Result) (bool, bool) {
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return false, false
	case v.Type == gjson.True:
		return true, true
	case v.Type == gjson.False:
		return false, true
	case v.Type == gjson.Number:
		if math.IsNaN(v.Num) {
			return false, false
		}
		return v.Num > 0, true
	case v.Type == gjson.String:
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "true", "yes", "on", "1":
			return true, true
		case "false", "no", "off", "0":
			return false, true
		}
	}
	return false, false
}
