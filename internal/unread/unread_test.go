package unread

import "testing"

func TestCountDirectFields(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"numeric", `{"unreadCount":3}`, 3},
		{"numeric string", `{"unreadCount":"3"}`, 3},
		{"zero", `{"unreadCount":0}`, 0},
		{"negative clamps", `{"unreadCount":-2}`, 0},
		{"float floors", `{"unreadCount":2.9}`, 2},
		{"boolean flag", `{"hasUnread":true}`, 1},
		{"boolean false", `{"hasUnread":false}`, 0},
		{"string flag", `{"hasUnreadMessages":"yes"}`, 1},
		{"array length", `{"unreadMessages":[{},{},{}]}`, 3},
		{"snake case", `{"unread_total":5}`, 5},
		{"alternate key", `{"unseenCount":2}`, 2},
		{"first key wins", `{"unreadCount":4,"unread":1}`, 4},
		{"empty object", `{}`, 0},
		{"junk value", `{"unreadCount":"soon"}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Count([]byte(tt.raw), "me"); got != tt.want {
				t.Errorf("Count(%s) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCountNestedLastMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"unread flag", `{"lastMessage":{"unread":true}}`, 1},
		{"unread count", `{"lastMessage":{"unreadCount":2}}`, 2},
		{"read false means unread", `{"lastMessage":{"read":false}}`, 1},
		{"read true means read", `{"lastMessage":{"read":true}}`, 0},
		{"seen false", `{"lastMessage":{"seen":false}}`, 1},
		{"handwriting unread", `{"lastMessage":{"handwriting":{"unread":true}}}`, 1},
		{"handwriting read false", `{"lastMessage":{"handwriting":{"read":false}}}`, 1},
		{"unread false stays read", `{"lastMessage":{"unread":false}}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Count([]byte(tt.raw), "me"); got != tt.want {
				t.Errorf("Count(%s) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCountEmbeddedMessages(t *testing.T) {
	raw := `{"messages":[
		{"senderId":"me","read":false},
		{"senderId":"44","read":false},
		{"senderId":"44","read":true},
		{"senderId":"44","unread":true},
		{"senderId":"44","pending":true}
	]}`
	// Own message never counts; read ones do not; the pending message has no
	// flags, falls to the fromOther && !pending default and is excluded.
	if got := Count([]byte(raw), "me"); got != 2 {
		t.Errorf("Count = %d, want 2", got)
	}
}

func TestCountEmbeddedMessagesWithoutFlags(t *testing.T) {
	raw := `{"messages":[{"senderId":"44"},{"senderId":"me"}]}`
	if got := Count([]byte(raw), "me"); got != 1 {
		t.Errorf("Count = %d, want 1", got)
	}
}

func TestCountNonObject(t *testing.T) {
	if got := Count([]byte(`[]`), "me"); got != 0 {
		t.Errorf("Count([]) = %d, want 0", got)
	}
	if got := Count([]byte(`null`), "me"); got != 0 {
		t.Errorf("Count(null) = %d, want 0", got)
	}
}

func TestExplicitCount(t *testing.T) {
	if n, ok := ExplicitCount([]byte(`{"unreadCount":4}`)); !ok || n != 4 {
		t.Errorf("ExplicitCount = %d, %v, want 4, true", n, ok)
	}
	if n, ok := ExplicitCount([]byte(`{"unreadCount":0}`)); !ok || n != 0 {
		t.Errorf("ExplicitCount = %d, %v, want 0, true", n, ok)
	}
	// Flags and strings are not explicit numeric counts.
	if _, ok := ExplicitCount([]byte(`{"hasUnread":true}`)); ok {
		t.Error("boolean flag reported as explicit count")
	}
	if _, ok := ExplicitCount([]byte(`{"unreadCount":"3"}`)); ok {
		t.Error("string count reported as explicit count")
	}
	if _, ok := ExplicitCount([]byte(`{"lastMessage":{"read":true}}`)); ok {
		t.Error("nested flag reported as explicit count")
	}
}
