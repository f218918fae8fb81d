package envelope

import (
	"errors"
	"testing"

	scriberr "github.com/scribblechat/scribble/internal/errors"
)

func TestParseTopLevelMessage(t *testing.T) {
	env, err := Parse([]byte(`{"id":1,"conversationId":9,"senderId":2,"content":"hey"}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if env.Message == nil {
		t.Fatal("expected a message")
	}
	if env.ConversationID != "9" {
		t.Errorf("ConversationID = %q, want 9", env.ConversationID)
	}
	if !env.RefreshConversations {
		t.Error("a message payload should hint a conversation refresh")
	}
}

func TestParseNestedMessage(t *testing.T) {
	env, err := Parse([]byte(`{"message":{"id":3,"content":"hi","senderId":4},"conversationId":"7"}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if string(env.Message) != `{"id":3,"content":"hi","senderId":4}` {
		t.Errorf("Message = %s", env.Message)
	}
	if env.ConversationID != "7" {
		t.Errorf("ConversationID = %q, want 7", env.ConversationID)
	}
}

func TestParseDoublyWrappedMessage(t *testing.T) {
	env, err := Parse([]byte(`{"data":{"payload":{"id":42,"content":"hi","senderId":7}},"conversationId":5}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if env.Message == nil {
		t.Fatal("expected a message under data.payload")
	}
	if env.ConversationID != "5" {
		t.Errorf("ConversationID = %q, want 5", env.ConversationID)
	}
}

func TestParseConversationIDFromMessage(t *testing.T) {
	env, err := Parse([]byte(`{"message":{"id":8,"conversationId":12,"content":"x","senderId":1}}`))
	if err != nil {
		t.Fatal(err)
	}
	if env.ConversationID != "12" {
		t.Errorf("ConversationID = %q, want 12", env.ConversationID)
	}
}

func TestParseTypingFlag(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    bool
	}{
		{"bool true", `{"type":"typing","conversationId":1,"userId":2,"isTyping":true}`, true},
		{"bool false", `{"type":"typing","conversationId":1,"userId":2,"isTyping":false}`, false},
		{"string start", `{"conversationId":1,"userId":2,"typing":"start"}`, true},
		{"string stop", `{"conversationId":1,"userId":2,"typing":"stop"}`, false},
		{"event type only", `{"event":"user_typing","conversationId":1,"userId":2}`, true},
		{"event type stop", `{"event":"typing_stopped","conversationId":1,"userId":2}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Parse([]byte(tt.payload))
			if err != nil {
				t.Fatal(err)
			}
			if env.Typing == nil {
				t.Fatal("expected a typing event")
			}
			if env.Typing.IsTyping != tt.want {
				t.Errorf("IsTyping = %v, want %v", env.Typing.IsTyping, tt.want)
			}
			if env.Typing.UserID != "2" {
				t.Errorf("UserID = %q, want 2", env.Typing.UserID)
			}
			if env.Typing.ConversationID != "1" {
				t.Errorf("ConversationID = %q, want 1", env.Typing.ConversationID)
			}
		})
	}
}

func TestParseTypingDisplayName(t *testing.T) {
	env, err := Parse([]byte(`{"type":"typing","conversationId":1,"user":{"id":2,"username":"ana"},"isTyping":true}`))
	if err != nil {
		t.Fatal(err)
	}
	if env.Typing == nil || env.Typing.DisplayName != "ana" {
		t.Errorf("typing = %+v, want display name ana", env.Typing)
	}
}

func TestParseNoTypingEventWithoutSignal(t *testing.T) {
	env, err := Parse([]byte(`{"message":{"id":1,"content":"x","senderId":2}}`))
	if err != nil {
		t.Fatal(err)
	}
	if env.Typing != nil {
		t.Errorf("unexpected typing event: %+v", env.Typing)
	}
}

func TestParseConversationRefreshHint(t *testing.T) {
	env, err := Parse([]byte(`{"conversation":{"id":3,"title":"team"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if !env.RefreshConversations {
		t.Error("a conversation payload should hint a refresh")
	}
	if env.Message != nil {
		t.Errorf("conversation payload produced message %s", env.Message)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, payload := range []string{`not json`, `[1,2,3]`, `"just a string"`, `42`} {
		_, err := Parse([]byte(payload))
		if !errors.Is(err, scriberr.ErrMalformedEnvelope) {
			t.Errorf("Parse(%s) error = %v, want ErrMalformedEnvelope", payload, err)
		}
	}
}

func TestParseBareObjectIsNotAMessage(t *testing.T) {
	// No id, no content+sender pair: nothing message-like here.
	env, err := Parse([]byte(`{"status":"ok"}`))
	if err != nil {
		t.Fatal(err)
	}
	if env.Message != nil {
		t.Errorf("Message = %s, want nil", env.Message)
	}
	if env.RefreshConversations {
		t.Error("bare status object should not hint a refresh")
	}
}
