package chat

import (
	"encoding/json"
	"testing"

	"github.com/scribblechat/scribble/internal/handwriting"
)

func TestIDUnmarshal(t *testing.T) {
	tests := []struct {
		raw  string
		want ID
	}{
		{`"abc"`, "abc"},
		{`42`, "42"},
		{`null`, ""},
	}
	for _, tt := range tests {
		var id ID
		if err := json.Unmarshal([]byte(tt.raw), &id); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tt.raw, err)
		}
		if id != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.raw, id, tt.want)
		}
	}
}

func TestUserDecodeNumericID(t *testing.T) {
	var u User
	if err := json.Unmarshal([]byte(`{"id":7,"username":"ana","email":"a@x.io"}`), &u); err != nil {
		t.Fatal(err)
	}
	if u.ID.String() != "7" {
		t.Errorf("ID = %q, want 7", u.ID)
	}
}

func TestParticipantName(t *testing.T) {
	tests := []struct {
		p    Participant
		want string
	}{
		{Participant{DisplayName: "Ana", Username: "ana", Email: "a@x.io"}, "Ana"},
		{Participant{Username: "ana", Email: "a@x.io"}, "ana"},
		{Participant{Email: "a@x.io"}, "a@x.io"},
	}
	for _, tt := range tests {
		if got := tt.p.Name(); got != tt.want {
			t.Errorf("Name() = %q, want %q", got, tt.want)
		}
	}
}

func TestDisplayTitle(t *testing.T) {
	c := &Conversation{
		ID: "9",
		Participants: []Participant{
			{ID: "1", Username: "me"},
			{ID: "2", DisplayName: "Ana"},
		},
	}
	if got := c.DisplayTitle("1"); got != "Ana" {
		t.Errorf("DisplayTitle = %q, want Ana", got)
	}

	c.Title = "Weekend plans"
	if got := c.DisplayTitle("1"); got != "Weekend plans" {
		t.Errorf("DisplayTitle = %q, want explicit title", got)
	}

	empty := &Conversation{ID: "3"}
	if got := empty.DisplayTitle("1"); got != "Conversation #3" {
		t.Errorf("DisplayTitle = %q", got)
	}
}

func TestPreview(t *testing.T) {
	content, err := handwriting.EncodeImage("data:image/png;base64,AAAA")
	if err != nil {
		t.Fatal(err)
	}
	c := &Conversation{LastMessage: &Message{Content: content}}
	if got := c.Preview(); got != "Handwritten message" {
		t.Errorf("Preview = %q", got)
	}

	c.LastMessage.Content = "see you"
	if got := c.Preview(); got != "see you" {
		t.Errorf("Preview = %q", got)
	}

	var none *Conversation
	if got := none.Preview(); got != "" {
		t.Errorf("nil Preview = %q", got)
	}
}
