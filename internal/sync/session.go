package sync

import (
	"github.com/scribblechat/scribble/internal/chat"
	"github.com/scribblechat/scribble/internal/status"
)

// Phase is the session lifecycle state.
type Phase string

const (
	Anonymous      Phase = "anonymous"
	Authenticating Phase = "authenticating"
	Authenticated  Phase = "authenticated"
)

// ConversationPhase is the active conversation lifecycle state.
type ConversationPhase string

const (
	NoActiveConversation ConversationPhase = "no-active-conversation"
	LoadingMessages      ConversationPhase = "loading-messages"
	ConversationReady    ConversationPhase = "ready"
)

// Snapshot is the UI consumption surface: a consistent copy of the session
// state at one point in time. Consumers take a snapshot whenever a bus event
// tells them something changed.
type Snapshot struct {
	Phase                Phase
	User                 *chat.User
	Conversations        []chat.Conversation
	Active               *chat.Conversation
	ActivePhase          ConversationPhase
	Messages             []chat.Message
	Connection           status.State
	TypingLabel          string
	LoadingConversations bool
	SendingMessage       bool
	Err                  string
}

// Snapshot returns a copy of the current session state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Phase:                e.phase,
		ActivePhase:          e.activePhase,
		Connection:           e.push.Status(),
		LoadingConversations: e.loadingConversations,
		SendingMessage:       e.sending,
		Err:                  e.errMsg,
	}
	if e.user != nil {
		u := *e.user
		snap.User = &u
	}
	if e.active != nil {
		c := *e.active
		snap.Active = &c
		snap.TypingLabel = e.typing.Label(c.ID)
	}
	snap.Conversations = append([]chat.Conversation(nil), e.conversations...)
	snap.Messages = append([]chat.Message(nil), e.messages...)
	return snap
}
