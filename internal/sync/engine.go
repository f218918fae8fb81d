// Package sync is the coordinator façade over the chat sync core. The Engine
// owns the in-memory session (user, conversations, active conversation,
// message sequence, typing facts, connection status) and exposes the
// operations UI collaborators call, while the push channel feeds it inbound
// envelopes.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	syncmu "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scribblechat/scribble/internal/bus"
	"github.com/scribblechat/scribble/internal/chat"
	"github.com/scribblechat/scribble/internal/envelope"
	scriberr "github.com/scribblechat/scribble/internal/errors"
	"github.com/scribblechat/scribble/internal/handwriting"
	"github.com/scribblechat/scribble/internal/push"
	"github.com/scribblechat/scribble/internal/reconcile"
	"github.com/scribblechat/scribble/internal/status"
	"github.com/scribblechat/scribble/internal/typing"
	"github.com/scribblechat/scribble/internal/unread"
)

// TypingRenotifyInterval bounds how often a continuous "still typing" signal
// is re-announced over the channel.
const TypingRenotifyInterval = 2500 * time.Millisecond

// API is the REST collaborator consumed by the engine. Message and
// conversation records come back raw; the reconciler normalizes them.
type API interface {
	Register(ctx context.Context, username, email, password string) (chat.User, error)
	Login(ctx context.Context, email, password string) (chat.User, error)
	Conversations(ctx context.Context, userID string) ([]json.RawMessage, error)
	CreateConversation(ctx context.Context, initiatorID, targetEmail, targetUserID string) (json.RawMessage, error)
	Messages(ctx context.Context, conversationID string) ([]json.RawMessage, error)
	PostMessage(ctx context.Context, conversationID, senderID, content string) (json.RawMessage, error)
	MarkRead(ctx context.Context, conversationID, userID, messageID string) (json.RawMessage, error)
}

// Engine coordinates the sync core. Shared state is guarded by one mutex and
// treated as a compare-and-merge target: concurrent REST responses reconcile
// into it rather than assuming exclusive ownership.
type Engine struct {
	api    API
	push   *push.Manager
	typing *typing.Tracker
	bus    *bus.Bus
	logger *zap.Logger

	renotify time.Duration
	now      func() time.Time

	mu                   syncmu.Mutex
	phase                Phase
	user                 *chat.User
	conversations        []chat.Conversation
	active               *chat.Conversation
	activePhase          ConversationPhase
	messages             []chat.Message
	errMsg               string
	loadingConversations bool
	sending              bool
	typingActive         bool
	lastTypingSentAt     time.Time
}

// NewEngine wires the coordinator and installs itself as the push channel's
// envelope sink.
func NewEngine(api API, p *push.Manager, t *typing.Tracker, b *bus.Bus, logger *zap.Logger) *Engine {
	e := &Engine{
		api:         api,
		push:        p,
		typing:      t,
		bus:         b,
		logger:      logger,
		renotify:    TypingRenotifyInterval,
		now:         time.Now,
		phase:       Anonymous,
		activePhase: NoActiveConversation,
	}
	p.SetHandler(e.HandleEnvelope)
	return e
}

// Register creates an account, then brings the session up exactly like Login.
func (e *Engine) Register(ctx context.Context, username, email, password string) (chat.User, error) {
	return e.authenticate(ctx, func() (chat.User, error) {
		return e.api.Register(ctx, username, email, password)
	})
}

// Login authenticates, connects the push channel for the user, and kicks off
// a background conversation fetch.
func (e *Engine) Login(ctx context.Context, email, password string) (chat.User, error) {
	return e.authenticate(ctx, func() (chat.User, error) {
		return e.api.Login(ctx, email, password)
	})
}

func (e *Engine) authenticate(ctx context.Context, call func() (chat.User, error)) (chat.User, error) {
	e.mu.Lock()
	e.phase = Authenticating
	e.errMsg = ""
	e.mu.Unlock()

	user, err := call()
	if err != nil {
		e.mu.Lock()
		e.phase = Anonymous
		e.errMsg = scriberr.Humanize(err)
		e.mu.Unlock()
		return chat.User{}, err
	}

	e.mu.Lock()
	u := user
	e.user = &u
	e.phase = Authenticated
	e.mu.Unlock()

	e.typing.SetLocalUser(user.ID.String())
	e.bus.Publish(bus.NewEvent(bus.KindSessionLoggedIn, user))
	e.push.Connect(user.ID.String())

	go func() {
		if err := e.FetchConversations(context.Background(), false); err != nil {
			e.logger.Warn("conversation fetch after auth failed", zap.Error(err))
		}
	}()

	return user, nil
}

// FetchConversations refreshes the conversation summaries. A silent refresh
// (push-hinted) leaves the loading flag untouched so list screens do not
// flicker.
func (e *Engine) FetchConversations(ctx context.Context, silent bool) error {
	userID := e.currentUserID()
	if userID == "" {
		return nil
	}

	e.mu.Lock()
	if !silent {
		e.loadingConversations = true
	}
	e.errMsg = ""
	e.mu.Unlock()

	raws, err := e.api.Conversations(ctx, userID)
	if err != nil {
		e.mu.Lock()
		if e.sameUserLocked(userID) {
			e.errMsg = scriberr.Humanize(err)
			if !silent {
				e.loadingConversations = false
			}
		}
		e.mu.Unlock()
		return err
	}

	list := reconcile.ConversationList(raws, userID)
	e.mu.Lock()
	// A logout or user switch while the fetch was in flight makes the result
	// stale; discard it rather than repopulating a torn-down session.
	if !e.sameUserLocked(userID) {
		e.mu.Unlock()
		return nil
	}
	e.conversations = list
	if !silent {
		e.loadingConversations = false
	}
	e.mu.Unlock()

	e.bus.Publish(bus.NewEvent(bus.KindConversationsList, len(list)))
	return nil
}

func (e *Engine) sameUserLocked(userID string) bool {
	return e.user != nil && e.user.ID.String() == userID
}

// SelectConversation makes conv the active conversation (nil deselects).
// If the local user had an active typing broadcast it stops it first, clears
// transient typing state, loads history, and marks the conversation read up
// to its last known message.
func (e *Engine) SelectConversation(ctx context.Context, conv *chat.Conversation) error {
	e.mu.Lock()
	hadTyping := e.typingActive && e.active != nil
	e.mu.Unlock()
	if hadTyping {
		e.NotifyTyping(false)
	}

	e.typing.Reset()

	if conv == nil {
		e.mu.Lock()
		e.active = nil
		e.messages = nil
		e.activePhase = NoActiveConversation
		e.typingActive = false
		e.lastTypingSentAt = time.Time{}
		e.mu.Unlock()
		e.bus.Publish(bus.NewEvent(bus.KindConversationUpdate, ""))
		return nil
	}

	selected := *conv
	e.mu.Lock()
	e.active = &selected
	e.messages = nil
	e.activePhase = LoadingMessages
	e.typingActive = false
	e.lastTypingSentAt = time.Time{}
	e.mu.Unlock()
	e.bus.Publish(bus.NewEvent(bus.KindConversationUpdate, selected.ID))

	lastID := ""
	if selected.LastMessage != nil {
		lastID = selected.LastMessage.ID
	}
	e.MarkConversationRead(ctx, selected.ID, lastID)

	return e.LoadMessages(ctx, selected.ID)
}

// LoadMessages fetches the history for a conversation and, when it is still
// the active one, installs it and marks the conversation read up to the last
// loaded message. A response for a conversation that is no longer active is
// discarded rather than clobbering the switch.
func (e *Engine) LoadMessages(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		conversationID = e.activeConversationID()
	}
	if conversationID == "" {
		return nil
	}

	e.mu.Lock()
	e.activePhase = LoadingMessages
	e.errMsg = ""
	e.mu.Unlock()

	raws, err := e.api.Messages(ctx, conversationID)
	if err != nil {
		e.mu.Lock()
		e.errMsg = scriberr.Humanize(err)
		if e.active != nil && e.active.ID == conversationID {
			e.activePhase = ConversationReady
		}
		e.mu.Unlock()
		return err
	}

	normalized := reconcile.NormalizeList(raws)

	e.mu.Lock()
	if e.active == nil || e.active.ID != conversationID {
		e.mu.Unlock()
		return nil
	}
	e.messages = normalized
	e.activePhase = ConversationReady
	e.mu.Unlock()

	e.bus.Publish(bus.NewEvent(bus.KindMessagesLoaded, conversationID))

	lastID := ""
	if len(normalized) > 0 {
		lastID = normalized[len(normalized)-1].ID
	}
	e.MarkConversationRead(ctx, conversationID, lastID)
	return nil
}

// MarkConversationRead optimistically zeroes the unread state on the matching
// conversation before the acknowledging call resolves, then reconciles with
// the server's response. Failures are logged, not surfaced: read receipts are
// best-effort.
func (e *Engine) MarkConversationRead(ctx context.Context, conversationID, messageID string) {
	userID := e.currentUserID()
	if userID == "" || conversationID == "" {
		return
	}

	e.mu.Lock()
	e.clearUnreadLocked(conversationID)
	e.mu.Unlock()
	e.bus.Publish(bus.NewEvent(bus.KindConversationUpdate, conversationID))

	raw, err := e.api.MarkRead(ctx, conversationID, userID, messageID)
	if err != nil {
		e.logger.Warn("mark conversation read failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return
	}
	if len(raw) == 0 {
		return
	}

	updated := reconcile.Conversation(raw, userID)
	if updated.ID == "" {
		return
	}
	// Only an explicit numeric unread field may override the optimistic
	// clear; a re-derived count from stale flags must not resurrect it.
	count, explicit := unread.ExplicitCount(raw)

	e.mu.Lock()
	apply := func(c *chat.Conversation) {
		if c == nil || c.ID != updated.ID {
			return
		}
		if updated.Title != "" {
			c.Title = updated.Title
		}
		if len(updated.Participants) > 0 {
			c.Participants = updated.Participants
		}
		if updated.LastMessage != nil {
			c.LastMessage = updated.LastMessage
		}
		if explicit {
			c.UnreadCount = count
		}
	}
	for i := range e.conversations {
		apply(&e.conversations[i])
	}
	apply(e.active)
	e.mu.Unlock()
	e.bus.Publish(bus.NewEvent(bus.KindConversationUpdate, updated.ID))
}

func (e *Engine) clearUnreadLocked(conversationID string) {
	for i := range e.conversations {
		if e.conversations[i].ID == conversationID {
			e.conversations[i].UnreadCount = 0
		}
	}
	if e.active != nil && e.active.ID == conversationID {
		e.active.UnreadCount = 0
	}
}

// StartConversation creates (or resumes) a conversation with the target,
// addressed by email when the input contains "@", else by user id. The new
// conversation becomes active and its history is loaded.
func (e *Engine) StartConversation(ctx context.Context, target string) (chat.Conversation, error) {
	e.mu.Lock()
	user := e.user
	e.mu.Unlock()
	if user == nil {
		return chat.Conversation{}, scriberr.ErrNotAuthenticated
	}

	trimmed := strings.TrimSpace(target)
	if trimmed == "" {
		return chat.Conversation{}, errors.New("enter an email or user id to start chatting")
	}

	var targetEmail, targetUserID string
	if strings.Contains(trimmed, "@") {
		targetEmail = trimmed
	} else {
		targetUserID = trimmed
	}

	raw, err := e.api.CreateConversation(ctx, user.ID.String(), targetEmail, targetUserID)
	if err != nil {
		e.setError(err)
		return chat.Conversation{}, err
	}

	conv := reconcile.Conversation(raw, user.ID.String())

	e.mu.Lock()
	replaced := false
	for i := range e.conversations {
		if e.conversations[i].ID == conv.ID {
			e.conversations[i] = conv
			replaced = true
			break
		}
	}
	if !replaced {
		e.conversations = append([]chat.Conversation{conv}, e.conversations...)
	}
	active := conv
	e.active = &active
	e.messages = nil
	e.activePhase = LoadingMessages
	e.mu.Unlock()
	e.bus.Publish(bus.NewEvent(bus.KindConversationsList, conv.ID))

	if err := e.LoadMessages(ctx, conv.ID); err != nil {
		return conv, err
	}
	return conv, nil
}

// SendMessage runs the optimistic send protocol: insert a pending message
// under a temporary id, issue the send, then replace the temporary entry with
// the server-confirmed record — or remove it entirely on failure. A typing
// stop is emitted in all cases.
func (e *Engine) SendMessage(ctx context.Context, content string) error {
	e.mu.Lock()
	user := e.user
	active := e.active
	e.mu.Unlock()
	if user == nil || active == nil {
		return scriberr.ErrNoActiveConversation
	}

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil
	}

	defer e.NotifyTyping(false)

	tempID := "local-" + uuid.NewString()
	optimistic := reconcile.NewPending(tempID, active.ID, user.ID.String(), user.DisplayName, trimmed, e.now())

	e.mu.Lock()
	e.messages = reconcile.UpsertMessage(e.messages, optimistic)
	e.sending = true
	e.errMsg = ""
	e.mu.Unlock()
	e.bus.Publish(bus.NewEvent(bus.KindMessageUpserted, optimistic.Key))

	raw, err := e.api.PostMessage(ctx, active.ID, user.ID.String(), trimmed)
	if err != nil {
		e.mu.Lock()
		e.messages = reconcile.Remove(e.messages, tempID, optimistic.Key)
		e.sending = false
		e.errMsg = scriberr.Humanize(err)
		e.mu.Unlock()
		e.bus.Publish(bus.NewEvent(bus.KindMessageSendFailed, scriberr.Humanize(err)))
		return err
	}

	if len(raw) == 0 {
		// Server acknowledged without echoing the record; fall back to a
		// full reload.
		e.mu.Lock()
		e.sending = false
		e.mu.Unlock()
		return e.LoadMessages(ctx, active.ID)
	}

	e.mu.Lock()
	if e.active == nil || e.active.ID != active.ID {
		// Conversation switched or session torn down mid-send; the echo has
		// nowhere to land.
		e.sending = false
		e.mu.Unlock()
		return nil
	}
	e.messages = reconcile.Remove(e.messages, tempID, optimistic.Key)
	e.messages = reconcile.Upsert(e.messages, raw)
	e.sending = false
	e.mu.Unlock()
	e.bus.Publish(bus.NewEvent(bus.KindMessageUpserted, tempID))
	return nil
}

// SendHandwriting encodes a handwriting payload and sends it through the
// normal message pipeline.
func (e *Engine) SendHandwriting(ctx context.Context, p handwriting.Payload) error {
	var (
		content string
		err     error
	)
	if p.Type == "image" || (p.Type == "" && p.DataURL != "") {
		content, err = handwriting.EncodeImage(p.DataURL)
	} else {
		content, err = handwriting.EncodeStrokes(p.Strokes, p.Size)
	}
	if err != nil {
		return err
	}
	return e.SendMessage(ctx, content)
}

// NotifyTyping broadcasts the local user's typing state over the push
// channel. A signal goes out only when the channel is open, a conversation
// and user are present, and the state is changing — or the last still-typing
// signal is older than the renotify interval.
func (e *Engine) NotifyTyping(isTyping bool) {
	e.mu.Lock()
	user := e.user
	active := e.active
	wasActive := e.typingActive
	lastSent := e.lastTypingSentAt
	e.mu.Unlock()

	ready := user != nil && active != nil && e.push.Status() == status.Open
	now := e.now()
	shouldSend := ready &&
		(isTyping != wasActive || (isTyping && now.Sub(lastSent) > e.renotify))

	if shouldSend {
		payload, _ := json.Marshal(map[string]any{
			"type":           "typing",
			"conversationId": active.ID,
			"userId":         user.ID.String(),
			"isTyping":       isTyping,
		})
		if err := e.push.Send(payload); err != nil {
			e.logger.Warn("typing signal send failed", zap.Error(err))
		}
	}

	e.mu.Lock()
	e.typingActive = isTyping
	if !isTyping {
		e.lastTypingSentAt = time.Time{}
	} else if shouldSend {
		e.lastTypingSentAt = now
	}
	e.mu.Unlock()
}

// HandleEnvelope is the push channel sink. It threads the payload through the
// envelope parser, merges any message into the active conversation,
// acknowledges remote messages, applies typing events, and triggers a silent
// conversation refresh when hinted. Malformed payloads are logged and
// dropped.
func (e *Engine) HandleEnvelope(payload []byte) {
	env, err := envelope.Parse(payload)
	if err != nil {
		e.logger.Warn("dropping unparsable push payload", zap.Error(err))
		return
	}

	e.mu.Lock()
	activeID := ""
	if e.active != nil {
		activeID = e.active.ID
	}
	userID := ""
	if e.user != nil {
		userID = e.user.ID.String()
	}
	e.mu.Unlock()

	if env.Message != nil {
		applies := activeID != "" && (env.ConversationID == "" || env.ConversationID == activeID)
		if applies {
			e.mu.Lock()
			e.messages = reconcile.Upsert(e.messages, env.Message)
			e.mu.Unlock()
			e.bus.Publish(bus.NewEvent(bus.KindMessageUpserted, activeID))

			msg := reconcile.Normalize(env.Message)
			if msg.ID != "" && msg.SenderID != "" && userID != "" && msg.SenderID != userID {
				go e.MarkConversationRead(context.Background(), activeID, msg.ID)
			}
		}
	}

	if env.Typing != nil {
		conversationID := env.Typing.ConversationID
		if conversationID == "" {
			conversationID = activeID
		}
		e.typing.MarkActivity(typing.Activity{
			ConversationID: conversationID,
			UserID:         env.Typing.UserID,
			DisplayName:    env.Typing.DisplayName,
			IsTyping:       env.Typing.IsTyping,
		})
	}

	if env.RefreshConversations {
		go func() {
			if err := e.FetchConversations(context.Background(), true); err != nil {
				e.logger.Warn("conversation refresh failed", zap.Error(err))
			}
		}()
	}
}

// Logout tears the session down completely: channel callbacks silenced and
// closed, all timers cancelled, state reset to initial. No background task
// may observe or mutate session state afterwards.
func (e *Engine) Logout() {
	e.push.Disconnect()
	e.typing.Reset()
	e.typing.SetLocalUser("")

	e.mu.Lock()
	e.phase = Anonymous
	e.user = nil
	e.conversations = nil
	e.active = nil
	e.activePhase = NoActiveConversation
	e.messages = nil
	e.errMsg = ""
	e.loadingConversations = false
	e.sending = false
	e.typingActive = false
	e.lastTypingSentAt = time.Time{}
	e.mu.Unlock()

	e.bus.Publish(bus.NewEvent(bus.KindSessionLoggedOut, nil))
}

// ClearError empties the session error slot. UI calls this after showing the
// message.
func (e *Engine) ClearError() {
	e.mu.Lock()
	e.errMsg = ""
	e.mu.Unlock()
}

func (e *Engine) setError(err error) {
	e.mu.Lock()
	e.errMsg = scriberr.Humanize(err)
	e.mu.Unlock()
}

func (e *Engine) currentUserID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.user == nil {
		return ""
	}
	return e.user.ID.String()
}

func (e *Engine) activeConversationID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return ""
	}
	return e.active.ID
}
