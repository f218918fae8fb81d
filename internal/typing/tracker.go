// Package typing maintains bounded-lifetime "is typing" facts per
// conversation and participant. A fact is refreshed by incoming activity and
// expires on explicit stop or after an idle timeout, whichever comes first.
package typing

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/scribblechat/scribble/internal/bus"
)

// DefaultIdleTimeout is how long a typing fact survives without a refresh.
const DefaultIdleTimeout = 6 * time.Second

// Fact records that a participant is composing in a conversation.
type Fact struct {
	ConversationID string
	ParticipantKey string
	UserID         string
	DisplayName    string
	LastActivity   time.Time
}

// Activity is one incoming typing signal.
type Activity struct {
	ConversationID string
	UserID         string
	DisplayName    string
	IsTyping       bool
}

// Tracker owns the typing facts and their expiry timers. Timers live in an
// explicit per-key registry so a conversation switch or logout can cancel
// every outstanding one.
type Tracker struct {
	bus  *bus.Bus
	idle time.Duration
	now  func() time.Time

	mu          sync.Mutex
	localUserID string
	facts       map[string]map[string]Fact // conversationID -> participantKey
	timers      map[string]*time.Timer     // conversationID + ":" + participantKey
}

// NewTracker creates a tracker with the given idle timeout; zero means
// DefaultIdleTimeout.
func NewTracker(b *bus.Bus, idle time.Duration) *Tracker {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Tracker{
		bus:    b,
		idle:   idle,
		now:    time.Now,
		facts:  make(map[string]map[string]Fact),
		timers: make(map[string]*time.Timer),
	}
}

// SetLocalUser records whose own typing must never be tracked.
func (t *Tracker) SetLocalUser(userID string) {
	t.mu.Lock()
	t.localUserID = userID
	t.mu.Unlock()
}

// MarkActivity applies one typing signal. Signals for the local user are
// ignored. A stop deletes the fact and cancels its timer; anything else
// upserts the fact and restarts its expiry timer (never stacks a second one).
func (t *Tracker) MarkActivity(a Activity) {
	if a.ConversationID == "" {
		return
	}

	t.mu.Lock()
	if t.localUserID != "" && a.UserID != "" && a.UserID == t.localUserID {
		t.mu.Unlock()
		return
	}

	key := participantKey(a.UserID, a.DisplayName)
	timerKey := a.ConversationID + ":" + key
	if timer, ok := t.timers[timerKey]; ok {
		timer.Stop()
		delete(t.timers, timerKey)
	}

	if !a.IsTyping {
		t.deleteFactLocked(a.ConversationID, key)
		t.mu.Unlock()
		t.publish(a.ConversationID)
		return
	}

	name := a.DisplayName
	if name == "" {
		name = "Someone"
	}
	byKey, ok := t.facts[a.ConversationID]
	if !ok {
		byKey = make(map[string]Fact)
		t.facts[a.ConversationID] = byKey
	}
	byKey[key] = Fact{
		ConversationID: a.ConversationID,
		ParticipantKey: key,
		UserID:         a.UserID,
		DisplayName:    name,
		LastActivity:   t.now(),
	}
	t.timers[timerKey] = time.AfterFunc(t.idle, func() {
		t.expire(a.ConversationID, key)
	})
	t.mu.Unlock()

	t.publish(a.ConversationID)
}

func (t *Tracker) expire(conversationID, key string) {
	t.mu.Lock()
	delete(t.timers, conversationID+":"+key)
	t.deleteFactLocked(conversationID, key)
	t.mu.Unlock()
	t.publish(conversationID)
}

func (t *Tracker) deleteFactLocked(conversationID, key string) {
	if byKey, ok := t.facts[conversationID]; ok {
		delete(byKey, key)
		if len(byKey) == 0 {
			delete(t.facts, conversationID)
		}
	}
}

// Facts returns the live typing facts for a conversation, oldest first,
// excluding the local user.
func (t *Tracker) Facts(conversationID string) []Fact {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Fact
	for _, f := range t.facts[conversationID] {
		if t.localUserID != "" && f.UserID != "" && f.UserID == t.localUserID {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].ParticipantKey < out[j].ParticipantKey
		}
		return out[i].LastActivity.Before(out[j].LastActivity)
	})
	return out
}

// Label composes the indicator text for a conversation's live facts.
func (t *Tracker) Label(conversationID string) string {
	facts := t.Facts(conversationID)
	if len(facts) == 0 {
		return ""
	}

	var names []string
	for _, f := range facts {
		if name := factName(f); name != "" {
			names = append(names, name)
		}
	}

	switch len(names) {
	case 0:
		return "Someone is typing…"
	case 1:
		return names[0] + " is typing…"
	case 2:
		return names[0] + " and " + names[1] + " are typing…"
	default:
		others := strconv.Itoa(len(names) - 2)
		return names[0] + ", " + names[1] + " and " + others + " others are typing…"
	}
}

// Reset cancels every outstanding timer and clears all facts. Called on
// conversation switch and logout so no stale timer mutates state afterwards.
func (t *Tracker) Reset() {
	t.mu.Lock()
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
	t.facts = make(map[string]map[string]Fact)
	t.mu.Unlock()
}

func (t *Tracker) publish(conversationID string) {
	if t.bus != nil {
		t.bus.Publish(bus.NewEvent(bus.KindTypingChanged, conversationID))
	}
}

func factName(f Fact) string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	if f.UserID != "" {
		return "User " + f.UserID
	}
	return ""
}

// participantKey derives a stable key so unidentified typists still produce
// a visible, if generic, indicator.
func participantKey(userID, displayName string) string {
	if userID != "" {
		return "user-" + userID
	}
	if name := strings.TrimSpace(displayName); name != "" {
		return "name-" + strings.Join(strings.Fields(strings.ToLower(name)), "-")
	}
	return "anonymous"
}
