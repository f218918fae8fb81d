// Package push owns the push channel lifecycle: exactly one channel per
// session, a status state machine, and reconnect scheduling. Inbound payloads
// are handed to the envelope sink synchronously, in channel order.
package push

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	scriberr "github.com/scribblechat/scribble/internal/errors"
	"github.com/scribblechat/scribble/internal/status"
)

// DefaultReconnectDelay is the fixed pause before a reconnect attempt.
const DefaultReconnectDelay = 2500 * time.Millisecond

const sendTimeout = 10 * time.Second

// Manager owns the push channel handle. A generation counter silences stale
// channels: every Connect and Disconnect bumps it, and dial results, read
// loops and retry timers from an older generation discard themselves instead
// of mutating state.
type Manager struct {
	dialer  Dialer
	machine *status.Machine
	logger  *zap.Logger
	delay   time.Duration

	mu      sync.Mutex
	gen     uint64
	conn    Conn
	userID  string
	handler func(payload []byte)
	retry   *time.Timer
}

// NewManager creates a manager. The handler sink must be set before Connect.
// Status change events reach the bus through the state machine.
func NewManager(d Dialer, m *status.Machine, logger *zap.Logger) *Manager {
	return &Manager{
		dialer:  d,
		machine: m,
		logger:  logger,
		delay:   DefaultReconnectDelay,
	}
}

// SetReconnectDelay overrides the fixed reconnect delay.
func (m *Manager) SetReconnectDelay(d time.Duration) {
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
}

// SetHandler installs the envelope sink called for every inbound payload.
func (m *Manager) SetHandler(fn func(payload []byte)) {
	m.mu.Lock()
	m.handler = fn
	m.mu.Unlock()
}

// Connect opens the push channel for userID, tearing down any prior channel
// first so no duplicate channel leaks.
func (m *Manager) Connect(userID string) {
	if userID == "" {
		return
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.userID = userID
	m.stopRetryLocked()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.mu.Unlock()

	_ = m.machine.Transition(status.Connecting)
	go m.dial(gen, userID)
}

// Disconnect silences all channel callbacks, closes the channel, and cancels
// any pending reconnect. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	m.stopRetryLocked()
	m.userID = ""
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	_ = m.machine.Transition(status.Disconnected)
}

// Send writes a payload over the channel. Fails with ErrChannelNotOpen when
// the channel is not open.
func (m *Manager) Send(payload []byte) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil || m.machine.Current() != status.Open {
		return scriberr.ErrChannelNotOpen
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return conn.Write(ctx, payload)
}

// Status returns the current channel state.
func (m *Manager) Status() status.State {
	return m.machine.Current()
}

func (m *Manager) dial(gen uint64, userID string) {
	conn, err := m.dialer.Dial(context.Background(), userID)
	if err != nil {
		if !m.current(gen) {
			return
		}
		m.logger.Warn("push channel dial failed", zap.String("user_id", userID), zap.Error(err))
		_ = m.machine.Transition(status.Error)
		m.scheduleReconnect(gen, userID)
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.mu.Unlock()

	m.logger.Info("push channel open", zap.String("user_id", userID))
	_ = m.machine.Transition(status.Open)
	m.readLoop(gen, userID, conn)
}

// readLoop delivers each payload to the sink before reading the next, so no
// reordering happens across envelopes.
func (m *Manager) readLoop(gen uint64, userID string, conn Conn) {
	for {
		data, err := conn.Read(context.Background())
		if err != nil {
			if !m.current(gen) {
				return
			}
			m.mu.Lock()
			m.conn = nil
			m.mu.Unlock()

			chanErr := &scriberr.ChannelError{Err: err}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				m.logger.Info("push channel closed", zap.String("user_id", userID))
				_ = m.machine.Transition(status.Closed)
			} else {
				m.logger.Warn("push channel failed", zap.String("user_id", userID), zap.Error(chanErr))
				_ = m.machine.Transition(status.Error)
			}
			m.scheduleReconnect(gen, userID)
			return
		}

		m.mu.Lock()
		stale := gen != m.gen
		handler := m.handler
		m.mu.Unlock()
		if stale {
			return
		}
		if handler != nil {
			handler(data)
		}
	}
}

// scheduleReconnect arms the retry timer. At fire time the attempt is
// skipped if a newer Connect or Disconnect superseded it or the session user
// changed. Retries are unlimited; the fixed delay keeps them tame.
func (m *Manager) scheduleReconnect(gen uint64, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.stopRetryLocked()
	m.retry = time.AfterFunc(m.delay, func() {
		m.mu.Lock()
		stale := gen != m.gen || m.userID != userID
		m.mu.Unlock()
		if stale || !status.ShouldReconnect(m.machine.Current()) {
			return
		}
		m.logger.Info("reconnecting push channel", zap.String("user_id", userID))
		m.Connect(userID)
	})
}

func (m *Manager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}
