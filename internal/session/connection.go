package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/viva-learn/viva/internal/model"
)

// DefaultJoinTimeout bounds how long a join attempt may stay unresolved.
const DefaultJoinTimeout = 30 * time.Second

// Beacon delivers the best-effort "end remote session" notification.
// Satisfied by *room.Client. The call must never block the caller.
type Beacon interface {
	EndConversation(conversationID string)
}

// transitions is the connection state machine. A state absent from the
// map is terminal.
var transitions = map[model.ConnectionState][]model.ConnectionState{
	model.StateIdle:       {model.StateConnecting, model.StateEnded},
	model.StateConnecting: {model.StateConnected, model.StateDegraded, model.StateFailed, model.StateEnded},
	model.StateDegraded:   {model.StateConnected, model.StateFailed, model.StateEnded},
	model.StateConnected:  {model.StateEnded},
}

func canTransition(from, to model.ConnectionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Manager owns the connection lifecycle of one live session. Signals
// arriving after a terminal state are dropped, and the join attempt races
// a deadline timer: whichever resolves first wins.
type Manager struct {
	mu sync.Mutex

	sess     *model.Session
	state    model.ConnectionState
	reason   model.ConnectionReason
	beacon   Beacon
	detector *CompletionDetector
	persist  func(state model.ConnectionState)

	joinTimeout time.Duration
	timer       *time.Timer

	// handlersActive guards signal delivery; it is cleared before any
	// terminal action so a leave's own "ended" echo cannot re-enter.
	handlersActive bool
	fallbackUsed   bool

	muted    bool
	videoOff bool
}

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Session     *model.Session
	Beacon      Beacon
	Detector    *CompletionDetector
	JoinTimeout time.Duration
	// Persist is called with each new state; it may be nil.
	Persist func(state model.ConnectionState)
}

// NewManager creates a manager in the Idle state.
func NewManager(cfg ManagerConfig) *Manager {
	timeout := cfg.JoinTimeout
	if timeout <= 0 {
		timeout = DefaultJoinTimeout
	}
	return &Manager{
		sess:        cfg.Session,
		state:       model.StateIdle,
		beacon:      cfg.Beacon,
		detector:    cfg.Detector,
		persist:     cfg.Persist,
		joinTimeout: timeout,
	}
}

// State returns the current connection state.
func (m *Manager) State() model.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the failure as a *model.ConnectionError once the manager is
// Failed, and nil otherwise.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != model.StateFailed {
		return nil
	}
	return &model.ConnectionError{Reason: m.reason}
}

// FallbackUsed reports whether the session degraded to the alternate
// transport.
func (m *Manager) FallbackUsed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fallbackUsed
}

// Join starts the connection attempt and arms the deadline timer.
func (m *Manager) Join() error {
	m.mu.Lock()
	if !canTransition(m.state, model.StateConnecting) {
		state := m.state
		m.mu.Unlock()
		return &model.ConnectionError{Reason: model.ReasonUnknown, Err: errInvalidJoin(state)}
	}
	m.handlersActive = true
	m.setStateLocked(model.StateConnecting)
	m.timer = time.AfterFunc(m.joinTimeout, m.onDeadline)
	m.mu.Unlock()
	return nil
}

// HandleJoined processes the remote "joined" signal.
func (m *Manager) HandleJoined() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.handlersActive || !canTransition(m.state, model.StateConnected) {
		return
	}
	m.stopTimerLocked()
	m.setStateLocked(model.StateConnected)
}

// HandleTransportIncompatible processes a cross-context signal that means
// the embedded transport is blocked, not broken. The same logical session
// is re-attempted over the alternate transport while the original deadline
// keeps running.
func (m *Manager) HandleTransportIncompatible() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.handlersActive || !canTransition(m.state, model.StateDegraded) {
		return
	}
	m.fallbackUsed = true
	m.setStateLocked(model.StateDegraded)
	slog.Info("falling back to alternate transport", "session_id", m.sess.ID, "room_handle", m.sess.RoomHandle)
}

// HandleTransportError processes an explicit transport failure.
func (m *Manager) HandleTransportError(reason model.ConnectionReason) {
	if reason == "" {
		reason = model.ReasonUnknown
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.handlersActive || !canTransition(m.state, model.StateFailed) {
		return
	}
	m.failLocked(reason)
}

// HandleRemoteLeft processes the remote "left" signal, completing the
// session when it was connected.
func (m *Manager) HandleRemoteLeft() {
	m.mu.Lock()
	if !m.handlersActive || m.state != model.StateConnected {
		m.mu.Unlock()
		return
	}
	m.teardownLocked()
	m.setStateLocked(model.StateEnded)
	detector := m.detector
	m.mu.Unlock()

	if detector != nil {
		detector.Signal(EndRemote)
	}
}

// Leave processes a local leave request from any non-terminal state. All
// timers and subscriptions are released synchronously before the remote
// end notification is dispatched, so the leave's own "ended" echo cannot
// fire duplicate completion callbacks. The beacon itself is never awaited.
func (m *Manager) Leave() {
	m.mu.Lock()
	if m.state.Terminal() {
		m.mu.Unlock()
		return
	}
	m.teardownLocked()
	m.setStateLocked(model.StateEnded)
	detector := m.detector
	conversationID := m.sess.ConversationID
	m.mu.Unlock()

	if m.beacon != nil {
		m.beacon.EndConversation(conversationID)
	}
	if detector != nil {
		detector.Signal(EndLocal)
	}
}

// SetMuted toggles the local audio mute. The toggle is state-local and is
// rejected as a no-op while not connected; it reports whether it applied.
func (m *Manager) SetMuted(muted bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != model.StateConnected {
		return false
	}
	m.muted = muted
	return true
}

// SetVideoOff toggles the local video track, with the same state-local
// no-op semantics as SetMuted.
func (m *Manager) SetVideoOff(off bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != model.StateConnected {
		return false
	}
	m.videoOff = off
	return true
}

// onDeadline fires when the join deadline elapses before Connected.
func (m *Manager) onDeadline() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.handlersActive || !canTransition(m.state, model.StateFailed) {
		return
	}
	m.failLocked(model.ReasonTimeout)
}

func (m *Manager) failLocked(reason model.ConnectionReason) {
	m.stopTimerLocked()
	m.handlersActive = false
	m.reason = reason
	m.setStateLocked(model.StateFailed)
	slog.Warn("connection failed", "session_id", m.sess.ID, "reason", reason)
}

// teardownLocked releases the timer and disables signal handlers. It must
// run before any terminal action.
func (m *Manager) teardownLocked() {
	m.stopTimerLocked()
	m.handlersActive = false
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) setStateLocked(state model.ConnectionState) {
	m.state = state
	if m.persist != nil {
		m.persist(state)
	}
}

type errInvalidJoin model.ConnectionState

func (e errInvalidJoin) Error() string {
	return "join not allowed from state " + string(e)
}
