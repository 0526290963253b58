package cluster

import (
	"log/slog"
	"time"

	"github.com/ambonmud/ambonmud/internal/model"
)

// HandoffOutcome classifies an initiation attempt.
type HandoffOutcome int

const (
	// HandoffInitiated means the player snapshot went out and the session
	// now waits for an ack.
	HandoffInitiated HandoffOutcome = iota
	// HandoffAlreadyInTransit rejects a second initiation for the same
	// session while the first is pending.
	HandoffAlreadyInTransit
	// HandoffNoEngine means no live engine hosts the target zone.
	HandoffNoEngine
)

// Pending is one in-flight outbound handoff. The snapshot is kept so a
// rejected or timed-out handoff can restore the player locally.
type Pending struct {
	SessionID    model.SessionID
	TargetEngine string
	TargetRoomID model.RoomID
	State        model.SerializedPlayerState
	StartedAt    time.Time
}

// HandoffManager tracks in-flight handoffs on the source side and guards
// duplicate acceptance on the target side. Single-goroutine use only: the
// engine loop owns it.
type HandoffManager struct {
	engineID   string
	ackTimeout time.Duration
	now        func() time.Time

	pending map[model.SessionID]*Pending
	// session ids accepted from other engines, to reject duplicate
	// deliveries of the same handoff
	accepted map[model.SessionID]string
}

// NewHandoffManager builds the tracker.
func NewHandoffManager(engineID string, ackTimeout time.Duration) *HandoffManager {
	return &HandoffManager{
		engineID:   engineID,
		ackTimeout: ackTimeout,
		now:        time.Now,
		pending:    make(map[model.SessionID]*Pending),
		accepted:   make(map[model.SessionID]string),
	}
}

// SetNow replaces the manager's clock, for tests that drive time.
func (m *HandoffManager) SetNow(now func() time.Time) {
	m.now = now
}

// Begin records an outbound handoff. Returns HandoffAlreadyInTransit when
// the session already has one pending.
func (m *HandoffManager) Begin(sessionID model.SessionID, targetEngine string, targetRoom model.RoomID, state model.SerializedPlayerState) HandoffOutcome {
	if _, exists := m.pending[sessionID]; exists {
		return HandoffAlreadyInTransit
	}
	m.pending[sessionID] = &Pending{
		SessionID:    sessionID,
		TargetEngine: targetEngine,
		TargetRoomID: targetRoom,
		State:        state,
		StartedAt:    m.now(),
	}
	return HandoffInitiated
}

// InTransit reports whether the session has a pending outbound handoff.
// Commands from such a session are ignored until the handoff resolves.
func (m *HandoffManager) InTransit(sessionID model.SessionID) bool {
	_, ok := m.pending[sessionID]
	return ok
}

// Resolve consumes the pending entry for an ack. The second ack for the
// same session, or an ack after timeout rollback, finds nothing and is
// logged as late. ok=false in that case.
func (m *HandoffManager) Resolve(sessionID model.SessionID) (*Pending, bool) {
	p, ok := m.pending[sessionID]
	if !ok {
		slog.Warn("late handoff ack ignored", "engine", m.engineID, "session", sessionID)
		return nil, false
	}
	delete(m.pending, sessionID)
	return p, true
}

// Expire returns and removes every pending handoff older than the ack
// timeout. The engine rolls the players back locally.
func (m *HandoffManager) Expire() []*Pending {
	cutoff := m.now().Add(-m.ackTimeout)
	var out []*Pending
	for id, p := range m.pending {
		if p.StartedAt.Before(cutoff) {
			delete(m.pending, id)
			out = append(out, p)
		}
	}
	return out
}

// Cancel drops a pending handoff without resolving it, for session death
// while in transit.
func (m *HandoffManager) Cancel(sessionID model.SessionID) {
	delete(m.pending, sessionID)
}

// PendingCount reports in-flight outbound handoffs.
func (m *HandoffManager) PendingCount() int { return len(m.pending) }

// Accept guards the target side: the first delivery of a session wins,
// a duplicate is rejected so the player cannot materialize twice.
func (m *HandoffManager) Accept(sessionID model.SessionID, sourceEngine string) bool {
	if _, dup := m.accepted[sessionID]; dup {
		slog.Warn("duplicate handoff delivery rejected",
			"engine", m.engineID, "session", sessionID, "source", sourceEngine)
		return false
	}
	m.accepted[sessionID] = sourceEngine
	return true
}

// Release forgets an accepted session once it leaves this engine again, so
// the session id can come back later.
func (m *HandoffManager) Release(sessionID model.SessionID) {
	delete(m.accepted, sessionID)
}
