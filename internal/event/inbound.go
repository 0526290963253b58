// Package event defines the typed events flowing between the transports,
// the engine loop and the outbound router. Events are tagged unions: a
// marker interface plus one struct per variant.
package event

import (
	"encoding/json"

	"github.com/ambonmud/ambonmud/internal/model"
)

// Inbound is an event produced by a transport session and consumed by the
// engine loop.
type Inbound interface {
	inbound()
	Session() model.SessionID
}

// Connected is emitted exactly once per session, before any line.
type Connected struct {
	SessionID model.SessionID
	// AnsiDefault is the transport's guess (web clients default to ANSI on).
	AnsiDefault bool
}

// LineReceived carries one complete, sanitized input line.
type LineReceived struct {
	SessionID model.SessionID
	Line      string
}

// StructuredReceived carries an out-of-band frame from a framed client.
// Never passes through line sanitization or the command parser.
type StructuredReceived struct {
	SessionID model.SessionID
	Package   string
	Data      json.RawMessage
}

// Disconnected is emitted exactly once per session, after the last line.
type Disconnected struct {
	SessionID model.SessionID
	Reason    string
}

func (Connected) inbound()          {}
func (LineReceived) inbound()       {}
func (StructuredReceived) inbound() {}
func (Disconnected) inbound()       {}

func (e Connected) Session() model.SessionID          { return e.SessionID }
func (e LineReceived) Session() model.SessionID       { return e.SessionID }
func (e StructuredReceived) Session() model.SessionID { return e.SessionID }
func (e Disconnected) Session() model.SessionID       { return e.SessionID }
