package event

import (
	"encoding/json"

	"github.com/ambonmud/ambonmud/internal/model"
)

// TextKind selects renderer styling for a line.
type TextKind int

const (
	KindNormal TextKind = iota
	KindInfo
	KindError
)

// Outbound is an event produced by the engine loop and consumed by the
// outbound router, tagged with the destination session.
type Outbound interface {
	outbound()
	Session() model.SessionID
}

// SendText delivers one styled line.
type SendText struct {
	SessionID model.SessionID
	Text      string
	Kind      TextKind
}

// SendPrompt delivers the input prompt. Prompts are disposable: the router
// coalesces consecutive prompts and drops them under backpressure.
type SendPrompt struct {
	SessionID model.SessionID
	Text      string
}

// SetAnsi switches the session's renderer at runtime.
type SetAnsi struct {
	SessionID model.SessionID
	Enabled   bool
}

// ClearScreen clears the client's terminal (ruler line under plain).
type ClearScreen struct {
	SessionID model.SessionID
}

// ShowAnsiDemo renders the color capability demo.
type ShowAnsiDemo struct {
	SessionID model.SessionID
}

// ShowLoginScreen renders the banner and auth menu.
type ShowLoginScreen struct {
	SessionID model.SessionID
}

// Structured delivers an out-of-band frame to a framed client. Line-oriented
// sinks drop it.
type Structured struct {
	SessionID model.SessionID
	Package   string
	Data      json.RawMessage
}

// SessionRedirect tells the gateway to re-home the session on another
// engine after a successful handoff.
type SessionRedirect struct {
	SessionID model.SessionID
	EngineID  string
	Host      string
	Port      int
}

// Close delivers a goodbye line, then closes the session and removes its sink.
type Close struct {
	SessionID model.SessionID
	Reason    string
	Goodbye   string
}

// Detach removes a session's sink without a goodbye or a close callback;
// the transport connection already died on its own.
type Detach struct {
	SessionID model.SessionID
}

func (SendText) outbound()        {}
func (SendPrompt) outbound()      {}
func (SetAnsi) outbound()         {}
func (ClearScreen) outbound()     {}
func (ShowAnsiDemo) outbound()    {}
func (ShowLoginScreen) outbound() {}
func (Structured) outbound()      {}
func (SessionRedirect) outbound() {}
func (Close) outbound()           {}
func (Detach) outbound()          {}

func (e SendText) Session() model.SessionID        { return e.SessionID }
func (e SendPrompt) Session() model.SessionID      { return e.SessionID }
func (e SetAnsi) Session() model.SessionID         { return e.SessionID }
func (e ClearScreen) Session() model.SessionID     { return e.SessionID }
func (e ShowAnsiDemo) Session() model.SessionID    { return e.SessionID }
func (e ShowLoginScreen) Session() model.SessionID { return e.SessionID }
func (e Structured) Session() model.SessionID      { return e.SessionID }
func (e SessionRedirect) Session() model.SessionID { return e.SessionID }
func (e Close) Session() model.SessionID           { return e.SessionID }
func (e Detach) Session() model.SessionID          { return e.SessionID }

// Frame is one unit written to a session's wire.
type Frame interface{ frame() }

// TextFrame is rendered text, already carrying its line terminator.
type TextFrame struct {
	Text string
	// Prompt marks the frame as a prompt for coalescing.
	Prompt bool
}

// StructuredFrame is an out-of-band payload for framed clients.
type StructuredFrame struct {
	Package string
	Data    json.RawMessage
}

func (TextFrame) frame()       {}
func (StructuredFrame) frame() {}
