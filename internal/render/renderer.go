// Package render converts outbound events into wire text. Renderers are
// pure: they own no I/O and no session state beyond styling choice.
package render

import "github.com/ambonmud/ambonmud/internal/event"

// DefaultPrompt is emitted when a prompt event carries no text.
const DefaultPrompt = "> "

// Renderer turns engine output into terminal-ready strings. Line output
// always carries its own "\r\n" terminator.
type Renderer interface {
	RenderLine(text string, kind event.TextKind) string
	RenderPrompt(text string) string
	RenderClearScreen() string
	RenderLoginScreen() string
	RenderAnsiDemo() string
}

// ForAnsi picks the renderer for a session's current ANSI setting.
func ForAnsi(enabled bool) Renderer {
	if enabled {
		return Ansi{}
	}
	return Plain{}
}

var loginMenuLines = []string{
	"Welcome to AmbonMUD!",
	"",
	"  1) login",
	"  2) create a new character",
	"  3) play as guest",
	"",
	"Choose an option:",
}
