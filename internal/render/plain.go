package render

import (
	"strings"

	"github.com/ambonmud/ambonmud/internal/event"
)

// Plain renders without escape sequences, for dumb terminals.
type Plain struct{}

func (Plain) RenderLine(text string, _ event.TextKind) string {
	return text + "\r\n"
}

func (Plain) RenderPrompt(text string) string {
	if text == "" {
		return DefaultPrompt
	}
	return text
}

// RenderClearScreen emits a ruler: plain terminals get a visual break
// instead of an escape sequence.
func (Plain) RenderClearScreen() string {
	return strings.Repeat("-", 60) + "\r\n"
}

func (Plain) RenderLoginScreen() string {
	var b strings.Builder
	for _, line := range loginMenuLines {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	return b.String()
}

func (Plain) RenderAnsiDemo() string {
	return "Your client is in plain mode; type 'ansi on' to enable color.\r\n"
}
