package render

import (
	"fmt"
	"strings"

	"github.com/ambonmud/ambonmud/internal/event"
)

// SGR sequences used by the ANSI renderer.
const (
	sgrReset  = "\x1b[0m"
	sgrBold   = "\x1b[1m"
	sgrRed    = "\x1b[31m"
	sgrGreen  = "\x1b[32m"
	sgrYellow = "\x1b[33m"
	sgrCyan   = "\x1b[36m"

	clearSequence = "\x1b[2J\x1b[H"
)

// Ansi renders with SGR color codes.
type Ansi struct{}

func (Ansi) RenderLine(text string, kind event.TextKind) string {
	switch kind {
	case event.KindInfo:
		return sgrCyan + text + sgrReset + "\r\n"
	case event.KindError:
		return sgrRed + text + sgrReset + "\r\n"
	default:
		return text + "\r\n"
	}
}

func (Ansi) RenderPrompt(text string) string {
	if text == "" {
		text = DefaultPrompt
	}
	return sgrBold + sgrGreen + text + sgrReset
}

func (Ansi) RenderClearScreen() string {
	return clearSequence
}

func (Ansi) RenderLoginScreen() string {
	var b strings.Builder
	b.WriteString(sgrBold + sgrYellow + loginMenuLines[0] + sgrReset + "\r\n")
	for _, line := range loginMenuLines[1:] {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	return b.String()
}

// RenderAnsiDemo shows the 16-color palette so players can verify their
// terminal before turning styling on.
func (Ansi) RenderAnsiDemo() string {
	var b strings.Builder
	b.WriteString("ANSI color demo:\r\n")
	for code := 30; code <= 37; code++ {
		fmt.Fprintf(&b, "\x1b[%dmcolor %d\x1b[0m  \x1b[1;%dmbright %d\x1b[0m\r\n", code, code, code, code)
	}
	return b.String()
}
