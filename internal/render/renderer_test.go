package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ambonmud/ambonmud/internal/event"
)

func TestPlainLine(t *testing.T) {
	r := Plain{}
	assert.Equal(t, "hello\r\n", r.RenderLine("hello", event.KindNormal))
	assert.Equal(t, "oops\r\n", r.RenderLine("oops", event.KindError))
	assert.Equal(t, "> ", r.RenderPrompt(""))
	assert.Equal(t, "hp 10> ", r.RenderPrompt("hp 10> "))
}

func TestAnsiLineStyling(t *testing.T) {
	r := Ansi{}
	assert.Equal(t, "hello\r\n", r.RenderLine("hello", event.KindNormal))

	errLine := r.RenderLine("oops", event.KindError)
	assert.True(t, strings.HasPrefix(errLine, sgrRed))
	assert.True(t, strings.HasSuffix(errLine, sgrReset+"\r\n"))

	infoLine := r.RenderLine("fyi", event.KindInfo)
	assert.Contains(t, infoLine, "fyi")
	assert.True(t, strings.HasPrefix(infoLine, sgrCyan))
}

func TestAnsiPrompt(t *testing.T) {
	r := Ansi{}
	p := r.RenderPrompt("")
	assert.Contains(t, p, DefaultPrompt)
	assert.True(t, strings.HasSuffix(p, sgrReset))
	assert.False(t, strings.Contains(p, "\r\n"), "prompt must not end the line")
}

func TestClearScreen(t *testing.T) {
	assert.Equal(t, clearSequence, Ansi{}.RenderClearScreen())
	plain := Plain{}.RenderClearScreen()
	assert.True(t, strings.HasSuffix(plain, "\r\n"))
	assert.NotContains(t, plain, "\x1b")
}

func TestLoginScreenBothModes(t *testing.T) {
	for _, r := range []Renderer{Plain{}, Ansi{}} {
		screen := r.RenderLoginScreen()
		assert.Contains(t, screen, "Welcome to AmbonMUD!")
		assert.Contains(t, screen, "1) login")
		assert.Contains(t, screen, "3) play as guest")
	}
}

func TestForAnsi(t *testing.T) {
	assert.IsType(t, Ansi{}, ForAnsi(true))
	assert.IsType(t, Plain{}, ForAnsi(false))
}
