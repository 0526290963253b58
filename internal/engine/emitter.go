package engine

import (
	"github.com/ambonmud/ambonmud/internal/event"
	"github.com/ambonmud/ambonmud/internal/model"
	"github.com/ambonmud/ambonmud/internal/outbound"
	"github.com/ambonmud/ambonmud/internal/render"
)

// emitter adapts the outbound router to the auth flow's output interface.
type emitter struct {
	out *outbound.Router
	sid model.SessionID
}

func (e emitter) Prompt(text string) {
	e.out.Publish(event.SendPrompt{SessionID: e.sid, Text: text})
}

func (e emitter) Info(text string) {
	e.out.Publish(event.SendText{SessionID: e.sid, Text: text, Kind: event.KindInfo})
}

func (e emitter) Error(text string) {
	e.out.Publish(event.SendText{SessionID: e.sid, Text: text, Kind: event.KindError})
}

func (e emitter) ShowMenu() {
	e.out.Publish(event.ShowLoginScreen{SessionID: e.sid})
	e.out.Publish(event.SendPrompt{SessionID: e.sid, Text: render.DefaultPrompt})
}
