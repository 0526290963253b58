package engine

import (
	"encoding/json"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/ambonmud/ambonmud/internal/event"
	"github.com/ambonmud/ambonmud/internal/model"
)

// onStructured handles the GMCP capability packages a web client sends.
func (e *Engine) onStructured(ev event.StructuredReceived) {
	s, ok := e.sessions[ev.SessionID]
	if !ok {
		return
	}
	switch ev.Package {
	case "Core.Hello":
		root := gjson.ParseBytes(ev.Data)
		s.gmcpClient = root.Get("client").String()
		slog.Info("gmcp hello",
			"session", s.id, "client", s.gmcpClient, "version", root.Get("version").String())
	case "Core.Supports.Set":
		s.gmcpSupports = make(map[string]bool)
		for _, entry := range gjson.ParseBytes(ev.Data).Array() {
			s.gmcpSupports[entry.String()] = true
		}
	case "Char.Vitals":
		if s.authed() {
			e.emitVitals(s)
		}
	default:
		slog.Debug("unhandled gmcp package", "session", s.id, "package", ev.Package)
	}
}

// emitVitals pushes Char.Vitals to framed clients.
func (e *Engine) emitVitals(s *session) {
	if s.player == nil || !s.wantsGMCP("Char.Vitals") {
		return
	}
	p := s.player
	data, err := json.Marshal(map[string]any{
		"hp":      p.HP,
		"maxHp":   p.MaxHP,
		"mana":    p.Mana,
		"maxMana": p.MaxMana,
		"level":   p.Level,
		"xp":      p.XPTotal,
	})
	if err != nil {
		slog.Error("marshal vitals", "session", s.id, "error", err)
		return
	}
	e.publish(event.Structured{SessionID: s.id, Package: "Char.Vitals", Data: data})
}

// emitRoomInfo pushes Room.Info to framed clients.
func (e *Engine) emitRoomInfo(s *session, room *model.Room) {
	if !s.wantsGMCP("Room.Info") {
		return
	}
	exits := make(map[string]string, len(room.Exits))
	for dir, dest := range room.Exits {
		exits[dir.String()] = string(dest)
	}
	data, err := json.Marshal(map[string]any{
		"id":    string(room.ID),
		"title": room.Title,
		"zone":  string(room.ID.Zone()),
		"exits": exits,
	})
	if err != nil {
		slog.Error("marshal room info", "session", s.id, "error", err)
		return
	}
	e.publish(event.Structured{SessionID: s.id, Package: "Room.Info", Data: data})
}
