// Package ws is the framed transport: websocket text frames in and out,
// with the GMCP out-of-band envelope recognized before line handling.
package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/ambonmud/ambonmud/internal/bus"
	"github.com/ambonmud/ambonmud/internal/event"
	"github.com/ambonmud/ambonmud/internal/model"
	"github.com/ambonmud/ambonmud/internal/transport"
)

const writeTimeout = 5 * time.Second

// Session owns one websocket connection.
type Session struct {
	id      model.SessionID
	conn    *websocket.Conn
	inbound *bus.Inbound
	sinks   transport.SinkRegistrar

	maxLineLen             int
	maxNonPrintablePerLine int
	maxInboundFailures     int
	inboundFailures        int

	frames <-chan event.Frame

	disconnectOnce sync.Once
	closeOnce      sync.Once
}

// NewSession wires an upgraded websocket connection.
func NewSession(
	id model.SessionID,
	conn *websocket.Conn,
	inbound *bus.Inbound,
	sinks transport.SinkRegistrar,
	maxLineLen, maxNonPrintablePerLine, maxInboundFailures int,
) *Session {
	return &Session{
		id:                     id,
		conn:                   conn,
		inbound:                inbound,
		sinks:                  sinks,
		maxLineLen:             maxLineLen,
		maxNonPrintablePerLine: maxNonPrintablePerLine,
		maxInboundFailures:     maxInboundFailures,
	}
}

// Start emits Connected, registers the sink and launches both loops.
func (s *Session) Start() {
	if err := s.inbound.TrySend(event.Connected{SessionID: s.id, AnsiDefault: true}); err != nil {
		slog.Warn("inbound bus rejected new session", "session", s.id, "error", err)
		_ = s.conn.Close()
		return
	}
	// Web clients render ANSI and accept structured frames.
	s.frames = s.sinks.Register(s.id, true, true, s.CloseNow)

	go s.readLoop()
	go s.writeLoop()
}

// CloseNow forcefully terminates the session; Disconnected fires once.
func (s *Session) CloseNow(reason string) {
	s.emitDisconnected(reason)
	s.closeOnce.Do(func() { _ = s.conn.Close() })
}

func (s *Session) emitDisconnected(reason string) {
	s.disconnectOnce.Do(func() {
		if err := s.inbound.TrySend(event.Disconnected{SessionID: s.id, Reason: reason}); err != nil {
			slog.Warn("disconnect event dropped", "session", s.id, "error", err)
		}
	})
}

func (s *Session) readLoop() {
	defer func() {
		s.emitDisconnected("connection closed")
		s.sinks.Unregister(s.id)
		s.closeOnce.Do(func() { _ = s.conn.Close() })
	}()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if pkg, payload, ok := parseGMCP(data); ok {
			ev := event.StructuredReceived{SessionID: s.id, Package: pkg, Data: payload}
			if err := s.inbound.TrySend(ev); err != nil {
				slog.Warn("structured event dropped", "session", s.id, "error", err)
			}
			continue
		}
		for _, line := range SplitLines(string(data)) {
			clean, err := s.sanitize(line)
			if err != nil {
				slog.Warn("protocol violation", "session", s.id, "error", err)
				s.emitDisconnected("protocol violation: " + err.Error())
				return
			}
			if !s.forwardLine(clean) {
				return
			}
		}
	}
}

func (s *Session) forwardLine(line string) bool {
	err := s.inbound.TrySend(event.LineReceived{SessionID: s.id, Line: line})
	if err == nil {
		s.inboundFailures = 0
		return true
	}
	if errors.Is(err, bus.ErrClosed) {
		return false
	}
	s.inboundFailures++
	slog.Warn("inbound bus full", "session", s.id, "consecutive", s.inboundFailures)
	if s.inboundFailures >= s.maxInboundFailures {
		s.emitDisconnected("inbound backpressure")
		return false
	}
	return true
}

func (s *Session) writeLoop() {
	defer func() {
		s.closeOnce.Do(func() { _ = s.conn.Close() })
	}()

	for f := range s.frames {
		var payload []byte
		switch fr := f.(type) {
		case event.TextFrame:
			payload = []byte(fr.Text)
		case event.StructuredFrame:
			env, err := json.Marshal(map[string]any{
				"gmcp": fr.Package,
				"data": json.RawMessage(fr.Data),
			})
			if err != nil {
				slog.Error("marshal structured frame", "session", s.id, "error", err)
				continue
			}
			payload = env
		default:
			continue
		}
		if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return
		}
		if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			slog.Warn("write failed", "session", s.id, "error", err)
			return
		}
	}
}

// sanitize applies the shared line rules: length bound and a per-line
// non-printable budget, stripping what it tolerates.
func (s *Session) sanitize(line string) (string, error) {
	nonPrintable := 0
	var b strings.Builder
	for _, c := range []byte(line) {
		if (c >= 0x20 && c <= 0x7E) || c == '\t' {
			b.WriteByte(c)
			continue
		}
		nonPrintable++
		if nonPrintable > s.maxNonPrintablePerLine {
			return "", fmt.Errorf("more than %d non-printable bytes in one line", s.maxNonPrintablePerLine)
		}
	}
	if b.Len() > s.maxLineLen {
		return "", fmt.Errorf("line exceeds %d bytes", s.maxLineLen)
	}
	return b.String(), nil
}

// SplitLines splits a text frame on \r\n, \n or \r. An empty frame is a
// single empty line.
func SplitLines(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	return strings.Split(normalized, "\n")
}

// parseGMCP recognizes exactly the {"gmcp":"<Package>","data":<json>}
// envelope, whitespace-tolerant. Anything else is line input.
func parseGMCP(data []byte) (string, json.RawMessage, bool) {
	if !gjson.ValidBytes(data) {
		return "", nil, false
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return "", nil, false
	}
	pkg := root.Get("gmcp")
	if !pkg.Exists() || pkg.Type != gjson.String || pkg.String() == "" {
		return "", nil, false
	}
	payload := root.Get("data")
	if !payload.Exists() {
		return pkg.String(), json.RawMessage("null"), true
	}
	return pkg.String(), json.RawMessage(payload.Raw), true
}
