// Package telnet is the raw TCP transport: one goroutine pair per session,
// byte-oriented line decoding, and a write pump draining the outbound
// frame queue.
package telnet

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ambonmud/ambonmud/internal/bus"
	"github.com/ambonmud/ambonmud/internal/event"
	"github.com/ambonmud/ambonmud/internal/model"
	"github.com/ambonmud/ambonmud/internal/transport"
)

const (
	writeTimeout = 5 * time.Second
	readBufSize  = 1024
)

// Session owns one telnet connection: socket I/O, line decoding and the
// outbound queue drain.
type Session struct {
	id      model.SessionID
	conn    net.Conn
	inbound *bus.Inbound
	sinks   transport.SinkRegistrar
	decoder *LineDecoder

	maxInboundFailures int
	inboundFailures    int

	frames <-chan event.Frame

	disconnectOnce sync.Once
	closeOnce      sync.Once
}

// NewSession wires a freshly accepted connection. Call Start to begin I/O.
func NewSession(
	id model.SessionID,
	conn net.Conn,
	inbound *bus.Inbound,
	sinks transport.SinkRegistrar,
	decoder *LineDecoder,
	maxInboundFailures int,
) *Session {
	return &Session{
		id:                 id,
		conn:               conn,
		inbound:            inbound,
		sinks:              sinks,
		decoder:            decoder,
		maxInboundFailures: maxInboundFailures,
	}
}

// Start emits Connected, registers the outbound sink and launches the read
// and write loops.
func (s *Session) Start() {
	if err := s.inbound.TrySend(event.Connected{SessionID: s.id}); err != nil {
		slog.Warn("inbound bus rejected new session", "session", s.id, "error", err)
		_ = s.conn.Close()
		return
	}
	// Telnet clients start in plain mode; 'ansi on' upgrades later.
	s.frames = s.sinks.Register(s.id, false, false, s.CloseNow)

	go s.readLoop()
	go s.writeLoop()
}

// CloseNow forcefully terminates the session. Safe to call from any
// goroutine and more than once; Disconnected is emitted exactly once.
func (s *Session) CloseNow(reason string) {
	s.emitDisconnected(reason)
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

func (s *Session) emitDisconnected(reason string) {
	s.disconnectOnce.Do(func() {
		ev := event.Disconnected{SessionID: s.id, Reason: reason}
		if err := s.inbound.TrySend(ev); err != nil {
			slog.Warn("disconnect event dropped", "session", s.id, "error", err)
		}
	})
}

// readLoop pulls raw bytes, decodes lines and forwards them to the engine,
// applying the inbound backpressure policy.
func (s *Session) readLoop() {
	defer func() {
		s.emitDisconnected("connection closed")
		s.sinks.Unregister(s.id)
		s.closeOnce.Do(func() { _ = s.conn.Close() })
	}()

	buf := make([]byte, readBufSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			lines, decErr := s.decoder.Feed(buf[:n])
			for _, line := range lines {
				if !s.forwardLine(line) {
					return
				}
			}
			var pv *ProtocolViolationError
			if errors.As(decErr, &pv) {
				slog.Warn("protocol violation", "session", s.id, "reason", pv.Reason)
				s.emitDisconnected(pv.Error())
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				slog.Debug("read failed", "session", s.id, "error", err)
			}
			return
		}
	}
}

// forwardLine enqueues one line on the inbound bus. Returns false when the
// session must die (backpressure budget exhausted).
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

// writeLoop drains rendered frames to the socket. Queue closure (router
// eviction or engine close) ends the session's write side.
func (s *Session) writeLoop() {
	defer func() {
		s.closeOnce.Do(func() { _ = s.conn.Close() })
	}()

	for f := range s.frames {
		tf, ok := f.(event.TextFrame)
		if !ok {
			continue // structured frames are for framed clients
		}
		if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			slog.Warn("set write deadline failed", "session", s.id, "error", err)
			return
		}
		if _, err := s.conn.Write([]byte(tf.Text)); err != nil {
			slog.Warn("write failed", "session", s.id, "error", err)
			return
		}
	}
}
