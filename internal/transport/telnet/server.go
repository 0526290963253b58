package telnet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/ambonmud/ambonmud/internal/bus"
	"github.com/ambonmud/ambonmud/internal/config"
	"github.com/ambonmud/ambonmud/internal/transport"
)

// Server accepts raw TCP connections and spawns a Session per client.
type Server struct {
	cfg     config.Transport
	port    int
	inbound *bus.Inbound
	sinks   transport.SinkRegistrar
	ids     *transport.IDAllocator

	ln net.Listener
}

// NewServer builds the telnet front door.
func NewServer(cfg config.Transport, port int, inbound *bus.Inbound, sinks transport.SinkRegistrar, ids *transport.IDAllocator) *Server {
	return &Server{
		cfg:     cfg,
		port:    port,
		inbound: inbound,
		sinks:   sinks,
		ids:     ids,
	}
}

// Run listens until ctx is done. Each accepted connection gets its own
// decoder and goroutine pair.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("telnet listen on :%d: %w", s.port, err)
	}
	s.ln = ln
	slog.Info("telnet listening", "port", s.port)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Warn("accept failed", "error", err)
			continue
		}
		id := s.ids.Next()
		slog.Info("telnet client connected", "session", id, "remote", conn.RemoteAddr())

		dec := NewLineDecoder(s.cfg.Telnet.MaxLineLen, s.cfg.Telnet.MaxNonPrintablePerLine)
		sess := NewSession(id, conn, s.inbound, s.sinks, dec, s.cfg.MaxInboundBackpressureFailures)
		sess.Start()
	}
}
