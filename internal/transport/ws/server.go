package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ambonmud/ambonmud/internal/bus"
	"github.com/ambonmud/ambonmud/internal/config"
	"github.com/ambonmud/ambonmud/internal/transport"
)

// Server upgrades HTTP requests on /ws to websocket sessions.
type Server struct {
	cfg     config.Transport
	host    string
	port    int
	inbound *bus.Inbound
	sinks   transport.SinkRegistrar
	ids     *transport.IDAllocator

	upgrader websocket.Upgrader
}

// NewServer builds the websocket front door.
func NewServer(cfg config.Transport, port int, inbound *bus.Inbound, sinks transport.SinkRegistrar, ids *transport.IDAllocator) *Server {
	return &Server{
		cfg:     cfg,
		host:    cfg.Websocket.Host,
		port:    port,
		inbound: inbound,
		sinks:   sinks,
		ids:     ids,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The game protocol authenticates per session; origin checks
			// belong to a fronting proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run serves until ctx is done, then shuts the HTTP server down within the
// configured grace window.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("websocket listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("websocket serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	time.Sleep(time.Duration(s.cfg.Websocket.StopGraceMillis) * time.Millisecond)
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(s.cfg.Websocket.StopTimeoutMillis)*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("websocket shutdown", "error", err)
		_ = srv.Close()
	}
	return nil
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	id := s.ids.Next()
	slog.Info("websocket client connected", "session", id, "remote", r.RemoteAddr)

	sess := NewSession(id, conn, s.inbound, s.sinks,
		s.cfg.Telnet.MaxLineLen, s.cfg.Telnet.MaxNonPrintablePerLine,
		s.cfg.MaxInboundBackpressureFailures)
	sess.Start()
}
