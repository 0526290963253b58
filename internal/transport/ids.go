// Package transport holds what the telnet and websocket variants share:
// session id allocation and the sink registrar contract.
package transport

import (
	"sync/atomic"

	"github.com/ambonmud/ambonmud/internal/event"
	"github.com/ambonmud/ambonmud/internal/model"
	"github.com/ambonmud/ambonmud/internal/outbound"
)

// IDAllocator hands out process-unique session ids across all transports.
type IDAllocator struct {
	n atomic.Int64
}

// Next returns a fresh session id, never zero.
func (a *IDAllocator) Next() model.SessionID {
	return model.SessionID(a.n.Add(1))
}

// SinkRegistrar is the slice of the outbound router a transport needs:
// obtaining a frame queue on connect and dropping it on teardown.
type SinkRegistrar interface {
	Register(id model.SessionID, ansi, structured bool, closeFn outbound.CloseFunc) <-chan event.Frame
	Unregister(id model.SessionID)
}
