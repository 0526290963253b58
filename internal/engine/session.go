package engine

import (
	"github.com/ambonmud/ambonmud/internal/auth"
	"github.com/ambonmud/ambonmud/internal/model"
)

// session is the engine-side state of one connection. Before auth only the
// flow is live; after auth the player pointer is set and the flow is done.
type session struct {
	id     model.SessionID
	flow   *auth.Flow
	player *model.Player

	ansi bool

	// gmcp capability, learned from Core.Hello / Core.Supports.Set
	gmcpClient   string
	gmcpSupports map[string]bool
}

func newSession(id model.SessionID, ansi bool) *session {
	return &session{
		id:           id,
		flow:         &auth.Flow{},
		ansi:         ansi,
		gmcpSupports: make(map[string]bool),
	}
}

func (s *session) authed() bool { return s.player != nil }

func (s *session) wantsGMCP(pkg string) bool {
	if len(s.gmcpSupports) == 0 {
		// A client that said hello but never narrowed support gets
		// everything; a silent client gets everything too, the router
		// drops structured frames for line-only sinks anyway.
		return true
	}
	return s.gmcpSupports[pkg]
}
