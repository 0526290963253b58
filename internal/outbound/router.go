// Package outbound fans the engine's single outbound event stream out to
// per-session frame queues, applying rendering, prompt coalescing and the
// slow-client backpressure policy.
package outbound

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ambonmud/ambonmud/internal/event"
	"github.com/ambonmud/ambonmud/internal/model"
	"github.com/ambonmud/ambonmud/internal/render"
)

// BackpressureReason is the close reason handed to a session whose queue
// refused a non-prompt frame.
const BackpressureReason = "client too slow (outbound backpressure)"

// CloseFunc forcefully terminates a session's transport.
type CloseFunc func(reason string)

// sink is the router side of one session. Once Register publishes it, every
// field is owned by the drain loop; teardown included.
type sink struct {
	id         model.SessionID
	queue      chan event.Frame
	renderer   render.Renderer
	closeFn    CloseFunc
	structured bool // framed clients accept StructuredFrame

	lastEnqueuedWasPrompt bool
	lastPromptText        string
	closed                bool
}

// Router is the single consumer of engine outbound events.
type Router struct {
	events chan event.Outbound

	mu    sync.Mutex
	sinks map[model.SessionID]*sink

	queueCapacity int
}

// NewRouter sizes the shared event stream and the per-session queues.
func NewRouter(eventCapacity, sessionQueueCapacity int) *Router {
	if eventCapacity <= 0 {
		eventCapacity = 1
	}
	if sessionQueueCapacity <= 0 {
		sessionQueueCapacity = 1
	}
	return &Router{
		events:        make(chan event.Outbound, eventCapacity),
		sinks:         make(map[model.SessionID]*sink),
		queueCapacity: sessionQueueCapacity,
	}
}

// Register creates the session's frame queue and returns its consumer side.
// structured marks framed clients that can take out-of-band payloads.
func (r *Router) Register(id model.SessionID, ansi, structured bool, closeFn CloseFunc) <-chan event.Frame {
	s := &sink{
		id:         id,
		queue:      make(chan event.Frame, r.queueCapacity),
		renderer:   render.ForAnsi(ansi),
		closeFn:    closeFn,
		structured: structured,
	}
	r.mu.Lock()
	r.sinks[id] = s
	r.mu.Unlock()
	return s.queue
}

// Unregister drops a session's sink without invoking its close function
// (the transport already died on its own). The teardown itself runs on the
// drain loop so it can never race a concurrent delivery.
func (r *Router) Unregister(id model.SessionID) {
	r.events <- event.Detach{SessionID: id}
}

// Publish hands an event to the router. Called by the engine loop; blocks
// only when the shared stream is full.
func (r *Router) Publish(ev event.Outbound) {
	r.events <- ev
}

// Run drains the shared stream until ctx is done.
func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-r.events:
			r.Apply(ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Apply renders and delivers one event. Exported so engine-level tests can
// drive the router synchronously.
func (r *Router) Apply(ev event.Outbound) {
	r.mu.Lock()
	s := r.sinks[ev.Session()]
	r.mu.Unlock()
	if s == nil || s.closed {
		return
	}

	switch e := ev.(type) {
	case event.SendText:
		r.enqueue(s, event.TextFrame{Text: s.renderer.RenderLine(e.Text, e.Kind)})

	case event.SendPrompt:
		f := event.TextFrame{Text: s.renderer.RenderPrompt(e.Text), Prompt: true}
		// Coalesce repeats of the same prompt; a changed prompt (the auth
		// flow rewrites it) always goes through.
		if s.lastEnqueuedWasPrompt && f.Text == s.lastPromptText {
			return
		}
		r.enqueuePrompt(s, f)

	case event.SetAnsi:
		s.renderer = render.ForAnsi(e.Enabled)

	case event.ClearScreen:
		r.enqueue(s, event.TextFrame{Text: s.renderer.RenderClearScreen()})

	case event.ShowAnsiDemo:
		r.enqueue(s, event.TextFrame{Text: s.renderer.RenderAnsiDemo()})

	case event.ShowLoginScreen:
		r.enqueue(s, event.TextFrame{Text: s.renderer.RenderLoginScreen()})

	case event.Structured:
		if !s.structured {
			return
		}
		r.enqueue(s, event.StructuredFrame{Package: e.Package, Data: e.Data})

	case event.SessionRedirect:
		if !s.structured {
			slog.Warn("session redirect for a non-framed session dropped", "session", e.SessionID)
			return
		}
		data, err := json.Marshal(map[string]any{
			"engineId": e.EngineID,
			"host":     e.Host,
			"port":     e.Port,
		})
		if err != nil {
			slog.Error("marshal session redirect", "session", e.SessionID, "error", err)
			return
		}
		r.enqueue(s, event.StructuredFrame{Package: "Session.Redirect", Data: data})

	case event.Detach:
		r.discard(s)

	case event.Close:
		if e.Goodbye != "" {
			// Best effort; a full queue must not block the goodbye path.
			select {
			case s.queue <- event.TextFrame{Text: s.renderer.RenderLine(e.Goodbye, event.KindInfo)}:
			default:
			}
		}
		r.remove(s, e.Reason)
	}
}

// enqueue delivers a non-prompt frame. A refused non-prompt frame evicts
// the session: sink removed, close function called, queue closed.
func (r *Router) enqueue(s *sink, f event.Frame) {
	select {
	case s.queue <- f:
		s.lastEnqueuedWasPrompt = false
	default:
		slog.Warn("outbound queue full, disconnecting slow client", "session", s.id)
		r.remove(s, BackpressureReason)
	}
}

// enqueuePrompt delivers a prompt frame; refusal drops it silently.
func (r *Router) enqueuePrompt(s *sink, f event.TextFrame) {
	select {
	case s.queue <- f:
		s.lastEnqueuedWasPrompt = true
		s.lastPromptText = f.Text
	default:
	}
}

// remove unregisters the sink and terminates the session exactly once.
func (r *Router) remove(s *sink, reason string) {
	if s.closed {
		return
	}
	s.closed = true
	r.mu.Lock()
	delete(r.sinks, s.id)
	r.mu.Unlock()
	if s.closeFn != nil {
		s.closeFn(reason)
	}
	close(s.queue)
}

// discard is remove without the close callback, for transports that
// already tore themselves down.
func (r *Router) discard(s *sink) {
	if s.closed {
		return
	}
	s.closed = true
	r.mu.Lock()
	delete(r.sinks, s.id)
	r.mu.Unlock()
	close(s.queue)
}
