package outbound

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambonmud/ambonmud/internal/event"
	"github.com/ambonmud/ambonmud/internal/model"
)

func drain(ch <-chan event.Frame) []event.Frame {
	var out []event.Frame
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, f)
		default:
			return out
		}
	}
}

func TestTextThenPrompt(t *testing.T) {
	r := NewRouter(16, 8)
	q := r.Register(1, false, false, nil)

	r.Apply(event.SendText{SessionID: 1, Text: "hi"})
	r.Apply(event.SendPrompt{SessionID: 1})

	frames := drain(q)
	require.Len(t, frames, 2)
	assert.Equal(t, event.TextFrame{Text: "hi\r\n"}, frames[0])
	assert.Equal(t, event.TextFrame{Text: "> ", Prompt: true}, frames[1])
}

func TestPromptCoalescing(t *testing.T) {
	r := NewRouter(16, 8)
	q := r.Register(1, false, false, nil)

	r.Apply(event.SendText{SessionID: 1, Text: "hi"})
	r.Apply(event.SendPrompt{SessionID: 1})
	r.Apply(event.SendPrompt{SessionID: 1})
	r.Apply(event.SendPrompt{SessionID: 1})

	frames := drain(q)
	require.Len(t, frames, 2, "consecutive prompts must coalesce to one frame")

	// A non-prompt frame clears the flag; the next prompt goes through.
	r.Apply(event.SendText{SessionID: 1, Text: "more"})
	r.Apply(event.SendPrompt{SessionID: 1})
	frames = drain(q)
	require.Len(t, frames, 2)
	assert.True(t, frames[1].(event.TextFrame).Prompt)
}

func TestChangedPromptNotCoalesced(t *testing.T) {
	r := NewRouter(16, 8)
	q := r.Register(1, false, false, nil)

	r.Apply(event.SendPrompt{SessionID: 1})
	r.Apply(event.SendPrompt{SessionID: 1, Text: "Username: "})

	frames := drain(q)
	require.Len(t, frames, 2)
	assert.Equal(t, "Username: ", frames[1].(event.TextFrame).Text)
}

func TestPromptCoalescing_CapacityOne(t *testing.T) {
	r := NewRouter(16, 1)
	q := r.Register(1, false, false, nil)

	r.Apply(event.SendPrompt{SessionID: 1})
	r.Apply(event.SendPrompt{SessionID: 1})

	frames := drain(q)
	require.Len(t, frames, 1)
}

func TestSlowClientEvicted(t *testing.T) {
	r := NewRouter(16, 2)
	var closedWith []string
	q := r.Register(1, false, false, func(reason string) {
		closedWith = append(closedWith, reason)
	})

	for i := 0; i < 10; i++ {
		r.Apply(event.SendText{SessionID: 1, Text: "line"})
	}

	// Exactly the queue capacity was delivered, then the session died.
	var delivered []event.Frame
	for f := range q {
		delivered = append(delivered, f)
	}
	assert.Len(t, delivered, 2)
	require.Len(t, closedWith, 1, "close must be called exactly once")
	assert.Equal(t, BackpressureReason, closedWith[0])

	// Later events for the dead session are ignored.
	r.Apply(event.SendText{SessionID: 1, Text: "after"})
	assert.Len(t, closedWith, 1)
}

func TestPromptDroppedWhenFull_NoEviction(t *testing.T) {
	r := NewRouter(16, 1)
	closed := 0
	q := r.Register(1, false, false, func(string) { closed++ })

	r.Apply(event.SendText{SessionID: 1, Text: "fill"})
	r.Apply(event.SendPrompt{SessionID: 1}) // queue full, prompt is disposable

	assert.Equal(t, 0, closed)
	frames := drain(q)
	require.Len(t, frames, 1)
	assert.Equal(t, "fill\r\n", frames[0].(event.TextFrame).Text)
}

func TestSetAnsiSwitchesRenderer(t *testing.T) {
	r := NewRouter(16, 8)
	q := r.Register(1, false, false, nil)

	r.Apply(event.SendText{SessionID: 1, Text: "plain", Kind: event.KindError})
	r.Apply(event.SetAnsi{SessionID: 1, Enabled: true})
	r.Apply(event.SendText{SessionID: 1, Text: "colored", Kind: event.KindError})

	frames := drain(q)
	require.Len(t, frames, 2)
	assert.Equal(t, "plain\r\n", frames[0].(event.TextFrame).Text)
	assert.Contains(t, frames[1].(event.TextFrame).Text, "\x1b[31m")
}

func TestStructuredOnlyForFramedClients(t *testing.T) {
	r := NewRouter(16, 8)
	telnetQ := r.Register(1, false, false, nil)
	webQ := r.Register(2, true, true, nil)

	r.Apply(event.Structured{SessionID: 1, Package: "Char.Vitals", Data: []byte(`{}`)})
	r.Apply(event.Structured{SessionID: 2, Package: "Char.Vitals", Data: []byte(`{}`)})

	assert.Empty(t, drain(telnetQ))
	frames := drain(webQ)
	require.Len(t, frames, 1)
	assert.Equal(t, "Char.Vitals", frames[0].(event.StructuredFrame).Package)
}

func TestSessionRedirectFrame(t *testing.T) {
	r := NewRouter(16, 8)
	q := r.Register(2, true, true, nil)

	r.Apply(event.SessionRedirect{SessionID: 2, EngineID: "engine-b", Host: "10.0.0.2", Port: 4000})
	frames := drain(q)
	require.Len(t, frames, 1)
	sf := frames[0].(event.StructuredFrame)
	assert.Equal(t, "Session.Redirect", sf.Package)
	assert.Contains(t, string(sf.Data), "engine-b")
}

func TestClose_GoodbyeThenTerminate(t *testing.T) {
	r := NewRouter(16, 8)
	var reasons []string
	q := r.Register(1, false, false, func(reason string) { reasons = append(reasons, reason) })

	r.Apply(event.SendText{SessionID: 1, Text: "bye soon"})
	r.Apply(event.Close{SessionID: 1, Reason: "quit", Goodbye: "Farewell!"})

	var frames []event.Frame
	for f := range q {
		frames = append(frames, f)
	}
	require.Len(t, frames, 2)
	assert.Contains(t, frames[1].(event.TextFrame).Text, "Farewell!")
	assert.Equal(t, []string{"quit"}, reasons)
}

func TestUnregisterClosesQueueWithoutCloseFn(t *testing.T) {
	r := NewRouter(16, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	called := false
	q := r.Register(1, false, false, func(string) { called = true })
	r.Unregister(1)

	select {
	case _, ok := <-q:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("queue never closed")
	}
	assert.False(t, called)
}

func TestUnregisterDuringDeliveryClosesOnce(t *testing.T) {
	r := NewRouter(256, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	for i := 0; i < 200; i++ {
		id := model.SessionID(i)
		q := r.Register(id, false, false, nil)
		done := make(chan struct{})
		go func() {
			for range q {
			}
			close(done)
		}()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Publish(event.SendText{SessionID: id, Text: "tick"})
			}
		}()
		go func() {
			defer wg.Done()
			r.Unregister(id)
		}()
		wg.Wait()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("session %d: queue never closed", id)
		}
	}
}
