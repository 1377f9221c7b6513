package approval

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moorebrett0/agentcore/internal/events"
	"github.com/moorebrett0/agentcore/internal/risk"
)

var shellRmAction = Action{
	ToolName:  "run_shell",
	Arguments: map[string]any{"command": "rm -rf build"},
	Risk:      risk.Dangerous,
}

// capture records approval-request events.
type capture struct {
	mu   sync.Mutex
	reqs []Request
	seen chan string
}

func newCapture() *capture { return &capture{seen: make(chan string, 8)} }

func (c *capture) Emit(e events.Event) {
	if e.Kind != events.ApprovalRequest {
		return
	}
	c.mu.Lock()
	c.reqs = append(c.reqs, e.Payload.(Request))
	c.mu.Unlock()
	c.seen <- e.RequestID
}

func TestRequest_Approved(t *testing.T) {
	c := newCapture()
	g := NewGate(WithSink(c))

	done := make(chan Decision, 1)
	go func() { done <- g.Request(context.Background(), "task", shellRmAction) }()

	id := <-c.seen
	assert.Len(t, g.Pending(), 1)
	assert.True(t, g.Resolve(id, true, "looks fine"))

	d := <-done
	assert.Equal(t, Decision{Approved: true, Note: "looks fine"}, d)
	assert.Empty(t, g.Pending())
	assert.Equal(t, "run_shell", c.reqs[0].Action.ToolName)
	assert.Equal(t, "task", c.reqs[0].TaskID)
}

func TestRequest_Denied(t *testing.T) {
	c := newCapture()
	g := NewGate(WithSink(c))

	done := make(chan Decision, 1)
	go func() { done <- g.Request(context.Background(), "task", shellRmAction) }()
	require.True(t, g.Resolve(<-c.seen, false, ""))
	assert.False(t, (<-done).Approved)
}

func TestRequest_TimesOut(t *testing.T) {
	c := newCapture()
	g := NewGate(WithSink(c), WithTimeout(20*time.Millisecond))

	d := g.Request(context.Background(), "task", shellRmAction)
	assert.Equal(t, Decision{Approved: false, Note: NoteTimedOut}, d)

	id := <-c.seen
	assert.False(t, g.Resolve(id, true, "too late"), "late resolution is a no-op")
	assert.Empty(t, g.Pending())
}

func TestRequest_Cancelled(t *testing.T) {
	g := NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := g.Request(ctx, "task", shellRmAction)
	assert.Equal(t, Decision{Approved: false, Note: NoteCancelled}, d)
}

func TestResolve_Idempotent(t *testing.T) {
	c := newCapture()
	g := NewGate(WithSink(c))

	done := make(chan Decision, 1)
	go func() { done <- g.Request(context.Background(), "task", shellRmAction) }()
	id := <-c.seen

	assert.True(t, g.Resolve(id, false, "no"))
	assert.False(t, g.Resolve(id, true, "yes"))
	assert.Equal(t, Decision{Approved: false, Note: "no"}, <-done)
	assert.False(t, g.Resolve("unknown", true, ""))
}

func TestResolve_InsideEmit(t *testing.T) {
	var g *Gate
	auto := events.SinkFunc(func(e events.Event) {
		g.Resolve(e.RequestID, true, "auto")
	})
	g = NewGate(WithSink(auto), WithTimeout(time.Second))

	d := g.Request(context.Background(), "task", shellRmAction)
	assert.Equal(t, Decision{Approved: true, Note: "auto"}, d)
}

func TestRequest_ConcurrentResolveAndTimeout(t *testing.T) {
	for i := 0; i < 50; i++ {
		c := newCapture()
		g := NewGate(WithSink(c), WithTimeout(time.Millisecond))

		done := make(chan Decision, 1)
		go func() { done <- g.Request(context.Background(), "task", shellRmAction) }()
		id := <-c.seen
		resolved := g.Resolve(id, true, "ok")

		d := <-done
		if resolved {
			assert.True(t, d.Approved)
		} else {
			assert.Equal(t, NoteTimedOut, d.Note)
		}
	}
}

func TestListenNATS(t *testing.T) {
	ns, err := events.StartEmbedded(events.ServerOptions{InProcessOnly: true})
	require.NoError(t, err)
	nc, err := events.ConnectInProcess(ns)
	require.NoError(t, err)
	defer func() { _ = events.Shutdown(nc, ns) }()

	c := newCapture()
	g := NewGate(WithSink(c))
	sub, err := ListenNATS(nc, g)
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	done := make(chan Decision, 1)
	go func() { done <- g.Request(context.Background(), "task", shellRmAction) }()
	id := <-c.seen

	body, _ := json.Marshal(Resolution{ID: id, Approved: true, Note: "remote"})
	reply, err := nc.Request(ResolveSubject, body, 2*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"accepted":true}`, string(reply.Data))

	assert.Equal(t, Decision{Approved: true, Note: "remote"}, <-done)
}
