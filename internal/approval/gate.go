// Package approval suspends risky tool calls until an operator approves or
// denies them, or a timeout denies them automatically.
package approval

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moorebrett0/agentcore/internal/events"
	"github.com/moorebrett0/agentcore/internal/risk"
)

// DefaultTimeout is how long a request waits before it is denied.
const DefaultTimeout = 5 * time.Minute

// Notes attached to decisions the gate makes itself.
const (
	NoteTimedOut  = "timed out"
	NoteCancelled = "cancelled"
)

// Action describes the call awaiting approval.
type Action struct {
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments"`
	Risk      risk.Level     `json:"riskLevel"`
}

// Request is an outstanding approval.
type Request struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	Action    Action    `json:"action"`
	CreatedAt time.Time `json:"createdAt"`
}

// Decision is the single outcome of a request.
type Decision struct {
	Approved bool   `json:"approved"`
	Note     string `json:"note,omitempty"`
}

type pending struct {
	req Request
	ch  chan Decision
}

// Gate correlates approval requests with their resolutions.
type Gate struct {
	mu      sync.Mutex
	pending map[string]*pending

	timeout time.Duration
	sink    events.Sink
	now     func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

func WithTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithSink sets where approval-request events are published.
func WithSink(s events.Sink) Option {
	return func(g *Gate) {
		if s != nil {
			g.sink = s
		}
	}
}

func NewGate(opts ...Option) *Gate {
	g := &Gate{
		pending: make(map[string]*pending),
		timeout: DefaultTimeout,
		sink:    events.Discard,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Request publishes an approval-request and blocks until it is resolved, the
// timeout elapses, or ctx ends. Timeout and cancellation deny.
func (g *Gate) Request(ctx context.Context, taskID string, action Action) Decision {
	p := &pending{
		req: Request{
			ID:        uuid.NewString(),
			TaskID:    taskID,
			Action:    action,
			CreatedAt: g.now(),
		},
		ch: make(chan Decision, 1),
	}

	g.mu.Lock()
	g.pending[p.req.ID] = p
	g.mu.Unlock()

	slog.Info("approval: requested", "id", p.req.ID, "tool", action.ToolName, "risk", action.Risk)
	g.sink.Emit(events.Event{
		Kind:      events.ApprovalRequest,
		TaskID:    taskID,
		RequestID: p.req.ID,
		Payload:   p.req,
		Timestamp: p.req.CreatedAt,
	})

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case d := <-p.ch:
		return d
	case <-timer.C:
		return g.settle(p, Decision{Approved: false, Note: NoteTimedOut})
	case <-ctx.Done():
		return g.settle(p, Decision{Approved: false, Note: NoteCancelled})
	}
}

// settle resolves p locally unless an external resolution claimed it first,
// in which case that resolution is returned.
func (g *Gate) settle(p *pending, d Decision) Decision {
	if g.take(p.req.ID) != nil {
		slog.Info("approval: auto-denied", "id", p.req.ID, "note", d.Note)
		return d
	}
	return <-p.ch
}

// Resolve delivers an operator decision. It reports whether the request was
// still pending; resolving an unknown or settled id is a no-op.
func (g *Gate) Resolve(id string, approved bool, note string) bool {
	p := g.take(id)
	if p == nil {
		slog.Debug("approval: resolve for settled request ignored", "id", id)
		return false
	}
	p.ch <- Decision{Approved: approved, Note: note}
	slog.Info("approval: resolved", "id", id, "approved", approved)
	return true
}

// Pending lists outstanding requests, oldest first.
func (g *Gate) Pending() []Request {
	g.mu.Lock()
	out := make([]Request, 0, len(g.pending))
	for _, p := range g.pending {
		out = append(out, p.req)
	}
	g.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (g *Gate) take(id string) *pending {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pending[id]
	if !ok {
		return nil
	}
	delete(g.pending, id)
	return p
}
