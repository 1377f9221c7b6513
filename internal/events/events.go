// Package events carries fire-and-forget notifications from the agent core to
// whatever front end is listening.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Kind names an event.
type Kind string

const (
	Thinking        Kind = "thinking"
	ToolCalls       Kind = "tool-calls"
	ToolStart       Kind = "tool-start"
	ToolEnd         Kind = "tool-end"
	ToolResults     Kind = "tool-results"
	ApprovalRequest Kind = "approval-request"
	TextComplete    Kind = "text-complete"
)

// Event is one notification. Payload depends on Kind: tool calls and results
// for the tool-* kinds, the pending action for approval-request, the final
// text for text-complete.
type Event struct {
	Kind      Kind      `json:"kind"`
	TaskID    string    `json:"taskId"`
	Turn      int       `json:"turn,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives events. Emit must not block the caller.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans an event out to several sinks.
type Multi []Sink

func (m Multi) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// Fanout is a Multi that sinks can join after it has been handed out.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

func (f *Fanout) Add(s Sink) {
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
}

func (f *Fanout) Emit(e Event) {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()
	Multi(sinks).Emit(e)
}

// LogSink mirrors events to slog at debug level.
type LogSink struct{}

func (LogSink) Emit(e Event) {
	slog.Debug("events: "+string(e.Kind), "task", e.TaskID, "turn", e.Turn, "request", e.RequestID)
}
