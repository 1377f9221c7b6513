package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Channel buffers events for a single consumer. When the buffer is full new
// events are dropped.
type Channel struct {
	ch      chan Event
	dropped atomic.Int64

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewChannel(size int) *Channel {
	if size <= 0 {
		size = 256
	}
	return &Channel{ch: make(chan Event, size)}
}

func (c *Channel) Emit(e Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- e:
	default:
		if c.dropped.Add(1) == 1 {
			slog.Warn("events: buffer full, dropping events")
		}
	}
}

// Events returns the receive side. It is closed by Close.
func (c *Channel) Events() <-chan Event { return c.ch }

// Dropped reports how many events did not fit.
func (c *Channel) Dropped() int64 { return c.dropped.Load() }

func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.ch)
		c.mu.Unlock()
	})
}
