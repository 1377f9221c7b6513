// Package console is the terminal front end: it prints run progress and asks
// the operator to approve gated tool calls on stdin.
package console

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/moorebrett0/agentcore/internal/approval"
	"github.com/moorebrett0/agentcore/internal/brain"
	"github.com/moorebrett0/agentcore/internal/events"
	"github.com/moorebrett0/agentcore/internal/risk"
)

// Note attached to console decisions.
const Note = "console"

// Resolver settles approval requests. *approval.Gate implements it.
type Resolver interface {
	Resolve(id string, approved bool, note string) bool
}

// Interactive reports whether f is a terminal an operator can answer from.
func Interactive(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Approver answers approval-request events with a y/N prompt. Requests are
// asked one at a time in arrival order.
type Approver struct {
	gate  Resolver
	in    *bufio.Reader
	out   io.Writer
	queue chan approval.Request

	mu     sync.Mutex
	closed bool
}

func NewApprover(gate Resolver, in io.Reader, out io.Writer) *Approver {
	return &Approver{
		gate:  gate,
		in:    bufio.NewReader(in),
		out:   out,
		queue: make(chan approval.Request, 16),
	}
}

// Emit implements events.Sink.
func (a *Approver) Emit(e events.Event) {
	if e.Kind != events.ApprovalRequest {
		return
	}
	req, ok := e.Payload.(approval.Request)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- req:
	default:
		slog.Warn("console: approval queue full, leaving request to time out", "id", req.ID)
	}
}

// Run prompts for queued requests until ctx ends or input is exhausted.
func (a *Approver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-a.queue:
			approved, err := a.ask(req)
			if err != nil {
				// input is gone; remaining requests settle by timeout or remotely
				slog.Warn("console: stopped reading approvals", "err", err)
				a.mu.Lock()
				a.closed = true
				a.mu.Unlock()
				a.gate.Resolve(req.ID, false, Note)
				return
			}
			if !a.gate.Resolve(req.ID, approved, Note) {
				fmt.Fprintln(a.out, "  (already settled)")
			}
		}
	}
}

func (a *Approver) ask(req approval.Request) (bool, error) {
	args, _ := json.MarshalIndent(risk.Redact(req.Action.Arguments), "  ", "  ")
	fmt.Fprintln(a.out)
	fmt.Fprintf(a.out, "  %s wants to run %s\n", req.Action.Risk, req.Action.ToolName)
	fmt.Fprintf(a.out, "  %s\n", args)

	for {
		fmt.Fprint(a.out, "  approve? [y/N] > ")
		line, err := a.in.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		}
		if err != nil {
			return false, err
		}
		fmt.Fprintln(a.out, "  please answer y or n.")
	}
}

// Progress prints tool activity as a run proceeds.
type Progress struct {
	mu  sync.Mutex
	out io.Writer
}

func NewProgress(out io.Writer) *Progress {
	return &Progress{out: out}
}

// Emit implements events.Sink.
func (p *Progress) Emit(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch e.Kind {
	case events.ToolStart:
		if c, ok := e.Payload.(brain.ToolCall); ok {
			fmt.Fprintf(p.out, "  … %s\n", c.Name)
		}
	case events.ToolEnd:
		if r, ok := e.Payload.(brain.ToolResult); ok {
			fmt.Fprintf(p.out, "  %s %s\n", mark(r.Error == ""), r.Name)
		}
	}
}

// Check is one line of the startup checklist.
type Check struct {
	Label string
	OK    bool
}

// PrintStartup prints the startup checklist.
func PrintStartup(out io.Writer, checks []Check) {
	for _, c := range checks {
		fmt.Fprintf(out, "  %s %s\n", mark(c.OK), c.Label)
	}
	fmt.Fprintln(out)
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}
