package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/moorebrett0/agentcore/internal/approval"
	"github.com/moorebrett0/agentcore/internal/events"
	"github.com/moorebrett0/agentcore/internal/risk"
	"github.com/moorebrett0/agentcore/internal/tool"
)

// DefaultMaxResultChars caps the text of a single tool result.
const DefaultMaxResultChars = 30000

// Error values reported in ToolResult.Error.
const (
	ResultDenied    = "denied"
	ResultCancelled = "cancelled"
	ResultUnknown   = "unknown tool"
)

type job struct {
	idx   int
	call  ToolCall
	tool  *tool.Tool
	input map[string]any
	level risk.Level
}

// dispatch runs one turn's tool calls and returns their results in call
// order. Dangerous calls wait for approval one at a time; everything allowed
// to run then executes concurrently.
func (b *Brain) dispatch(ctx context.Context, taskID string, turn int, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))
	var runnable, gated []job

	for i, c := range calls {
		t, ok := b.registry.Get(c.Name)
		if !ok {
			results[i] = b.unknownTool(c)
			continue
		}
		j := job{idx: i, call: c, tool: t, input: tool.NormalizeArgs(t.Parameters, c.Input)}

		b.classifier.SetDefault(t.Name, t.Risk)
		j.level = b.classifier.Classify(t.Name, j.input)
		if j.level == risk.Dangerous || (b.approveSensitive && j.level == risk.Sensitive) {
			gated = append(gated, j)
			continue
		}
		runnable = append(runnable, j)
	}

	for _, j := range gated {
		d := b.approver.Request(ctx, taskID, approval.Action{
			ToolName:  j.call.Name,
			Arguments: j.input,
			Risk:      j.level,
		})
		if !d.Approved {
			slog.Info("brain: tool call denied", "tool", j.call.Name, "note", d.Note)
			content := "The user denied this tool call."
			if d.Note != "" {
				content = fmt.Sprintf("The tool call was denied (%s).", d.Note)
			}
			results[j.idx] = ToolResult{ID: j.call.ID, Name: j.call.Name, Content: content, Error: ResultDenied}
			continue
		}
		runnable = append(runnable, j)
	}

	// Tool work is never interrupted by run cancellation.
	execCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for _, j := range runnable {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			b.emit(events.Event{Kind: events.ToolStart, TaskID: taskID, Turn: turn, Payload: j.call})
			results[j.idx] = b.execute(execCtx, j)
			b.emit(events.Event{Kind: events.ToolEnd, TaskID: taskID, Turn: turn, Payload: results[j.idx]})
		}(j)
	}
	wg.Wait()
	return results
}

func (b *Brain) unknownTool(c ToolCall) ToolResult {
	names := b.registry.Names()
	available := "none"
	if len(names) > 0 {
		available = strings.Join(names, ", ")
	}
	return ToolResult{
		ID:      c.ID,
		Name:    c.Name,
		Content: fmt.Sprintf("Unknown tool %q. Available tools: %s", c.Name, available),
		Error:   ResultUnknown,
	}
}

// execute runs a single call with its timeout and the retry policy.
func (b *Brain) execute(ctx context.Context, j job) ToolResult {
	timeout := b.timeoutFor(j.tool)
	start := time.Now()

	var (
		out string
		err error
	)
	for attempt := 0; attempt <= b.retry.Attempts; attempt++ {
		if attempt > 0 {
			slog.Warn("brain: transient tool failure, retrying", "tool", j.call.Name, "attempt", attempt+1, "err", err)
			time.Sleep(b.retry.Delay)
		}
		out, err = runWithTimeout(ctx, j.tool, j.input, timeout)
		if err == nil || !b.retry.IsTransient(err) {
			break
		}
	}

	res := ToolResult{ID: j.call.ID, Name: j.call.Name}
	if err != nil {
		slog.Warn("brain: tool failed", "tool", j.call.Name, "err", err, "elapsed", time.Since(start))
		res.Error = err.Error()
		res.Content = fmt.Sprintf("Error executing %s: %v", j.call.Name, err)
		if strings.TrimSpace(out) != "" {
			res.Content += "\nOutput:\n" + out
		}
	} else {
		res.Content = out
	}
	res.Content = truncateOutput(res.Content, b.maxResultChars)
	return res
}

func (b *Brain) timeoutFor(t *tool.Tool) time.Duration {
	return t.Timeout(b.toolTimeout, b.heavyToolTimeout)
}

// runWithTimeout races the tool against its deadline. A tool that ignores its
// context keeps running in the background; only the wait is abandoned.
func runWithTimeout(ctx context.Context, t *tool.Tool, input map[string]any, d time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		out string
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		out, err := t.Execute(ctx, input)
		ch <- outcome{out, err}
	}()

	select {
	case o := <-ch:
		return o.out, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%s timed out after %s: %w", t.Name, d, context.DeadlineExceeded)
		}
		return "", ctx.Err()
	}
}

// truncateOutput keeps the head and tail of s when it exceeds max characters.
func truncateOutput(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	half := max / 2
	head, tail := half, len(s)-half
	for head > 0 && !utf8.RuneStart(s[head]) {
		head--
	}
	for tail < len(s) && !utf8.RuneStart(s[tail]) {
		tail++
	}
	removed := tail - head
	return fmt.Sprintf("%s\n\n[... %d characters truncated ...]\n\n%s", s[:head], removed, s[tail:])
}

func cancelledResults(calls []ToolCall) Turn {
	results := make([]ToolResult, len(calls))
	for i, c := range calls {
		results[i] = ToolResult{ID: c.ID, Name: c.Name, Content: "The run was cancelled before this tool ran.", Error: ResultCancelled}
	}
	return Turn{Role: RoleToolResults, Results: results}
}
