// Package brain runs the reasoning and acting loop: it asks a model vendor for
// the next step, dispatches the tools it requests, and feeds results back.
package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moorebrett0/agentcore/internal/approval"
	"github.com/moorebrett0/agentcore/internal/events"
	"github.com/moorebrett0/agentcore/internal/risk"
	"github.com/moorebrett0/agentcore/internal/tool"
)

// DefaultMaxTurns bounds a run when RunOptions.MaxTurns is zero.
const DefaultMaxTurns = 50

// Approver decides whether a gated tool call may run. *approval.Gate
// implements it.
type Approver interface {
	Request(ctx context.Context, taskID string, action approval.Action) approval.Decision
}

type denyAll struct{}

func (denyAll) Request(context.Context, string, approval.Action) approval.Decision {
	return approval.Decision{Approved: false, Note: "no approver configured"}
}

// Config for creating a Brain.
type Config struct {
	Registry   *tool.Registry
	Classifier *risk.Classifier
	// Approver resolves gated calls. Without one, gated calls are denied.
	Approver Approver
	Events   events.Sink

	// Settings and Credentials select the provider for each run. Provider,
	// when set, is used instead.
	Settings    *Holder
	Credentials Credentials
	Provider    Provider

	// ApproveSensitive gates sensitive calls as well as dangerous ones.
	ApproveSensitive bool
	Retry            RetryPolicy
	ToolTimeout      time.Duration
	HeavyToolTimeout time.Duration
	MaxResultChars   int
	// MaxTurns and ContextBudget apply when RunOptions leaves them zero.
	MaxTurns      int
	ContextBudget int
}

// Brain is the turn loop. It is safe for concurrent runs; each run owns its
// own conversation copy and task state.
type Brain struct {
	registry   *tool.Registry
	classifier *risk.Classifier
	approver   Approver
	sink       events.Sink

	settings *Holder
	creds    Credentials
	fixed    Provider

	mu        sync.Mutex
	cached    Provider
	cachedFor *Settings

	approveSensitive bool
	retry            RetryPolicy
	toolTimeout      time.Duration
	heavyToolTimeout time.Duration
	maxResultChars   int
	maxTurns         int
	contextBudget    int
}

// New creates a Brain.
func New(cfg Config) (*Brain, error) {
	if cfg.Registry == nil {
		return nil, errors.New("brain: a tool registry is required")
	}
	if cfg.Provider == nil && cfg.Settings == nil {
		return nil, errors.New("brain: either a provider or provider settings are required")
	}
	b := &Brain{
		registry:         cfg.Registry,
		classifier:       cfg.Classifier,
		approver:         cfg.Approver,
		sink:             cfg.Events,
		settings:         cfg.Settings,
		creds:            cfg.Credentials,
		fixed:            cfg.Provider,
		approveSensitive: cfg.ApproveSensitive,
		retry:            cfg.Retry,
		toolTimeout:      cfg.ToolTimeout,
		heavyToolTimeout: cfg.HeavyToolTimeout,
		maxResultChars:   cfg.MaxResultChars,
		maxTurns:         cfg.MaxTurns,
		contextBudget:    cfg.ContextBudget,
	}
	if b.classifier == nil {
		b.classifier = risk.New()
	}
	if b.approver == nil {
		b.approver = denyAll{}
	}
	if b.sink == nil {
		b.sink = events.Discard
	}
	if b.retry.Attempts == 0 && b.retry.Delay == 0 && b.retry.Transient == nil {
		b.retry = DefaultRetryPolicy()
	}
	if b.maxResultChars == 0 {
		b.maxResultChars = DefaultMaxResultChars
	}
	if b.maxTurns <= 0 {
		b.maxTurns = DefaultMaxTurns
	}
	if b.contextBudget <= 0 {
		b.contextBudget = DefaultContextBudget
	}
	return b, nil
}

// RunOptions tunes one run.
type RunOptions struct {
	MaxTurns      int
	ContextBudget int
	// TaskID labels events; a random id is used when empty.
	TaskID string
}

// RunResult is the outcome of a run that did not fail.
type RunResult struct {
	TaskID       string
	Text         string
	Conversation Conversation
	Turns        int
	Cancelled    bool
}

// Run drives the conversation until the model answers without tool calls.
// Cancelling ctx stops the run between steps and returns what was gathered so
// far with Cancelled set. A model failure or an exhausted turn limit is
// returned as an error.
func (b *Brain) Run(ctx context.Context, conv Conversation, systemPrompt string, opts RunOptions) (*RunResult, error) {
	if err := conv.Validate(); err != nil {
		return nil, err
	}
	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = b.maxTurns
	}
	budget := opts.ContextBudget
	if budget <= 0 {
		budget = b.contextBudget
	}
	budget -= EstimateTokens(len(systemPrompt))

	taskID := opts.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}

	provider, err := b.provider(ctx)
	if err != nil {
		return nil, err
	}
	vendor := provider.Vendor()

	working := conv.Clone()
	var texts []string
	result := func(turns int, cancelled bool) *RunResult {
		return &RunResult{
			TaskID:       taskID,
			Text:         strings.Join(texts, "\n\n"),
			Conversation: working,
			Turns:        turns,
			Cancelled:    cancelled,
		}
	}

	for turn := 1; turn <= maxTurns; turn++ {
		if ctx.Err() != nil {
			slog.Info("brain: run cancelled", "task", taskID, "turn", turn)
			return result(turn-1, true), nil
		}

		working = Truncate(working, budget)
		decls := b.registry.ProjectFor(vendor)

		b.emit(events.Event{Kind: events.Thinking, TaskID: taskID, Turn: turn})
		resp, err := provider.Generate(context.WithoutCancel(ctx), systemPrompt, working, decls)
		if err != nil {
			slog.Error("brain: model call failed", "task", taskID, "turn", turn, "err", err)
			return nil, fmt.Errorf("turn %d: %w", turn, err)
		}

		working = append(working, assistantTurn(resp, vendor))
		if resp.Text != "" {
			texts = append(texts, resp.Text)
		}

		if len(resp.ToolCalls) == 0 {
			res := result(turn, false)
			b.emit(events.Event{Kind: events.TextComplete, TaskID: taskID, Turn: turn, Payload: res.Text})
			return res, nil
		}

		b.emit(events.Event{Kind: events.ToolCalls, TaskID: taskID, Turn: turn, Payload: resp.ToolCalls})
		if ctx.Err() != nil {
			working = append(working, cancelledResults(resp.ToolCalls))
			slog.Info("brain: run cancelled before dispatch", "task", taskID, "turn", turn)
			return result(turn, true), nil
		}

		results := b.dispatch(ctx, taskID, turn, resp.ToolCalls)
		working = append(working, Turn{Role: RoleToolResults, Results: results})
		b.emit(events.Event{Kind: events.ToolResults, TaskID: taskID, Turn: turn, Payload: results})
	}

	slog.Warn("brain: hit max turns", "task", taskID, "max", maxTurns)
	return nil, &ExhaustedError{MaxTurns: maxTurns}
}

// Ask runs a single user message and returns the final text.
func (b *Brain) Ask(ctx context.Context, systemPrompt, message string) (string, error) {
	res, err := b.Run(ctx, Conversation{UserText(message)}, systemPrompt, RunOptions{})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// provider returns the adapter for the current settings, rebuilding it only
// when the settings holder has been updated.
func (b *Brain) provider(ctx context.Context) (Provider, error) {
	if b.fixed != nil {
		return b.fixed, nil
	}
	s := b.settings.Load()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cached != nil && b.cachedFor == s {
		return b.cached, nil
	}
	p, err := NewProvider(ctx, *s, b.creds)
	if err != nil {
		return nil, err
	}
	b.cached, b.cachedFor = p, s
	return p, nil
}

func (b *Brain) emit(e events.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.sink.Emit(e)
}
