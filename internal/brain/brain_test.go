package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moorebrett0/agentcore/internal/approval"
	"github.com/moorebrett0/agentcore/internal/events"
	"github.com/moorebrett0/agentcore/internal/risk"
	"github.com/moorebrett0/agentcore/internal/tool"
)

func newTestBrain(t *testing.T, p Provider, reg *tool.Registry, mods ...func(*Config)) *Brain {
	t.Helper()
	cfg := Config{
		Registry: reg,
		Provider: p,
		Retry:    RetryPolicy{Attempts: 2, Delay: time.Millisecond, Transient: DefaultTransient},
	}
	for _, m := range mods {
		m(&cfg)
	}
	b, err := New(cfg)
	require.NoError(t, err)
	return b
}

func registryWith(t *testing.T, tools ...*tool.Tool) *tool.Registry {
	t.Helper()
	r := tool.NewRegistry()
	for _, tl := range tools {
		require.NoError(t, r.Register(tl))
	}
	return r
}

func fnTool(name string, level risk.Level, fn tool.Func) *tool.Tool {
	return &tool.Tool{
		Name:        name,
		Category:    tool.CategorySystem,
		Description: name,
		Parameters:  tool.Object(map[string]*tool.Schema{"text": {Type: tool.TypeString}}),
		Risk:        level,
		Execute:     fn,
	}
}

func echo(name string) *tool.Tool {
	return fnTool(name, risk.Safe, func(_ context.Context, in map[string]any) (string, error) {
		return fmt.Sprintf("%s:%v", name, in["text"]), nil
	})
}

func call(id, name string, input map[string]any) ToolCall {
	if input == nil {
		input = map[string]any{}
	}
	return ToolCall{ID: id, Name: name, Input: input}
}

func TestRun_FinalAnswer(t *testing.T) {
	p := &scripted{responses: []*Result{textResult("hello")}}
	rec := events.NewChannel(16)
	b := newTestBrain(t, p, registryWith(t, echo("e1")), func(c *Config) { c.Events = rec })

	res, err := b.Run(context.Background(), Conversation{UserText("hi")}, "sys", RunOptions{TaskID: "t1"})
	require.NoError(t, err)

	assert.Equal(t, "hello", res.Text)
	assert.Equal(t, 1, res.Turns)
	assert.False(t, res.Cancelled)
	assert.Equal(t, "t1", res.TaskID)
	require.Len(t, res.Conversation, 2)
	assert.Equal(t, RoleAssistant, res.Conversation[1].Role)

	rec.Close()
	var kinds []events.Kind
	for e := range rec.Events() {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []events.Kind{events.Thinking, events.TextComplete}, kinds)
	assert.Equal(t, "e1", p.decls[0][0].Name)
}

func TestRun_ToolLoop(t *testing.T) {
	p := &scripted{responses: []*Result{
		{Text: "checking", ToolCalls: []ToolCall{call("a", "e1", map[string]any{"text": "x"}), call("b", "e2", map[string]any{"text": "y"})}},
		textResult("done"),
	}}
	b := newTestBrain(t, p, registryWith(t, echo("e1"), echo("e2")))

	res, err := b.Run(context.Background(), Conversation{UserText("go")}, "", RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, "checking\n\ndone", res.Text)
	assert.Equal(t, 2, res.Turns)
	require.NoError(t, res.Conversation.Validate())

	results := res.Conversation[2].Results
	require.Len(t, results, 2)
	assert.Equal(t, ToolResult{ID: "a", Name: "e1", Content: "e1:x"}, results[0])
	assert.Equal(t, ToolResult{ID: "b", Name: "e2", Content: "e2:y"}, results[1])

	// the second model call saw the tool results
	require.Len(t, p.seen, 2)
	assert.Len(t, p.seen[1], 3)
}

func TestRun_ToolsRunConcurrently(t *testing.T) {
	var running atomic.Int32
	both := make(chan struct{})
	var once sync.Once
	wait := func(_ context.Context, _ map[string]any) (string, error) {
		if running.Add(1) == 2 {
			once.Do(func() { close(both) })
		}
		select {
		case <-both:
			return "ok", nil
		case <-time.After(2 * time.Second):
			return "", errors.New("sibling never started")
		}
	}
	p := &scripted{responses: []*Result{
		callResult(call("1", "w1", nil), call("2", "w2", nil)),
		textResult("done"),
	}}
	b := newTestBrain(t, p, registryWith(t, fnTool("w1", risk.Safe, wait), fnTool("w2", risk.Safe, wait)))

	res, err := b.Run(context.Background(), Conversation{UserText("go")}, "", RunOptions{})
	require.NoError(t, err)
	for _, r := range res.Conversation[2].Results {
		assert.Empty(t, r.Error)
		assert.Equal(t, "ok", r.Content)
	}
}

func TestRun_OneFailureDoesNotAbortSibling(t *testing.T) {
	bad := fnTool("bad", risk.Safe, func(context.Context, map[string]any) (string, error) {
		return "", errors.New("invalid path")
	})
	p := &scripted{responses: []*Result{
		callResult(call("1", "bad", nil), call("2", "e1", map[string]any{"text": "z"})),
		textResult("done"),
	}}
	b := newTestBrain(t, p, registryWith(t, bad, echo("e1")))

	res, err := b.Run(context.Background(), Conversation{UserText("go")}, "", RunOptions{})
	require.NoError(t, err)

	results := res.Conversation[2].Results
	require.Len(t, results, 2)
	assert.Equal(t, "invalid path", results[0].Error)
	assert.Contains(t, results[0].Content, "invalid path")
	assert.Empty(t, results[1].Error)
	assert.Equal(t, "e1:z", results[1].Content)
}

func TestRun_TurnLimitExceeded(t *testing.T) {
	p := &scripted{responses: []*Result{callResult(call("1", "e1", nil))}, repeatLast: true}
	b := newTestBrain(t, p, registryWith(t, echo("e1")))

	res, err := b.Run(context.Background(), Conversation{UserText("loop")}, "", RunOptions{MaxTurns: 3})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrTurnLimitExceeded)

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 3, ex.MaxTurns)
	assert.Equal(t, 3, p.calls)
}

func TestAsk_UsesConfiguredTurnLimit(t *testing.T) {
	p := &scripted{responses: []*Result{callResult(call("1", "e1", nil))}, repeatLast: true}
	b := newTestBrain(t, p, registryWith(t, echo("e1")), func(c *Config) { c.MaxTurns = 2 })

	_, err := b.Ask(context.Background(), "", "loop")
	assert.ErrorIs(t, err, ErrTurnLimitExceeded)
	assert.Equal(t, 2, p.calls)
}

func TestRun_UnknownTool(t *testing.T) {
	p := &scripted{responses: []*Result{callResult(call("1", "nope", nil)), textResult("ok")}}
	b := newTestBrain(t, p, registryWith(t, echo("e1"), echo("e2")))

	res, err := b.Run(context.Background(), Conversation{UserText("go")}, "", RunOptions{})
	require.NoError(t, err)

	r := res.Conversation[2].Results[0]
	assert.Equal(t, ResultUnknown, r.Error)
	assert.Contains(t, r.Content, `"nope"`)
	assert.Contains(t, r.Content, "e1, e2")
}

type recordingApprover struct {
	mu       sync.Mutex
	approve  bool
	actions  []approval.Action
	executed *atomic.Bool
	ranFirst bool
}

func (a *recordingApprover) Request(_ context.Context, _ string, act approval.Action) approval.Decision {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, act)
	if a.executed != nil && a.executed.Load() {
		a.ranFirst = true
	}
	return approval.Decision{Approved: a.approve, Note: "operator"}
}

func TestRun_DangerousCallsWaitForApproval(t *testing.T) {
	for _, approve := range []bool{true, false} {
		t.Run(fmt.Sprintf("approve=%v", approve), func(t *testing.T) {
			var deleted atomic.Bool
			del := fnTool("fs_delete", risk.Dangerous, func(context.Context, map[string]any) (string, error) {
				deleted.Store(true)
				return "deleted", nil
			})
			appr := &recordingApprover{approve: approve, executed: &deleted}
			p := &scripted{responses: []*Result{
				callResult(call("1", "fs_delete", map[string]any{"path": "/tmp/x"}), call("2", "read_file", nil)),
				textResult("ok"),
			}}
			reg := registryWith(t, del, fnTool("read_file", risk.Safe, func(context.Context, map[string]any) (string, error) {
				return "contents", nil
			}))
			b := newTestBrain(t, p, reg, func(c *Config) { c.Approver = appr })

			res, err := b.Run(context.Background(), Conversation{UserText("go")}, "", RunOptions{})
			require.NoError(t, err)

			require.Len(t, appr.actions, 1, "only the dangerous call is gated")
			assert.Equal(t, "fs_delete", appr.actions[0].ToolName)
			assert.Equal(t, risk.Dangerous, appr.actions[0].Risk)
			assert.False(t, appr.ranFirst)
			assert.Equal(t, approve, deleted.Load())

			results := res.Conversation[2].Results
			assert.Equal(t, "contents", results[1].Content)
			if approve {
				assert.Equal(t, "deleted", results[0].Content)
			} else {
				assert.Equal(t, ResultDenied, results[0].Error)
				assert.Contains(t, results[0].Content, "operator")
			}
		})
	}
}

func TestRun_NoApproverDenies(t *testing.T) {
	var ran atomic.Bool
	p := &scripted{responses: []*Result{callResult(call("1", "fs_delete", nil)), textResult("ok")}}
	b := newTestBrain(t, p, registryWith(t, fnTool("fs_delete", risk.Dangerous, func(context.Context, map[string]any) (string, error) {
		ran.Store(true)
		return "", nil
	})))

	res, err := b.Run(context.Background(), Conversation{UserText("go")}, "", RunOptions{})
	require.NoError(t, err)
	assert.False(t, ran.Load())
	assert.Equal(t, ResultDenied, res.Conversation[2].Results[0].Error)
}

func TestRun_ApproveSensitive(t *testing.T) {
	appr := &recordingApprover{approve: true}
	p := &scripted{responses: []*Result{callResult(call("1", "run_shell", map[string]any{"command": "ls"})), textResult("ok")}}
	reg := registryWith(t, fnTool("run_shell", risk.Sensitive, func(context.Context, map[string]any) (string, error) { return "", nil }))
	b := newTestBrain(t, p, reg, func(c *Config) { c.Approver = appr; c.ApproveSensitive = true })

	_, err := b.Run(context.Background(), Conversation{UserText("go")}, "", RunOptions{})
	require.NoError(t, err)
	require.Len(t, appr.actions, 1)
	assert.Equal(t, risk.Sensitive, appr.actions[0].Risk)
}

func TestRun_TransientRetry(t *testing.T) {
	tests := []struct {
		name         string
		failures     int
		err          string
		wantAttempts int32
		wantError    bool
	}{
		{"succeeds on third attempt", 2, "EBUSY: resource busy", 3, false},
		{"gives up after three attempts", 5, "connection reset by peer", 3, true},
		{"non-transient not retried", 5, "bad arguments", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			flaky := fnTool("flaky", risk.Safe, func(context.Context, map[string]any) (string, error) {
				if int(attempts.Add(1)) <= tt.failures {
					return "", errors.New(tt.err)
				}
				return "fine", nil
			})
			p := &scripted{responses: []*Result{callResult(call("1", "flaky", nil)), textResult("ok")}}
			b := newTestBrain(t, p, registryWith(t, flaky))

			res, err := b.Run(context.Background(), Conversation{UserText("go")}, "", RunOptions{})
			require.NoError(t, err)

			r := res.Conversation[2].Results[0]
			assert.Equal(t, tt.wantAttempts, attempts.Load())
			if tt.wantError {
				assert.NotEmpty(t, r.Error)
			} else {
				assert.Empty(t, r.Error)
				assert.Equal(t, "fine", r.Content)
			}
		})
	}
}

func TestRun_ToolTimeout(t *testing.T) {
	slow := fnTool("slow", risk.Safe, func(context.Context, map[string]any) (string, error) {
		time.Sleep(200 * time.Millisecond)
		return "late", nil
	})
	p := &scripted{responses: []*Result{callResult(call("1", "slow", nil)), textResult("ok")}}
	b := newTestBrain(t, p, registryWith(t, slow), func(c *Config) {
		c.ToolTimeout = 20 * time.Millisecond
		c.Retry = RetryPolicy{Attempts: 0, Transient: DefaultTransient}
	})

	start := time.Now()
	res, err := b.Run(context.Background(), Conversation{UserText("go")}, "", RunOptions{})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Contains(t, res.Conversation[2].Results[0].Error, "timed out")
}

func TestRun_NormalizesStructuredArguments(t *testing.T) {
	var got any
	batch := &tool.Tool{
		Name:       "batch",
		Parameters: tool.Object(map[string]*tool.Schema{"paths": {Type: tool.TypeArray}}),
		Risk:       risk.Safe,
		Execute: func(_ context.Context, in map[string]any) (string, error) {
			got = in["paths"]
			return "ok", nil
		},
	}
	p := &scripted{responses: []*Result{callResult(call("1", "batch", map[string]any{"paths": `["a","b"]`})), textResult("ok")}}
	b := newTestBrain(t, p, registryWith(t, batch))

	_, err := b.Run(context.Background(), Conversation{UserText("go")}, "", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	p := &scripted{responses: []*Result{textResult("never")}}
	b := newTestBrain(t, p, registryWith(t, echo("e1")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := b.Run(ctx, Conversation{UserText("go")}, "", RunOptions{})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 0, res.Turns)
	assert.Equal(t, 0, p.calls)
}

func TestRun_CancelledDuringModelCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	p := &scripted{
		responses: []*Result{{Text: "working", ToolCalls: []ToolCall{call("1", "e1", nil)}}},
		onCall:    func(int) { cancel() },
	}
	reg := registryWith(t, fnTool("e1", risk.Safe, func(context.Context, map[string]any) (string, error) {
		ran.Store(true)
		return "", nil
	}))
	b := newTestBrain(t, p, reg)

	res, err := b.Run(ctx, Conversation{UserText("go")}, "", RunOptions{})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, "working", res.Text)
	assert.False(t, ran.Load())
	require.NoError(t, res.Conversation.Validate())
	assert.Equal(t, ResultCancelled, res.Conversation[2].Results[0].Error)
}

func TestRun_ProviderErrorIsFatal(t *testing.T) {
	p := &scripted{errs: []error{&ProviderError{Vendor: tool.Anthropic, Status: 500, Err: errors.New("overloaded")}}}
	b := newTestBrain(t, p, registryWith(t, echo("e1")))

	_, err := b.Run(context.Background(), Conversation{UserText("go")}, "", RunOptions{})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 500, pe.Status)
	assert.Contains(t, err.Error(), "turn 1")
}

func TestRun_MissingCredential(t *testing.T) {
	b, err := New(Config{
		Registry:    tool.NewRegistry(),
		Settings:    NewHolder(Settings{Vendor: tool.OpenAI}),
		Credentials: StaticCredentials{},
	})
	require.NoError(t, err)

	_, err = b.Run(context.Background(), Conversation{UserText("go")}, "", RunOptions{})
	var ce *CredentialError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "no credential configured for vendor openai", err.Error())
}

func TestRun_InvalidConversation(t *testing.T) {
	b := newTestBrain(t, &scripted{}, tool.NewRegistry())
	_, err := b.Run(context.Background(), nil, "", RunOptions{})
	assert.ErrorIs(t, err, ErrInvalidConversation)
}

func TestRun_TruncatesBeforeModelCall(t *testing.T) {
	big := strings.Repeat("x", 7000)
	conv := Conversation{UserText("task")}
	for i := 0; i < 6; i++ {
		conv = append(conv, Turn{Role: RoleAssistant, Text: big}, UserText(big))
	}
	p := &scripted{responses: []*Result{textResult("ok")}}
	b := newTestBrain(t, p, tool.NewRegistry())

	_, err := b.Run(context.Background(), conv, "", RunOptions{ContextBudget: 5000})
	require.NoError(t, err)

	sent := p.seen[0]
	assert.Less(t, len(sent), len(conv))
	assert.Equal(t, "task", sent[0].Text)
	assert.Equal(t, conv[len(conv)-1].Text, sent[len(sent)-1].Text)
}

func TestProviderSelection_CachesUntilSettingsChange(t *testing.T) {
	h := NewHolder(Settings{Vendor: tool.Ollama, BaseURL: "http://127.0.0.1:1"})
	b, err := New(Config{Registry: tool.NewRegistry(), Settings: h})
	require.NoError(t, err)

	p1, err := b.provider(context.Background())
	require.NoError(t, err)
	p2, _ := b.provider(context.Background())
	assert.Same(t, p1, p2)

	h.Store(Settings{Vendor: tool.Ollama, Model: "qwen3"})
	p3, err := b.provider(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, p1, p3)
	assert.Equal(t, "qwen3", p3.Model())
}

func TestNew_RequiresRegistryAndProvider(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{Registry: tool.NewRegistry()})
	assert.Error(t, err)
}
