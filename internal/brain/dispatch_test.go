package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moorebrett0/agentcore/internal/tool"
)

func TestTruncateOutput(t *testing.T) {
	assert.Equal(t, "short", truncateOutput("short", 10))
	assert.Equal(t, "anything", truncateOutput("anything", 0))

	long := strings.Repeat("h", 50) + strings.Repeat("m", 100) + strings.Repeat("t", 50)
	out := truncateOutput(long, 100)
	assert.True(t, strings.HasPrefix(out, strings.Repeat("h", 50)))
	assert.True(t, strings.HasSuffix(out, strings.Repeat("t", 50)))
	assert.Contains(t, out, "[... 100 characters truncated ...]")
}

func TestTruncateOutput_KeepsRunesWhole(t *testing.T) {
	// a 25-byte cut lands inside a 3-byte rune at both ends
	s := "é" + strings.Repeat("日", 40)
	out := truncateOutput(s, 50)
	assert.True(t, utf8.ValidString(out))
	assert.NotContains(t, out, "\uFFFD")
	assert.True(t, strings.HasPrefix(out, "é"))
	assert.True(t, strings.HasSuffix(out, "日"))

	body := strings.Split(out, "\n\n")
	require.Len(t, body, 3)
	assert.Len(t, body[0], 23)
	assert.Len(t, body[2], 24)
	assert.Equal(t, "[... 75 characters truncated ...]", body[1])
}

func TestRetryPolicy_IsTransient(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.True(t, p.IsTransient(errors.New("read: EAGAIN")))
	assert.True(t, p.IsTransient(errors.New("Connection Refused")))
	assert.True(t, p.IsTransient(fmt.Errorf("slow: %w", context.DeadlineExceeded)))
	assert.False(t, p.IsTransient(errors.New("permission denied")))
	assert.False(t, p.IsTransient(nil))

	custom := RetryPolicy{Transient: []string{"rate limited"}}
	assert.True(t, custom.IsTransient(errors.New("429: Rate Limited")))
	assert.False(t, custom.IsTransient(errors.New("EBUSY")))
}

func TestRunWithTimeout_RecoversPanic(t *testing.T) {
	boom := &tool.Tool{Name: "boom", Execute: func(context.Context, map[string]any) (string, error) {
		panic("kaboom")
	}}
	_, err := runWithTimeout(context.Background(), boom, nil, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestTimeoutFor(t *testing.T) {
	b := &Brain{}
	assert.Equal(t, tool.DefaultTimeout, b.timeoutFor(&tool.Tool{Category: tool.CategoryFilesystem}))
	assert.Equal(t, tool.HeavyTimeout, b.timeoutFor(&tool.Tool{Category: tool.CategoryBrowser}))

	b = &Brain{toolTimeout: time.Second, heavyToolTimeout: 2 * time.Second}
	assert.Equal(t, time.Second, b.timeoutFor(&tool.Tool{Category: tool.CategoryShell}))
	assert.Equal(t, 2*time.Second, b.timeoutFor(&tool.Tool{Category: tool.CategoryDocument}))
}

func TestCancelledResults(t *testing.T) {
	calls := []ToolCall{{ID: "x", Name: "a"}, {ID: "y", Name: "b"}}
	turn := cancelledResults(calls)
	require.NoError(t, Conversation{UserText("u"), assistantTurn(&Result{ToolCalls: calls}, ""), turn}.Validate())
	for _, r := range turn.Results {
		assert.Equal(t, ResultCancelled, r.Error)
	}
}
