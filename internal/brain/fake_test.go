package brain

import (
	"context"
	"errors"
	"sync"

	"github.com/moorebrett0/agentcore/internal/tool"
)

// scripted is a Provider that replays a fixed list of responses.
type scripted struct {
	mu         sync.Mutex
	responses  []*Result
	errs       []error
	calls      int
	seen       []Conversation
	decls      [][]tool.Declaration
	onCall     func(n int)
	repeatLast bool
}

func (s *scripted) Vendor() tool.Vendor { return tool.Anthropic }
func (s *scripted) Model() string       { return "scripted" }

func (s *scripted) Generate(ctx context.Context, _ string, conv Conversation, decls []tool.Declaration) (*Result, error) {
	s.mu.Lock()
	n := s.calls
	s.calls++
	s.seen = append(s.seen, conv.Clone())
	s.decls = append(s.decls, decls)
	s.mu.Unlock()

	if s.onCall != nil {
		s.onCall(n)
	}
	if n < len(s.errs) && s.errs[n] != nil {
		return nil, s.errs[n]
	}
	if n >= len(s.responses) {
		if s.repeatLast && len(s.responses) > 0 {
			return s.responses[len(s.responses)-1], nil
		}
		return nil, errors.New("script exhausted")
	}
	return s.responses[n], nil
}

func textResult(text string) *Result {
	return &Result{Text: text, StopReason: StopEnd}
}

func callResult(calls ...ToolCall) *Result {
	return &Result{ToolCalls: calls, StopReason: StopToolUse}
}
