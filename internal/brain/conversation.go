package brain

import (
	"encoding/json"
	"fmt"

	"github.com/moorebrett0/agentcore/internal/tool"
)

// Role tags a canonical turn.
type Role string

const (
	RoleUser        Role = "user"
	RoleAssistant   Role = "assistant"
	RoleToolResults Role = "tool_results"
)

// BlockKind tags a content block.
type BlockKind string

const (
	BlockText    BlockKind = "text"
	BlockToolUse BlockKind = "tool_use"
)

// Block is one piece of user or assistant content.
type Block struct {
	Kind BlockKind `json:"kind"`
	Text string    `json:"text,omitempty"`
	Call *ToolCall `json:"call,omitempty"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResult is the outcome of a ToolCall. A non-empty Error means Content
// already describes the failure.
type ToolResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Turn is one entry of a canonical conversation.
type Turn struct {
	Role    Role         `json:"role"`
	Text    string       `json:"text,omitempty"`
	Blocks  []Block      `json:"blocks,omitempty"`
	Results []ToolResult `json:"results,omitempty"`

	// Raw is the vendor's own representation of an assistant turn. Adapters
	// re-submit it verbatim when RawVendor matches them.
	Raw       json.RawMessage `json:"raw,omitempty"`
	RawVendor tool.Vendor     `json:"rawVendor,omitempty"`
}

// Conversation is an ordered, append-only list of turns.
type Conversation []Turn

// UserText builds a plain user turn.
func UserText(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

// PlainText returns the turn's text whether stored inline or as text blocks.
func (t Turn) PlainText() string {
	if t.Text != "" || len(t.Blocks) == 0 {
		return t.Text
	}
	var s string
	for _, b := range t.Blocks {
		if b.Kind == BlockText && b.Text != "" {
			if s != "" {
				s += "\n"
			}
			s += b.Text
		}
	}
	return s
}

// ToolCalls returns the tool_use blocks of an assistant turn in order.
func (t Turn) ToolCalls() []ToolCall {
	var out []ToolCall
	for _, b := range t.Blocks {
		if b.Kind == BlockToolUse && b.Call != nil {
			out = append(out, *b.Call)
		}
	}
	return out
}

// assistantTurn builds the turn appended for a model response.
func assistantTurn(res *Result, v tool.Vendor) Turn {
	t := Turn{Role: RoleAssistant, Raw: res.Raw}
	if len(res.Raw) > 0 {
		t.RawVendor = v
	}
	if res.Text != "" {
		t.Blocks = append(t.Blocks, Block{Kind: BlockText, Text: res.Text})
	}
	for i := range res.ToolCalls {
		call := res.ToolCalls[i]
		t.Blocks = append(t.Blocks, Block{Kind: BlockToolUse, Call: &call})
	}
	return t
}

// Clone copies the turn slice. Turns themselves are treated as immutable.
func (c Conversation) Clone() Conversation {
	return append(Conversation(nil), c...)
}

// Validate checks that the conversation is non-empty, starts with a user
// turn, and that every tool_results turn answers the tool_use blocks of the
// assistant turn right before it, one to one and in order.
func (c Conversation) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidConversation)
	}
	if c[0].Role != RoleUser {
		return fmt.Errorf("%w: first turn is %s", ErrInvalidConversation, c[0].Role)
	}
	for i, t := range c {
		if t.Role == RoleAssistant && len(t.ToolCalls()) > 0 {
			if i+1 >= len(c) || c[i+1].Role != RoleToolResults {
				return fmt.Errorf("%w: tool calls at %d have no results", ErrInvalidConversation, i)
			}
		}
		if t.Role != RoleToolResults {
			continue
		}
		if i == 0 || c[i-1].Role != RoleAssistant {
			return fmt.Errorf("%w: tool results at %d do not follow an assistant turn", ErrInvalidConversation, i)
		}
		calls := c[i-1].ToolCalls()
		if len(calls) != len(t.Results) {
			return fmt.Errorf("%w: turn %d has %d results for %d calls", ErrInvalidConversation, i, len(t.Results), len(calls))
		}
		for j := range calls {
			if calls[j].ID != t.Results[j].ID {
				return fmt.Errorf("%w: turn %d result %d id %q, want %q", ErrInvalidConversation, i, j, t.Results[j].ID, calls[j].ID)
			}
		}
	}
	return nil
}
