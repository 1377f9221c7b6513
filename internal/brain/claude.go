package brain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/moorebrett0/agentcore/internal/tool"
)

// claudeProvider implements Provider using the Anthropic Messages API.
type claudeProvider struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

func newClaudeProvider(apiKey string, s Settings) *claudeProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(s.Timeout),
		option.WithMaxRetries(0),
	}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &claudeProvider{
		client:    &client,
		model:     s.Model,
		maxTokens: s.MaxTokens,
	}
}

func (c *claudeProvider) Vendor() tool.Vendor { return tool.Anthropic }
func (c *claudeProvider) Model() string       { return c.model }

func (c *claudeProvider) Generate(ctx context.Context, systemPrompt string, conv Conversation, decls []tool.Declaration) (*Result, error) {
	msgs, err := claudeMessages(conv)
	if err != nil {
		return nil, &ProviderError{Vendor: tool.Anthropic, Err: err}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  msgs,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if len(decls) > 0 {
		params.Tools = claudeTools(decls)
		if tool.SupportsToolChoice(tool.Anthropic, c.model) {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		pe := &ProviderError{Vendor: tool.Anthropic, Err: err}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			pe.Status = apiErr.StatusCode
		}
		return nil, pe
	}
	return claudeResult(resp)
}

// claudeBlock is the subset of a response content block needed to rebuild it
// as a request parameter.
type claudeBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Signature string          `json:"signature,omitempty"`
	Data      string          `json:"data,omitempty"`
}

func claudeMessages(conv Conversation) ([]anthropic.MessageParam, error) {
	msgs := make([]anthropic.MessageParam, 0, len(conv))
	for i, t := range conv {
		switch t.Role {
		case RoleUser:
			var blocks []anthropic.ContentBlockParamUnion
			if t.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(t.Text))
			}
			for _, b := range t.Blocks {
				if b.Kind == BlockText && b.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				}
			}
			msgs = append(msgs, anthropic.NewUserMessage(blocks...))

		case RoleAssistant:
			blocks, err := claudeAssistantBlocks(t)
			if err != nil {
				return nil, fmt.Errorf("turn %d: %w", i, err)
			}
			msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))

		case RoleToolResults:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(t.Results))
			for _, r := range t.Results {
				blocks = append(blocks, anthropic.NewToolResultBlock(r.ID, resultText(r), r.Error != ""))
			}
			msgs = append(msgs, anthropic.NewUserMessage(blocks...))
		}
	}
	return msgs, nil
}

func claudeAssistantBlocks(t Turn) ([]anthropic.ContentBlockParamUnion, error) {
	if t.RawVendor == tool.Anthropic && len(t.Raw) > 0 {
		var raw []claudeBlock
		if err := json.Unmarshal(t.Raw, &raw); err != nil {
			return nil, fmt.Errorf("decoding raw content: %w", err)
		}
		var blocks []anthropic.ContentBlockParamUnion
		for _, b := range raw {
			switch b.Type {
			case "text":
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case "tool_use":
				input := b.Input
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, input, b.Name))
			case "thinking":
				blocks = append(blocks, anthropic.NewThinkingBlock(b.Signature, b.Thinking))
			case "redacted_thinking":
				blocks = append(blocks, anthropic.NewRedactedThinkingBlock(b.Data))
			}
		}
		return blocks, nil
	}

	var blocks []anthropic.ContentBlockParamUnion
	if t.Text != "" {
		blocks = append(blocks, anthropic.NewTextBlock(t.Text))
	}
	for _, b := range t.Blocks {
		switch b.Kind {
		case BlockText:
			if b.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			}
		case BlockToolUse:
			input := b.Call.Input
			if input == nil {
				input = map[string]any{}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(b.Call.ID, input, b.Call.Name))
		}
	}
	return blocks, nil
}

func claudeTools(decls []tool.Declaration) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(decls))
	for _, d := range decls {
		schema := d.Parameters.Map()
		props, _ := schema["properties"].(map[string]any)
		var required []string
		if d.Parameters != nil {
			required = d.Parameters.Required
		}
		t := anthropic.ToolUnionParamOfTool(
			anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: props,
				Required:   required,
			},
			d.Name,
		)
		if d.Description != "" {
			t.OfTool.Description = anthropic.String(d.Description)
		}
		out = append(out, t)
	}
	return out
}

func claudeResult(resp *anthropic.Message) (*Result, error) {
	out := &Result{StopReason: claudeStopReason(resp.StopReason)}

	raw := make([]json.RawMessage, 0, len(resp.Content))
	for _, block := range resp.Content {
		if r := block.RawJSON(); r != "" {
			raw = append(raw, json.RawMessage(r))
		}
		switch block.Type {
		case "text":
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			input, _ := json.Marshal(tu.Input)
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:    tu.ID,
				Name:  tu.Name,
				Input: decodeArgs(input),
			})
		}
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return nil, &ProviderError{Vendor: tool.Anthropic, Err: fmt.Errorf("encoding raw content: %w", err)}
	}
	out.Raw = b
	return out, nil
}

func claudeStopReason(r anthropic.StopReason) StopReason {
	switch r {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return StopEnd
	case anthropic.StopReasonToolUse:
		return StopToolUse
	case anthropic.StopReasonMaxTokens:
		return StopMaxTokens
	default:
		return StopOther
	}
}
