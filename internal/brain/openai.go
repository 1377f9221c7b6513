package brain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/moorebrett0/agentcore/internal/tool"
)

// openAIProvider implements Provider using the Chat Completions API. It also
// serves OpenAI-compatible endpoints through Settings.BaseURL.
type openAIProvider struct {
	client    openai.Client
	model     string
	maxTokens int64
}

func newOpenAIProvider(apiKey string, s Settings) *openAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(s.Timeout),
		option.WithMaxRetries(0),
	}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	return &openAIProvider{
		client:    openai.NewClient(opts...),
		model:     s.Model,
		maxTokens: s.MaxTokens,
	}
}

func (o *openAIProvider) Vendor() tool.Vendor { return tool.OpenAI }
func (o *openAIProvider) Model() string       { return o.model }

func (o *openAIProvider) Generate(ctx context.Context, systemPrompt string, conv Conversation, decls []tool.Declaration) (*Result, error) {
	msgs, err := openAIMessages(systemPrompt, conv)
	if err != nil {
		return nil, &ProviderError{Vendor: tool.OpenAI, Err: err}
	}

	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(o.model),
		Messages:            msgs,
		MaxCompletionTokens: openai.Int(o.maxTokens),
	}
	if len(decls) > 0 {
		params.Tools = openAITools(decls)
		if tool.SupportsToolChoice(tool.OpenAI, o.model) {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		pe := &ProviderError{Vendor: tool.OpenAI, Err: err}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			pe.Status = apiErr.StatusCode
		}
		return nil, pe
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Vendor: tool.OpenAI, Err: errors.New("response has no choices")}
	}
	return openAIResult(resp.Choices[0])
}

// openAIMessage is the wire form of an assistant message as returned by the
// API, kept as the raw content of a turn.
type openAIMessage struct {
	Content   string `json:"content"`
	ToolCalls []struct {
		ID       string `json:"id"`
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`
}

func openAIMessages(systemPrompt string, conv Conversation) ([]openai.ChatCompletionMessageParamUnion, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(conv)+1)
	if systemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(systemPrompt))
	}
	for i, t := range conv {
		switch t.Role {
		case RoleUser:
			msgs = append(msgs, openai.UserMessage(t.PlainText()))

		case RoleAssistant:
			m, err := openAIAssistant(t)
			if err != nil {
				return nil, fmt.Errorf("turn %d: %w", i, err)
			}
			msgs = append(msgs, openai.ChatCompletionMessageParamUnion{OfAssistant: m})

		case RoleToolResults:
			for _, r := range t.Results {
				msgs = append(msgs, openai.ToolMessage(resultText(r), r.ID))
			}
		}
	}
	return msgs, nil
}

func openAIAssistant(t Turn) (*openai.ChatCompletionAssistantMessageParam, error) {
	var (
		content string
		calls   []openai.ChatCompletionMessageToolCallParam
	)

	if t.RawVendor == tool.OpenAI && len(t.Raw) > 0 {
		var raw openAIMessage
		if err := json.Unmarshal(t.Raw, &raw); err != nil {
			return nil, fmt.Errorf("decoding raw content: %w", err)
		}
		content = raw.Content
		for i, tc := range raw.ToolCalls {
			calls = append(calls, openai.ChatCompletionMessageToolCallParam{
				ID: toolCallID(tc.ID, "openai-call-", i+1),
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	} else {
		content = t.PlainText()
		for _, c := range t.ToolCalls() {
			args, err := json.Marshal(c.Input)
			if err != nil {
				return nil, fmt.Errorf("encoding arguments of %s: %w", c.Name, err)
			}
			calls = append(calls, openai.ChatCompletionMessageToolCallParam{
				ID: c.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      c.Name,
					Arguments: string(args),
				},
			})
		}
	}

	m := &openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
	if content != "" {
		m.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(content)}
	}
	return m, nil
}

func openAITools(decls []tool.Declaration) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(decls))
	for _, d := range decls {
		fn := shared.FunctionDefinitionParam{
			Name:       d.Name,
			Parameters: shared.FunctionParameters(d.Parameters.Map()),
		}
		if d.Description != "" {
			fn.Description = openai.String(d.Description)
		}
		out = append(out, openai.ChatCompletionToolParam{Function: fn})
	}
	return out
}

func openAIResult(choice openai.ChatCompletionChoice) (*Result, error) {
	msg := choice.Message
	out := &Result{Text: msg.Content}

	for i, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:    toolCallID(tc.ID, "openai-call-", i+1),
			Name:  tc.Function.Name,
			Input: decodeArgs([]byte(tc.Function.Arguments)),
		})
	}

	if raw := msg.RawJSON(); raw != "" {
		out.Raw = json.RawMessage(raw)
	} else {
		b, err := json.Marshal(msg)
		if err != nil {
			return nil, &ProviderError{Vendor: tool.OpenAI, Err: fmt.Errorf("encoding raw content: %w", err)}
		}
		out.Raw = b
	}

	switch {
	case len(out.ToolCalls) > 0:
		out.StopReason = StopToolUse
	case choice.FinishReason == "stop":
		out.StopReason = StopEnd
	case choice.FinishReason == "length":
		out.StopReason = StopMaxTokens
	default:
		out.StopReason = StopOther
	}
	return out, nil
}
