package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/moorebrett0/agentcore/internal/tool"
)

const (
	defaultOllamaURL = "http://localhost:11434"
	ollamaCallPrefix = "ollama-call-"
)

// ollamaProvider talks to an Ollama server's /api/chat endpoint. Repeated
// failures open a circuit breaker so a dead local server fails fast.
type ollamaProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int64
	breaker    *gobreaker.CircuitBreaker[*ollamaResponse]
}

func newOllamaProvider(apiKey string, s Settings) *ollamaProvider {
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = defaultOllamaURL
	}
	p := &ollamaProvider{
		httpClient: &http.Client{Timeout: s.Timeout},
		baseURL:    base,
		apiKey:     apiKey,
		model:      s.Model,
		maxTokens:  s.MaxTokens,
	}
	p.breaker = gobreaker.NewCircuitBreaker[*ollamaResponse](gobreaker.Settings{
		Name:        "ollama-" + s.Model,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("brain: circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return p
}

func (o *ollamaProvider) Vendor() tool.Vendor { return tool.Ollama }
func (o *ollamaProvider) Model() string       { return o.model }

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type ollamaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message    json.RawMessage `json:"message"`
	DoneReason string          `json:"done_reason"`
	Done       bool            `json:"done"`
	Error      string          `json:"error"`
}

func (o *ollamaProvider) Generate(ctx context.Context, systemPrompt string, conv Conversation, decls []tool.Declaration) (*Result, error) {
	msgs, err := ollamaMessages(systemPrompt, conv)
	if err != nil {
		return nil, &ProviderError{Vendor: tool.Ollama, Err: err}
	}
	req := ollamaRequest{
		Model:    o.model,
		Messages: msgs,
		Tools:    ollamaTools(decls),
		Options:  map[string]any{"num_predict": o.maxTokens},
	}

	resp, err := o.breaker.Execute(func() (*ollamaResponse, error) {
		return o.do(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &ProviderError{Vendor: tool.Ollama, Err: fmt.Errorf("circuit breaker open for model %s: %w", o.model, err)}
		}
		var pe *ProviderError
		if errors.As(err, &pe) {
			return nil, pe
		}
		return nil, &ProviderError{Vendor: tool.Ollama, Err: err}
	}
	return ollamaResult(resp)
}

func (o *ollamaProvider) do(ctx context.Context, req ollamaRequest) (*ollamaResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, &ProviderError{Vendor: tool.Ollama, Status: resp.StatusCode, Err: fmt.Errorf("read response body: %w", err)}
	}

	var out ollamaResponse
	jsonErr := json.Unmarshal(data, &out)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if jsonErr == nil && out.Error != "" {
			msg = out.Error
		}
		return nil, &ProviderError{Vendor: tool.Ollama, Status: resp.StatusCode, Err: errors.New(msg)}
	}
	if jsonErr != nil {
		return nil, &ProviderError{Vendor: tool.Ollama, Status: resp.StatusCode, Err: fmt.Errorf("parse response JSON: %w", jsonErr)}
	}
	if out.Error != "" {
		return nil, &ProviderError{Vendor: tool.Ollama, Status: resp.StatusCode, Err: errors.New(out.Error)}
	}
	if len(out.Message) == 0 {
		return nil, &ProviderError{Vendor: tool.Ollama, Status: resp.StatusCode, Err: errors.New("response contains no message")}
	}
	return &out, nil
}

func ollamaMessages(systemPrompt string, conv Conversation) ([]ollamaMessage, error) {
	msgs := make([]ollamaMessage, 0, len(conv)+1)
	if systemPrompt != "" {
		msgs = append(msgs, ollamaMessage{Role: "system", Content: systemPrompt})
	}
	for i, t := range conv {
		switch t.Role {
		case RoleUser:
			msgs = append(msgs, ollamaMessage{Role: "user", Content: t.PlainText()})

		case RoleAssistant:
			if t.RawVendor == tool.Ollama && len(t.Raw) > 0 {
				var m ollamaMessage
				if err := json.Unmarshal(t.Raw, &m); err != nil {
					return nil, fmt.Errorf("turn %d: decoding raw content: %w", i, err)
				}
				m.Role = "assistant"
				msgs = append(msgs, m)
				continue
			}
			m := ollamaMessage{Role: "assistant", Content: t.PlainText()}
			for _, c := range t.ToolCalls() {
				var tc ollamaToolCall
				tc.Function.Name = c.Name
				tc.Function.Arguments = c.Input
				m.ToolCalls = append(m.ToolCalls, tc)
			}
			msgs = append(msgs, m)

		case RoleToolResults:
			for _, r := range t.Results {
				msgs = append(msgs, ollamaMessage{Role: "tool", Content: resultText(r), ToolName: r.Name})
			}
		}
	}
	return msgs, nil
}

func ollamaTools(decls []tool.Declaration) []ollamaTool {
	out := make([]ollamaTool, 0, len(decls))
	for _, d := range decls {
		var t ollamaTool
		t.Type = "function"
		t.Function.Name = d.Name
		t.Function.Description = d.Description
		t.Function.Parameters = d.Parameters.Map()
		out = append(out, t)
	}
	return out
}

func ollamaResult(resp *ollamaResponse) (*Result, error) {
	var m ollamaMessage
	if err := json.Unmarshal(resp.Message, &m); err != nil {
		return nil, &ProviderError{Vendor: tool.Ollama, Err: fmt.Errorf("parse message: %w", err)}
	}
	out := &Result{Text: m.Content, Raw: resp.Message}
	for i, tc := range m.ToolCalls {
		args := tc.Function.Arguments
		if args == nil {
			args = map[string]any{}
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:    toolCallID("", ollamaCallPrefix, i+1),
			Name:  tc.Function.Name,
			Input: args,
		})
	}

	switch {
	case len(out.ToolCalls) > 0:
		out.StopReason = StopToolUse
	case resp.DoneReason == "length":
		out.StopReason = StopMaxTokens
	case resp.DoneReason == "stop" || resp.DoneReason == "":
		out.StopReason = StopEnd
	default:
		out.StopReason = StopOther
	}
	return out, nil
}
