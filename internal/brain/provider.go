package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/moorebrett0/agentcore/internal/tool"
)

// Provider abstracts one model vendor's wire protocol.
type Provider interface {
	Vendor() tool.Vendor
	Model() string
	Generate(ctx context.Context, systemPrompt string, conv Conversation, decls []tool.Declaration) (*Result, error)
}

// StopReason is the normalized reason a model stopped generating.
type StopReason string

const (
	StopEnd       StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopOther     StopReason = "other"
)

// Result is a single model response in canonical form.
type Result struct {
	Text       string
	ToolCalls  []ToolCall
	Raw        json.RawMessage
	StopReason StopReason
}

// Settings selects and tunes the active vendor.
type Settings struct {
	Vendor    tool.Vendor
	Model     string
	MaxTokens int64
	// BaseURL overrides the vendor endpoint (openai-compatible servers, ollama).
	BaseURL string
	Timeout time.Duration
}

// Default models per vendor, used when Settings.Model is empty.
var DefaultModels = map[tool.Vendor]string{
	tool.Anthropic: "claude-sonnet-4-5-20250929",
	tool.Gemini:    "gemini-2.5-flash",
	tool.OpenAI:    "gpt-4.1",
	tool.Ollama:    "llama3.1",
}

func (s Settings) withDefaults() Settings {
	if s.Model == "" {
		s.Model = DefaultModels[s.Vendor]
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = 4096
	}
	if s.Timeout <= 0 {
		s.Timeout = 2 * time.Minute
	}
	return s
}

// Holder is the current provider configuration. It has a single writer; every
// run reads one consistent value at its start.
type Holder struct {
	cur atomic.Pointer[Settings]
}

func NewHolder(s Settings) *Holder {
	h := &Holder{}
	h.Store(s)
	return h
}

func (h *Holder) Load() *Settings { return h.cur.Load() }

func (h *Holder) Store(s Settings) {
	s = s.withDefaults()
	h.cur.Store(&s)
}

// Credentials looks up API keys by vendor.
type Credentials interface {
	Credential(v tool.Vendor) (string, bool)
}

// StaticCredentials is a fixed vendor to key map.
type StaticCredentials map[tool.Vendor]string

func (c StaticCredentials) Credential(v tool.Vendor) (string, bool) {
	k, ok := c[v]
	return k, ok && k != ""
}

// NewProvider builds the adapter for s.Vendor.
func NewProvider(ctx context.Context, s Settings, creds Credentials) (Provider, error) {
	s = s.withDefaults()

	var key string
	if creds != nil {
		key, _ = creds.Credential(s.Vendor)
	}
	if key == "" && s.Vendor.RequiresCredential() {
		return nil, &CredentialError{Vendor: s.Vendor}
	}

	slog.Info("brain: using provider", "vendor", s.Vendor, "model", s.Model)
	switch s.Vendor {
	case tool.Anthropic:
		return newClaudeProvider(key, s), nil
	case tool.Gemini:
		p, err := newGeminiProvider(ctx, key, s)
		if err != nil {
			return nil, &ProviderError{Vendor: s.Vendor, Err: err}
		}
		return p, nil
	case tool.OpenAI:
		return newOpenAIProvider(key, s), nil
	case tool.Ollama:
		return newOllamaProvider(key, s), nil
	default:
		return nil, fmt.Errorf("brain: unsupported vendor %q", s.Vendor)
	}
}

// toolCallID returns id, or a synthetic one when the vendor did not supply it.
func toolCallID(id, prefix string, n int) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("%s%d", prefix, n)
}

func decodeArgs(raw []byte) map[string]any {
	args := map[string]any{}
	if len(raw) == 0 {
		return args
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		slog.Warn("brain: tool arguments are not a JSON object", "err", err)
		return map[string]any{}
	}
	if args == nil {
		return map[string]any{}
	}
	return args
}

func resultText(r ToolResult) string {
	if r.Error != "" && r.Content == "" {
		return "Error: " + r.Error
	}
	return r.Content
}
