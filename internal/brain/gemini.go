package brain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/moorebrett0/agentcore/internal/tool"
)

// geminiCallPrefix marks ids invented for calls Gemini returned without one.
// They are not sent back to the API.
const geminiCallPrefix = "gemini-call-"

// geminiProvider implements Provider using the Google Gemini API.
type geminiProvider struct {
	client    *genai.Client
	model     string
	maxTokens int32
	timeout   time.Duration
}

func newGeminiProvider(ctx context.Context, apiKey string, s Settings) (*geminiProvider, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if s.BaseURL != "" {
		cfg.HTTPOptions.BaseURL = s.BaseURL
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &geminiProvider{
		client:    client,
		model:     s.Model,
		maxTokens: int32(s.MaxTokens),
		timeout:   s.Timeout,
	}, nil
}

func (g *geminiProvider) Vendor() tool.Vendor { return tool.Gemini }
func (g *geminiProvider) Model() string       { return g.model }

func (g *geminiProvider) Generate(ctx context.Context, systemPrompt string, conv Conversation, decls []tool.Declaration) (*Result, error) {
	contents, err := geminiContents(conv)
	if err != nil {
		return nil, &ProviderError{Vendor: tool.Gemini, Err: err}
	}

	config := &genai.GenerateContentConfig{MaxOutputTokens: g.maxTokens}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, "")
	}
	if len(decls) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: geminiDeclarations(decls)}}
		if tool.SupportsToolChoice(tool.Gemini, g.model) {
			config.ToolConfig = &genai.ToolConfig{
				FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto},
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, &ProviderError{Vendor: tool.Gemini, Err: err}
	}
	return geminiResult(resp)
}

func geminiContents(conv Conversation) ([]*genai.Content, error) {
	// Function responses must carry the function name; remember it by call id.
	names := map[string]string{}
	contents := make([]*genai.Content, 0, len(conv))

	for i, t := range conv {
		switch t.Role {
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(t.PlainText(), genai.RoleUser))

		case RoleAssistant:
			for _, c := range t.ToolCalls() {
				names[c.ID] = c.Name
			}
			if t.RawVendor == tool.Gemini && len(t.Raw) > 0 {
				var c genai.Content
				if err := json.Unmarshal(t.Raw, &c); err != nil {
					return nil, fmt.Errorf("turn %d: decoding raw content: %w", i, err)
				}
				c.Role = string(genai.RoleModel)
				contents = append(contents, &c)
				continue
			}
			var parts []*genai.Part
			for _, b := range t.Blocks {
				switch b.Kind {
				case BlockText:
					if b.Text != "" {
						parts = append(parts, genai.NewPartFromText(b.Text))
					}
				case BlockToolUse:
					parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
						ID:   geminiWireID(b.Call.ID),
						Name: b.Call.Name,
						Args: b.Call.Input,
					}})
				}
			}
			if len(parts) == 0 && t.Text != "" {
				parts = append(parts, genai.NewPartFromText(t.Text))
			}
			contents = append(contents, &genai.Content{Role: string(genai.RoleModel), Parts: parts})

		case RoleToolResults:
			parts := make([]*genai.Part, 0, len(t.Results))
			for _, r := range t.Results {
				name := r.Name
				if name == "" {
					name = names[r.ID]
				}
				response := map[string]any{"output": r.Content}
				if r.Error != "" {
					response = map[string]any{"error": resultText(r)}
				}
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       geminiWireID(r.ID),
					Name:     name,
					Response: response,
				}})
			}
			contents = append(contents, &genai.Content{Role: string(genai.RoleUser), Parts: parts})
		}
	}
	return contents, nil
}

func geminiWireID(id string) string {
	if strings.HasPrefix(id, geminiCallPrefix) {
		return ""
	}
	return id
}

func geminiDeclarations(decls []tool.Declaration) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		out = append(out, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  geminiSchema(d.Parameters),
		})
	}
	return out
}

// geminiSchema converts a projected schema. Projection has already
// upper-cased the type names.
func geminiSchema(s *tool.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       geminiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = geminiSchema(v)
		}
	}
	return out
}

func geminiResult(resp *genai.GenerateContentResponse) (*Result, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		reason := "no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + string(resp.PromptFeedback.BlockReason)
		}
		return nil, &ProviderError{Vendor: tool.Gemini, Err: errors.New(reason)}
	}
	cand := resp.Candidates[0]

	out := &Result{}
	for _, part := range cand.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			fc := part.FunctionCall
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:    toolCallID(fc.ID, geminiCallPrefix, len(out.ToolCalls)+1),
				Name:  fc.Name,
				Input: args,
			})
		case part.Text != "" && !part.Thought:
			out.Text += part.Text
		}
	}

	raw, err := json.Marshal(cand.Content)
	if err != nil {
		return nil, &ProviderError{Vendor: tool.Gemini, Err: fmt.Errorf("encoding raw content: %w", err)}
	}
	out.Raw = raw

	switch {
	case len(out.ToolCalls) > 0:
		out.StopReason = StopToolUse
	case cand.FinishReason == genai.FinishReasonStop || cand.FinishReason == "":
		out.StopReason = StopEnd
	case cand.FinishReason == genai.FinishReasonMaxTokens:
		out.StopReason = StopMaxTokens
	default:
		out.StopReason = StopOther
	}
	return out, nil
}
