// Package mcpsource exposes the tools of an MCP server through the tool
// registry as a refreshable source.
package mcpsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/moorebrett0/agentcore/internal/tool"
)

// Client is the part of an MCP client a Source needs. *client.Client
// satisfies it.
type Client interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// notifier is implemented by clients that deliver server notifications.
// *client.Client does.
type notifier interface {
	OnNotification(handler func(notification mcp.JSONRPCNotification))
}

const toolsListChanged = "notifications/tools/list_changed"

// Source mirrors one MCP server's tool list into a registry. Tools are
// registered as "<source>_<tool>".
type Source struct {
	name   string
	client Client
	reg    *tool.Registry

	mu        sync.Mutex
	server    string
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// New initializes the session and performs the first Refresh. When the
// client delivers notifications, a tools/list_changed notification triggers
// another Refresh.
func New(ctx context.Context, name string, c Client, reg *tool.Registry) (*Source, error) {
	s := &Source{name: name, client: c, reg: reg}
	if n, ok := c.(notifier); ok {
		n.OnNotification(s.onNotification)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "agentcore", Version: "1.0.0"}
	res, err := c.Initialize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp %s: initialize: %w", name, err)
	}
	s.server = res.ServerInfo.Name

	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Dial starts command as a stdio MCP server and wraps it in a Source.
func Dial(ctx context.Context, name, command string, args []string, env map[string]string, reg *tool.Registry) (*Source, error) {
	var envList []string
	for k, v := range env {
		envList = append(envList, k+"="+v)
	}
	sort.Strings(envList)

	c, err := client.NewStdioMCPClient(command, envList, args...)
	if err != nil {
		return nil, fmt.Errorf("mcp %s: starting %s: %w", name, command, err)
	}
	s, err := New(ctx, name, c, reg)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return s, nil
}

func (s *Source) onNotification(n mcp.JSONRPCNotification) {
	if n.Method != toolsListChanged {
		return
	}
	// off the transport goroutine; Refresh round-trips through it
	go func() {
		if err := s.Refresh(context.Background()); err != nil {
			slog.Warn("mcpsource: refresh after list change failed", "source", s.name, "err", err)
		}
	}()
}

// Name is the registry source name.
func (s *Source) Name() string { return s.name }

// Refresh lists the server's tools and swaps them into the registry in one
// step. Tools the server no longer offers disappear.
func (s *Source) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	res, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("mcp %s: list tools: %w", s.name, err)
	}

	tools := make([]*tool.Tool, 0, len(res.Tools))
	for _, mt := range res.Tools {
		tools = append(tools, s.wrap(mt))
	}
	if err := s.reg.ReplaceSource(s.name, tools); err != nil {
		return err
	}
	slog.Info("mcpsource: tools refreshed", "source", s.name, "server", s.server, "tools", len(tools))
	return nil
}

// Close removes the source's tools and ends the session.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.reg.RemoveSource(s.name)
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}

// ToolName is the registry name of an MCP tool from source.
func ToolName(source, remote string) string {
	return unsafeName.ReplaceAllString(source+"_"+remote, "_")
}

func (s *Source) wrap(mt mcp.Tool) *tool.Tool {
	remote := mt.Name
	desc := mt.Description
	if desc == "" {
		desc = remote
	}
	return &tool.Tool{
		Name:        ToolName(s.name, remote),
		Category:    tool.CategoryExternal,
		Description: fmt.Sprintf("[%s] %s", s.name, desc),
		Parameters:  inputSchema(mt),
		Execute: func(ctx context.Context, in map[string]any) (string, error) {
			req := mcp.CallToolRequest{}
			req.Params.Name = remote
			req.Params.Arguments = in
			res, err := s.client.CallTool(ctx, req)
			if err != nil {
				return "", fmt.Errorf("mcp %s: %w", s.name, err)
			}
			text := resultText(res)
			if res.IsError {
				if text == "" {
					text = "tool reported an error"
				}
				return "", errors.New(text)
			}
			return text, nil
		},
	}
}

func inputSchema(mt mcp.Tool) *tool.Schema {
	raw := []byte(mt.RawInputSchema)
	if len(raw) == 0 {
		b, err := json.Marshal(mt.InputSchema)
		if err != nil {
			return tool.Object(nil)
		}
		raw = b
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return tool.Object(nil)
	}
	s, err := tool.SchemaFromMap(m)
	if err != nil {
		slog.Warn("mcpsource: unusable input schema, accepting free-form arguments", "tool", mt.Name, "err", err)
		return tool.Object(nil)
	}
	if s.Type == "" {
		s.Type = tool.TypeObject
	}
	return s
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s]", v.MIMEType))
		case mcp.EmbeddedResource:
			parts = append(parts, "[embedded resource]")
		default:
			parts = append(parts, fmt.Sprintf("[%T]", c))
		}
	}
	return strings.Join(parts, "\n")
}
