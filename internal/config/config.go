// Package config loads agentcore settings from defaults, a .env file, a YAML
// file and the environment, in that order.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moorebrett0/agentcore/internal/brain"
	"github.com/moorebrett0/agentcore/internal/risk"
	"github.com/moorebrett0/agentcore/internal/tool"
)

type Config struct {
	AI        AIConfig      `yaml:"ai"`
	Anthropic VendorConfig  `yaml:"anthropic"`
	Gemini    VendorConfig  `yaml:"gemini"`
	OpenAI    VendorConfig  `yaml:"openai"`
	Ollama    VendorConfig  `yaml:"ollama"`
	Agent     AgentConfig   `yaml:"agent"`
	Risk      RiskConfig    `yaml:"risk"`
	Shell     ShellConfig   `yaml:"shell"`
	Monitor   MonitorConfig `yaml:"monitor"`
	Files     FilesConfig   `yaml:"files"`
	Discord   DiscordConfig `yaml:"discord"`
	NATS      NATSConfig    `yaml:"nats"`
	MCP       []MCPServer   `yaml:"mcp_servers"`
}

type AIConfig struct {
	Provider  string        `yaml:"provider"` // anthropic, gemini, openai, ollama, or "" (auto-detect)
	Model     string        `yaml:"model"`
	MaxTokens int64         `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

type VendorConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type AgentConfig struct {
	SystemPrompt     string        `yaml:"system_prompt"`
	MaxTurns         int           `yaml:"max_turns"`
	ContextBudget    int           `yaml:"context_budget"`
	ApproveSensitive bool          `yaml:"approve_sensitive"`
	ApprovalTimeout  time.Duration `yaml:"approval_timeout"`
	ToolTimeout      time.Duration `yaml:"tool_timeout"`
	HeavyToolTimeout time.Duration `yaml:"heavy_tool_timeout"`
	MaxResultChars   int           `yaml:"max_result_chars"`
	Retry            RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`
	Delay     time.Duration `yaml:"delay"`
	Transient []string      `yaml:"transient"`
}

type RiskConfig struct {
	// Overrides pin a tool to safe, sensitive or dangerous.
	Overrides map[string]string `yaml:"overrides"`
	// Patterns add escalation regexes per tool.
	Patterns map[string][]string `yaml:"patterns"`
}

type ShellConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`
	Dir            string        `yaml:"dir"`
	Blocked        []string      `yaml:"blocked"`
}

type MonitorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type FilesConfig struct {
	Root string `yaml:"root"`
}

type DiscordConfig struct {
	BotToken  string   `yaml:"bot_token"`
	ChannelID string   `yaml:"channel_id"`
	GuildID   string   `yaml:"guild_id"`
	OwnerIDs  []string `yaml:"owner_ids"`
}

type NATSConfig struct {
	// URL of an external server. When empty and Embedded is set, an
	// in-process server is started.
	URL      string `yaml:"url"`
	Embedded bool   `yaml:"embedded"`
	Port     int    `yaml:"port"`
}

type MCPServer struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	// .env first; it only fills variables that are not already set
	loadDotEnv(".env")

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets the environment override the file. Secrets live in .env or
// the environment.
func applyEnv(cfg *Config) {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	setString(&cfg.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.Gemini.APIKey, "GOOGLE_API_KEY", "GEMINI_API_KEY")
	setString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.Ollama.APIKey, "OLLAMA_API_KEY")
	setString(&cfg.Ollama.BaseURL, "OLLAMA_HOST")
	setString(&cfg.AI.Provider, "AI_PROVIDER")
	setString(&cfg.AI.Model, "AI_MODEL")
	setString(&cfg.Discord.BotToken, "DISCORD_BOT_TOKEN")
	setString(&cfg.Discord.ChannelID, "DISCORD_CHANNEL_ID")
	setString(&cfg.NATS.URL, "NATS_URL")

	if env := os.Getenv("DISCORD_OWNER_IDS"); env != "" {
		var cleaned []string
		for _, id := range strings.Split(env, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cleaned = append(cleaned, id)
			}
		}
		if len(cleaned) > 0 {
			cfg.Discord.OwnerIDs = cleaned
		}
	}
	if env := os.Getenv("AGENT_MAX_TURNS"); env != "" {
		if n, err := strconv.Atoi(env); err == nil {
			cfg.Agent.MaxTurns = n
		}
	}
}

// loadDotEnv reads a .env file and sets env vars that aren't already set.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		if len(val) >= 2 {
			if (val[0] == '"' && val[len(val)-1] == '"') ||
				(val[0] == '\'' && val[len(val)-1] == '\'') {
				val = val[1 : len(val)-1]
			}
		}

		if os.Getenv(key) == "" && val != "" {
			os.Setenv(key, val)
		}
	}
}

func defaults() *Config {
	return &Config{
		AI: AIConfig{
			MaxTokens: 4096,
			Timeout:   2 * time.Minute,
		},
		Agent: AgentConfig{
			SystemPrompt:     "You are a careful assistant operating on the user's machine through tools. Prefer reading before changing anything.",
			MaxTurns:         brain.DefaultMaxTurns,
			ContextBudget:    brain.DefaultContextBudget,
			ApprovalTimeout:  5 * time.Minute,
			ToolTimeout:      tool.DefaultTimeout,
			HeavyToolTimeout: tool.HeavyTimeout,
			MaxResultChars:   brain.DefaultMaxResultChars,
			Retry: RetryConfig{
				Attempts:  2,
				Delay:     300 * time.Millisecond,
				Transient: append([]string(nil), brain.DefaultTransient...),
			},
		},
		Shell: ShellConfig{
			Timeout:        30 * time.Second,
			MaxOutputBytes: 64 << 10,
		},
		Monitor: MonitorConfig{
			Interval: 30 * time.Second,
		},
	}
}

func validate(cfg *Config) error {
	if _, err := cfg.Vendor(); err != nil {
		return err
	}
	if cfg.Agent.MaxTurns < 0 || cfg.Agent.ContextBudget < 0 || cfg.Agent.MaxResultChars < 0 {
		return errors.New("agent limits must not be negative")
	}
	if cfg.Agent.Retry.Attempts < 0 {
		return errors.New("agent.retry.attempts must not be negative")
	}
	if _, err := cfg.RiskOverrides(); err != nil {
		return err
	}
	for name, pats := range cfg.Risk.Patterns {
		for _, p := range pats {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("risk pattern for %s: %w", name, err)
			}
		}
	}
	for i, s := range cfg.MCP {
		if s.Name == "" || s.Command == "" {
			return fmt.Errorf("mcp_servers[%d]: name and command are required", i)
		}
	}
	return nil
}

// ValidateDiscord checks the settings the Discord front end needs.
func (c *Config) ValidateDiscord() error {
	if c.Discord.BotToken == "" {
		return errors.New("missing DISCORD_BOT_TOKEN")
	}
	if c.Discord.ChannelID == "" {
		return errors.New("missing DISCORD_CHANNEL_ID")
	}
	if len(c.Discord.OwnerIDs) == 0 {
		return errors.New("missing DISCORD_OWNER_IDS")
	}
	return nil
}

// Vendor returns the configured vendor, auto-detecting from the available
// credentials when none is forced. Ollama is the keyless fallback.
func (c *Config) Vendor() (tool.Vendor, error) {
	if c.AI.Provider != "" {
		v, err := tool.ParseVendor(c.AI.Provider)
		if err != nil {
			return "", fmt.Errorf("ai.provider: %w", err)
		}
		return v, nil
	}
	switch {
	case c.Anthropic.APIKey != "":
		return tool.Anthropic, nil
	case c.Gemini.APIKey != "":
		return tool.Gemini, nil
	case c.OpenAI.APIKey != "":
		return tool.OpenAI, nil
	default:
		return tool.Ollama, nil
	}
}

func (c *Config) vendorConfig(v tool.Vendor) VendorConfig {
	switch v {
	case tool.Anthropic:
		return c.Anthropic
	case tool.Gemini:
		return c.Gemini
	case tool.OpenAI:
		return c.OpenAI
	case tool.Ollama:
		return c.Ollama
	}
	return VendorConfig{}
}

// Credential implements brain.Credentials.
func (c *Config) Credential(v tool.Vendor) (string, bool) {
	key := c.vendorConfig(v).APIKey
	return key, key != ""
}

// ProviderSettings builds the brain settings for the selected vendor. A
// per-vendor model wins over ai.model.
func (c *Config) ProviderSettings() (brain.Settings, error) {
	v, err := c.Vendor()
	if err != nil {
		return brain.Settings{}, err
	}
	vc := c.vendorConfig(v)
	model := vc.Model
	if model == "" {
		model = c.AI.Model
	}
	return brain.Settings{
		Vendor:    v,
		Model:     model,
		MaxTokens: c.AI.MaxTokens,
		BaseURL:   vc.BaseURL,
		Timeout:   c.AI.Timeout,
	}, nil
}

// RiskOverrides parses risk.overrides.
func (c *Config) RiskOverrides() (map[string]risk.Level, error) {
	out := make(map[string]risk.Level, len(c.Risk.Overrides))
	for name, s := range c.Risk.Overrides {
		l, err := risk.ParseLevel(s)
		if err != nil {
			return nil, fmt.Errorf("risk override for %s: %w", name, err)
		}
		out[name] = l
	}
	return out, nil
}

// RetryPolicy converts agent.retry.
func (c *Config) RetryPolicy() brain.RetryPolicy {
	return brain.RetryPolicy{
		Attempts:  c.Agent.Retry.Attempts,
		Delay:     c.Agent.Retry.Delay,
		Transient: c.Agent.Retry.Transient,
	}
}
