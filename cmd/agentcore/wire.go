package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/moorebrett0/agentcore/internal/approval"
	"github.com/moorebrett0/agentcore/internal/brain"
	"github.com/moorebrett0/agentcore/internal/config"
	"github.com/moorebrett0/agentcore/internal/events"
	"github.com/moorebrett0/agentcore/internal/fstools"
	"github.com/moorebrett0/agentcore/internal/mcpsource"
	"github.com/moorebrett0/agentcore/internal/monitor"
	"github.com/moorebrett0/agentcore/internal/risk"
	"github.com/moorebrett0/agentcore/internal/shell"
	"github.com/moorebrett0/agentcore/internal/tool"
)

// app holds everything a command needs once config is loaded.
type app struct {
	cfg      *config.Config
	settings brain.Settings
	registry *tool.Registry
	gate     *approval.Gate
	brain    *brain.Brain
	monitor  *monitor.Monitor
	sinks    *events.Fanout

	sources []*mcpsource.Source
	nc      *nats.Conn
	ns      *server.Server
}

// setup builds the app. Callers must Close it.
func setup(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	a := &app{cfg: cfg, sinks: &events.Fanout{}}
	a.sinks.Add(events.LogSink{})

	if err := a.connectNATS(); err != nil {
		return nil, err
	}
	if a.nc != nil {
		a.sinks.Add(events.NewNATSSink(a.nc))
	}

	fs := fstools.New(cfg.Files.Root)
	classifier, err := newClassifier(cfg, risk.WithPathResolver(fs.Resolve))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.gate = approval.NewGate(
		approval.WithTimeout(cfg.Agent.ApprovalTimeout),
		approval.WithSink(a.sinks),
	)
	if a.nc != nil {
		if _, err := approval.ListenNATS(a.nc, a.gate); err != nil {
			a.Close()
			return nil, err
		}
	}

	if err := a.registerTools(ctx, fs); err != nil {
		a.Close()
		return nil, err
	}

	a.settings, err = cfg.ProviderSettings()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.brain, err = brain.New(brain.Config{
		Registry:         a.registry,
		Classifier:       classifier,
		Approver:         a.gate,
		Events:           a.sinks,
		Settings:         brain.NewHolder(a.settings),
		Credentials:      cfg,
		ApproveSensitive: cfg.Agent.ApproveSensitive,
		Retry:            cfg.RetryPolicy(),
		ToolTimeout:      cfg.Agent.ToolTimeout,
		HeavyToolTimeout: cfg.Agent.HeavyToolTimeout,
		MaxResultChars:   cfg.Agent.MaxResultChars,
		MaxTurns:         cfg.Agent.MaxTurns,
		ContextBudget:    cfg.Agent.ContextBudget,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newClassifier(cfg *config.Config, opts ...risk.Option) (*risk.Classifier, error) {
	overrides, err := cfg.RiskOverrides()
	if err != nil {
		return nil, err
	}
	c := risk.New(append(opts, risk.WithOverrides(overrides))...)
	for name, pats := range cfg.Risk.Patterns {
		for _, p := range pats {
			if err := c.AddPattern(name, p); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func (a *app) connectNATS() error {
	switch {
	case a.cfg.NATS.URL != "":
		nc, err := nats.Connect(a.cfg.NATS.URL, nats.Name("agentcore"))
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		a.nc = nc
	case a.cfg.NATS.Embedded:
		ns, err := events.StartEmbedded(events.ServerOptions{
			Port:          a.cfg.NATS.Port,
			InProcessOnly: a.cfg.NATS.Port == 0,
		})
		if err != nil {
			return err
		}
		nc, err := events.ConnectInProcess(ns)
		if err != nil {
			ns.Shutdown()
			return err
		}
		a.ns, a.nc = ns, nc
	}
	return nil
}

func (a *app) registerTools(ctx context.Context, fs *fstools.FS) error {
	a.registry = tool.NewRegistry()

	if err := fs.Register(a.registry); err != nil {
		return err
	}
	sh := shell.New(shell.Config{
		Timeout:        a.cfg.Shell.Timeout,
		MaxOutputBytes: a.cfg.Shell.MaxOutputBytes,
		Dir:            a.cfg.Shell.Dir,
		Blocked:        a.cfg.Shell.Blocked,
	})
	if err := a.registry.Register(sh.Tool()); err != nil {
		return err
	}
	a.monitor = monitor.New(a.cfg.Monitor.Interval)
	if err := a.registry.Register(a.monitor.Tool()); err != nil {
		return err
	}

	// unreachable servers are skipped
	for _, s := range a.cfg.MCP {
		src, err := mcpsource.Dial(ctx, s.Name, s.Command, s.Args, s.Env, a.registry)
		if err != nil {
			slog.Warn("mcp: server unavailable", "name", s.Name, "err", err)
			continue
		}
		a.sources = append(a.sources, src)
	}
	return nil
}

// Close releases MCP servers and NATS.
func (a *app) Close() {
	for _, s := range a.sources {
		if err := s.Close(); err != nil {
			slog.Warn("mcp: close failed", "name", s.Name(), "err", err)
		}
	}
	if err := events.Shutdown(a.nc, a.ns); err != nil {
		slog.Warn("nats: shutdown failed", "err", err)
	}
}
