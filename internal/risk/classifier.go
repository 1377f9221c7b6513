package risk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Classifier assigns a Level to a tool invocation. The zero value is not
// usable; construct with New.
type Classifier struct {
	mu        sync.RWMutex
	base      map[string]Level
	patterns  map[string][]*regexp.Regexp
	overrides map[string]Level
	fallback  Level

	audit *Audit
	now   func() time.Time
	paths func(string) (string, error)
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithOverrides pins tools to a level regardless of base table or patterns.
func WithOverrides(o map[string]Level) Option {
	return func(c *Classifier) {
		for name, l := range o {
			c.overrides[name] = l
		}
	}
}

// WithAudit replaces the default audit trail.
func WithAudit(a *Audit) Option {
	return func(c *Classifier) { c.audit = a }
}

// WithPathResolver sets how "path" arguments are resolved before matching.
// Patterns are tried against both the raw and the resolved spelling, so
// traversal like "/tmp/../etc" is judged by where it lands.
func WithPathResolver(fn func(string) (string, error)) Option {
	return func(c *Classifier) { c.paths = fn }
}

// WithClock is used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// New builds a classifier seeded with DefaultBase and DefaultPatterns.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		base:      make(map[string]Level, len(DefaultBase)),
		patterns:  make(map[string][]*regexp.Regexp),
		overrides: make(map[string]Level),
		fallback:  Sensitive,
		audit:     NewAudit(),
		now:       time.Now,
		paths:     AbsPath,
	}
	for name, l := range DefaultBase {
		c.base[name] = l
	}
	for name, pats := range DefaultPatterns {
		for _, p := range pats {
			c.patterns[name] = append(c.patterns[name], regexp.MustCompile(p))
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetDefault records the level a tool declared at registration. It never
// replaces an entry from the static table.
func (c *Classifier) SetDefault(tool string, l Level) {
	if l == Unspecified {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := DefaultBase[tool]; ok {
		return
	}
	c.base[tool] = l
}

// SetOverride pins a tool's level.
func (c *Classifier) SetOverride(tool string, l Level) {
	c.mu.Lock()
	c.overrides[tool] = l
	c.mu.Unlock()
}

// ClearOverride removes a pinned level.
func (c *Classifier) ClearOverride(tool string) {
	c.mu.Lock()
	delete(c.overrides, tool)
	c.mu.Unlock()
}

// AddPattern adds an escalation pattern for a tool.
func (c *Classifier) AddPattern(tool, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("risk pattern for %s: %w", tool, err)
	}
	c.mu.Lock()
	c.patterns[tool] = append(c.patterns[tool], re)
	c.mu.Unlock()
	return nil
}

// Audit returns the trail every classification is appended to.
func (c *Classifier) Audit() *Audit { return c.audit }

// Classify resolves the level for one call and records it.
func (c *Classifier) Classify(tool string, args map[string]any) Level {
	level, reason := c.resolve(tool, args)
	c.audit.append(Entry{
		Tool:   tool,
		Args:   Redact(args),
		Level:  level,
		Reason: reason,
		At:     c.now(),
	})
	if level == Dangerous {
		slog.Debug("risk: dangerous call", "tool", tool, "reason", reason)
	}
	return level
}

func (c *Classifier) resolve(tool string, args map[string]any) (Level, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if l, ok := c.overrides[tool]; ok {
		return l, "override"
	}

	level, ok := c.base[tool]
	reason := "base"
	if !ok {
		level, reason = c.fallback, "fallback"
	}

	pats := c.patterns[tool]
	if len(pats) == 0 || level == Dangerous {
		return level, reason
	}

	serialized, err := marshalArgs(args)
	if err != nil {
		return level, reason
	}
	subjects := [][]byte{serialized}
	if resolved, ok := c.resolvePath(args); ok {
		if b, err := marshalArgs(resolved); err == nil {
			subjects = append(subjects, b)
		}
	}
	for _, re := range pats {
		for _, subj := range subjects {
			if re.Match(subj) {
				return Dangerous, "pattern " + re.String()
			}
		}
	}
	return level, reason
}

// resolvePath returns a copy of args with "path" resolved, if that changes it.
func (c *Classifier) resolvePath(args map[string]any) (map[string]any, bool) {
	p, _ := args["path"].(string)
	if p == "" || c.paths == nil {
		return nil, false
	}
	abs, err := c.paths(p)
	if err != nil || abs == p {
		return nil, false
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	out["path"] = abs
	return out, true
}

// marshalArgs serializes without HTML escaping so patterns can use < > &.
func marshalArgs(args map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(args); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// AbsPath expands a leading ~ and makes p absolute and clean relative to the
// working directory.
func AbsPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}
