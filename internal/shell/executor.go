// Package shell provides the run_shell tool.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/moorebrett0/agentcore/internal/risk"
	"github.com/moorebrett0/agentcore/internal/tool"
)

// ToolName is the registered name of the shell tool.
const ToolName = "run_shell"

// blockedPatterns are refused even after approval. Config.Blocked adds
// plain substrings on top.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+(-\S+\s+)*(-[a-z]*r[a-z]*|--recursive)\s+(-\S+\s+)*/\*?(\s|$|[;&|])`),
	regexp.MustCompile(`(?i)\bmkfs`),
	regexp.MustCompile(`(?i)\bdd\s+if=`),
	regexp.MustCompile(`:\(\)\s*\{`), // fork bomb
	regexp.MustCompile(`(?i)chmod\s+-R\s+777`),
	regexp.MustCompile(`>\s*/dev/sd`),
	regexp.MustCompile(`\binit\s+[06]\b`),
	regexp.MustCompile(`\bvisudo\b`),
}

// Config tunes the executor. Zero fields take defaults.
type Config struct {
	Timeout        time.Duration
	MaxOutputBytes int
	// Dir is the default working directory.
	Dir string
	// Shell is the interpreter invoked with -c.
	Shell   string
	Blocked []string
}

// Executor runs shell commands with safety checks and timeouts.
type Executor struct {
	timeout   time.Duration
	maxOutput int
	dir       string
	shell     string
	blocked   []string
}

// New creates a shell executor.
func New(cfg Config) *Executor {
	e := &Executor{
		timeout:   cfg.Timeout,
		maxOutput: cfg.MaxOutputBytes,
		dir:       cfg.Dir,
		shell:     cfg.Shell,
		blocked:   cfg.Blocked,
	}
	if e.timeout <= 0 {
		e.timeout = 30 * time.Second
	}
	if e.maxOutput <= 0 {
		e.maxOutput = 64 << 10
	}
	if e.shell == "" {
		e.shell = "sh"
	}
	return e
}

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("command exited with status %d", e.Code) }

// Run executes a command and returns its combined output, truncated to the
// configured cap. dir overrides the default working directory when set.
func (e *Executor) Run(ctx context.Context, command, dir string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", errors.New("empty command")
	}
	if blocked := e.checkBlocked(command); blocked != "" {
		return "", fmt.Errorf("blocked command pattern: %q", blocked)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.shell, "-c", command)
	cmd.Dir = e.dir
	if dir != "" {
		cmd.Dir = dir
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()

	result := buf.String()
	if len(result) > e.maxOutput {
		result = result[:e.maxOutput] + "\n... [output truncated]"
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return result, fmt.Errorf("command timed out after %s", e.timeout)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return result, &ExitError{Code: exitErr.ExitCode()}
	}
	if err != nil {
		return result, fmt.Errorf("command failed: %w", err)
	}
	return result, nil
}

func (e *Executor) checkBlocked(command string) string {
	for _, re := range blockedPatterns {
		if re.MatchString(command) {
			return re.String()
		}
	}
	lower := strings.ToLower(command)
	for _, pattern := range e.blocked {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return pattern
		}
	}
	return ""
}

// Tool exposes the executor as run_shell.
func (e *Executor) Tool() *tool.Tool {
	return &tool.Tool{
		Name:     ToolName,
		Category: tool.CategoryShell,
		Description: "Run a shell command and return its combined stdout and stderr. " +
			"Commands time out after " + e.timeout.String() + ".",
		Parameters: tool.Object(map[string]*tool.Schema{
			"command": {Type: tool.TypeString, Description: "The command line to run"},
			"cwd":     {Type: tool.TypeString, Description: "Working directory (optional)"},
		}, "command"),
		Risk: risk.Sensitive,
		Execute: func(ctx context.Context, in map[string]any) (string, error) {
			command, _ := in["command"].(string)
			cwd, _ := in["cwd"].(string)
			out, err := e.Run(ctx, command, cwd)
			if err != nil {
				return out, err
			}
			if out == "" {
				return "(no output)", nil
			}
			return out, nil
		},
	}
}
