package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moorebrett0/agentcore/internal/brain"
	"github.com/moorebrett0/agentcore/internal/console"
)

var runFlags struct {
	maxTurns int
	system   string
}

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run one task to completion",
	Long: `Run one task and print the model's final answer. The prompt is read
from stdin when no argument is given. Gated tool calls are asked on the
terminal when stdin is interactive; otherwise they wait for a remote
resolution over NATS or time out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, err := readPrompt(args, cmd.InOrStdin())
		if err != nil {
			return err
		}

		a, err := setup(cmd.Context(), rootFlags.config)
		if err != nil {
			return err
		}
		defer a.Close()

		stderr := cmd.ErrOrStderr()
		a.sinks.Add(console.NewProgress(stderr))
		if len(args) > 0 && console.Interactive(os.Stdin) {
			approver := console.NewApprover(a.gate, os.Stdin, stderr)
			a.sinks.Add(approver)
			go approver.Run(cmd.Context())
		}

		system := runFlags.system
		if system == "" {
			system = a.cfg.Agent.SystemPrompt
		}
		res, err := a.brain.Run(cmd.Context(), brain.Conversation{brain.UserText(prompt)}, system, brain.RunOptions{
			MaxTurns: runFlags.maxTurns,
		})
		if err != nil {
			return err
		}
		if res.Cancelled {
			fmt.Fprintln(stderr, "  task cancelled")
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Text)
		return nil
	},
}

func init() {
	runCmd.Flags().IntVar(&runFlags.maxTurns, "max-turns", 0, "Turn limit for this task (default: agent.max_turns)")
	runCmd.Flags().StringVar(&runFlags.system, "system", "", "System prompt (default: agent.system_prompt)")
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errors.New("empty prompt")
	}
	return prompt, nil
}
