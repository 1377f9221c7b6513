package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/moorebrett0/agentcore/internal/tool"
)

var toolsFlags struct {
	vendor string
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print tool declarations as a vendor receives them",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context(), rootFlags.config)
		if err != nil {
			return err
		}
		defer a.Close()

		v := a.settings.Vendor
		if toolsFlags.vendor != "" {
			if v, err = tool.ParseVendor(toolsFlags.vendor); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(a.registry.ProjectFor(v))
	},
}

func init() {
	toolsCmd.Flags().StringVar(&toolsFlags.vendor, "vendor", "", "anthropic, gemini, openai or ollama (default: configured vendor)")
}
