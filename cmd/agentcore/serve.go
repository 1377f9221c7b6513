package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moorebrett0/agentcore/internal/brain"
	"github.com/moorebrett0/agentcore/internal/console"
	"github.com/moorebrett0/agentcore/internal/discord"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Discord front end",
	Long: `Connect to Discord and take tasks from owner @mentions and the /ask
command. Approval requests are posted to the configured channel with
approve and deny buttons.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context(), rootFlags.config)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.cfg.ValidateDiscord(); err != nil {
			return fmt.Errorf("discord: %w", err)
		}
		bot, err := discord.NewBot(discord.Config{
			Token:        a.cfg.Discord.BotToken,
			ChannelID:    a.cfg.Discord.ChannelID,
			GuildID:      a.cfg.Discord.GuildID,
			OwnerIDs:     a.cfg.Discord.OwnerIDs,
			SystemPrompt: a.cfg.Agent.SystemPrompt,
		}, a.gate, a.brain)
		if err != nil {
			return err
		}
		a.sinks.Add(bot)

		go a.monitor.Run(cmd.Context())

		model := a.settings.Model
		if model == "" {
			model = brain.DefaultModels[a.settings.Vendor]
		}
		console.PrintStartup(cmd.ErrOrStderr(), []console.Check{
			{Label: fmt.Sprintf("provider %s (%s)", a.settings.Vendor, model), OK: true},
			{Label: fmt.Sprintf("%d tools registered", a.registry.Len()), OK: a.registry.Len() > 0},
			{Label: fmt.Sprintf("%d of %d mcp servers", len(a.sources), len(a.cfg.MCP)), OK: len(a.sources) == len(a.cfg.MCP)},
			{Label: "nats", OK: a.nc != nil},
		})

		return bot.Start(cmd.Context())
	},
}
