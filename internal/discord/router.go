package discord

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const notOwner = "Only an owner can do that."

// handleCommand dispatches a slash command interaction.
func (b *Bot) handleCommand(i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if !b.IsOwner(interactionUserID(i)) {
		b.respondEphemeral(i, notOwner)
		return
	}

	switch data.Name {
	case "ask":
		prompt := ""
		if len(data.Options) > 0 {
			prompt = strings.TrimSpace(data.Options[0].StringValue())
		}
		if prompt == "" {
			b.respondEphemeral(i, "Give me something to do.")
			return
		}
		b.respondDeferred(i)
		go b.runTask(i.ID, prompt, func(reply string) { b.followup(i, reply) })

	case "pending":
		reqs := b.gate.Pending()
		if len(reqs) == 0 {
			b.respondEphemeral(i, "Nothing is waiting for approval.")
			return
		}
		embeds := make([]*discordgo.MessageEmbed, 0, len(reqs))
		for _, req := range reqs {
			embeds = append(embeds, ApprovalEmbed(req))
			if len(embeds) == 10 {
				break
			}
		}
		b.respondEmbeds(i, embeds)

	case "cancel":
		n := b.cancelTasks()
		b.respondEphemeral(i, fmt.Sprintf("Cancelled %d running task(s).", n))

	default:
		b.respondEphemeral(i, "Unknown command.")
	}
}

// handleComponent resolves an approval from an Approve/Deny button.
func (b *Bot) handleComponent(i *discordgo.InteractionCreate) {
	action, id, ok := parseCustomID(i.MessageComponentData().CustomID)
	if !ok {
		return
	}
	userID := interactionUserID(i)
	if !b.IsOwner(userID) {
		b.respondEphemeral(i, notOwner)
		return
	}

	approved := action == actionApprove
	note := "by " + interactionUserName(i)
	if !b.gate.Resolve(id, approved, note) {
		b.updateMessage(i, ExpiredEmbed(id))
		return
	}
	slog.Info("discord: approval resolved", "request", id, "approved", approved, "user", userID)

	var embed *discordgo.MessageEmbed
	if i.Message != nil && len(i.Message.Embeds) > 0 {
		embed = i.Message.Embeds[0]
	}
	b.updateMessage(i, ResolvedEmbed(embed, approved, note))
}

// --- Interaction response helpers ---

func (b *Bot) respondEphemeral(i *discordgo.InteractionCreate, content string) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Error("discord: respond failed", "err", err)
	}
}

func (b *Bot) respondEmbeds(i *discordgo.InteractionCreate, embeds []*discordgo.MessageEmbed) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: embeds,
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Error("discord: respond failed", "err", err)
	}
}

func (b *Bot) respondDeferred(i *discordgo.InteractionCreate) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		slog.Error("discord: defer failed", "err", err)
	}
}

// updateMessage replaces the clicked message's embed and removes its buttons.
func (b *Bot) updateMessage(i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: []discordgo.MessageComponent{},
		},
	})
	if err != nil {
		slog.Error("discord: update message failed", "err", err)
	}
}

func (b *Bot) followup(i *discordgo.InteractionCreate, content string) {
	for _, chunk := range splitMessage(content, maxMessageLen) {
		_, err := b.session.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
			Content: chunk,
		})
		if err != nil {
			slog.Error("discord: followup failed", "err", err)
			return
		}
	}
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func interactionUserName(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.Username
	}
	if i.User != nil {
		return i.User.Username
	}
	return "unknown"
}
