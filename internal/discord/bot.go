// Package discord is a chat front end: it posts approval requests with
// Approve/Deny buttons and runs tasks from the /ask command.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/moorebrett0/agentcore/internal/approval"
	"github.com/moorebrett0/agentcore/internal/events"
)

// session is the subset of *discordgo.Session the bot calls.
type session interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ApplicationCommandCreate(appID string, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
}

// Asker runs one task to completion. *brain.Brain implements it.
type Asker interface {
	Ask(ctx context.Context, systemPrompt, message string) (string, error)
}

// Gate is the approval side the bot drives. *approval.Gate implements it.
type Gate interface {
	Resolve(id string, approved bool, note string) bool
	Pending() []approval.Request
}

// Config for NewBot.
type Config struct {
	Token        string
	ChannelID    string
	GuildID      string
	OwnerIDs     []string
	SystemPrompt string
}

// Bot wraps the Discord session. It is also an events.Sink: approval-request
// events become messages with buttons.
type Bot struct {
	session   session
	channelID string
	guildID   string
	ownerIDs  map[string]bool
	prompt    string

	gate  Gate
	asker Asker

	mu     sync.Mutex
	ctx    context.Context
	selfID string
	tasks  map[string]context.CancelFunc
}

// NewBot creates and configures a Discord bot (does not connect yet).
func NewBot(cfg Config, gate Gate, asker Asker) (*Bot, error) {
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("invalid bot token: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent |
		discordgo.IntentsGuilds
	return newBot(s, cfg, gate, asker), nil
}

func newBot(s session, cfg Config, gate Gate, asker Asker) *Bot {
	owners := make(map[string]bool, len(cfg.OwnerIDs))
	for _, id := range cfg.OwnerIDs {
		owners[id] = true
	}
	b := &Bot{
		session:   s,
		channelID: cfg.ChannelID,
		guildID:   cfg.GuildID,
		ownerIDs:  owners,
		prompt:    cfg.SystemPrompt,
		gate:      gate,
		asker:     asker,
		ctx:       context.Background(),
		tasks:     make(map[string]context.CancelFunc),
	}
	s.AddHandler(b.onReady)
	s.AddHandler(b.onMessageCreate)
	s.AddHandler(b.onInteractionCreate)
	return b
}

// Start opens the Discord connection. Blocks until ctx is cancelled; running
// tasks are cancelled with it.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	slog.Info("discord: connected", "channel", b.channelID)

	<-ctx.Done()
	slog.Info("discord: shutting down")
	b.cancelTasks()
	return b.session.Close()
}

// IsOwner checks if a user ID is in the owner list.
func (b *Bot) IsOwner(userID string) bool {
	return b.ownerIDs[userID]
}

// Emit implements events.Sink.
func (b *Bot) Emit(e events.Event) {
	if e.Kind != events.ApprovalRequest {
		return
	}
	req, ok := e.Payload.(approval.Request)
	if !ok {
		return
	}
	go b.postApproval(req)
}

func (b *Bot) postApproval(req approval.Request) {
	_, err := b.session.ChannelMessageSendComplex(b.channelID, &discordgo.MessageSend{
		Content:    b.ownerMentions(),
		Embeds:     []*discordgo.MessageEmbed{ApprovalEmbed(req)},
		Components: ApprovalButtons(req.ID),
	})
	if err != nil {
		slog.Error("discord: post approval failed", "request", req.ID, "err", err)
	}
}

func (b *Bot) ownerMentions() string {
	var out []string
	for id := range b.ownerIDs {
		out = append(out, "<@"+id+">")
	}
	return strings.Join(out, " ")
}

// SendMessage sends text to a channel in Discord-sized chunks.
func (b *Bot) SendMessage(channelID, text string) {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if _, err := b.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Content: chunk}); err != nil {
			slog.Error("discord: send message failed", "err", err)
			return
		}
	}
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.mu.Lock()
	b.selfID = r.User.ID
	b.mu.Unlock()
	slog.Info("discord: ready", "user", r.User.Username, "guilds", len(r.Guilds))
	b.registerCommands(r.User.ID)
}

// StripMention removes the bot's @mention from message text.
func (b *Bot) StripMention(text string) string {
	b.mu.Lock()
	botID := b.selfID
	b.mu.Unlock()
	text = strings.ReplaceAll(text, "<@"+botID+">", "")
	text = strings.ReplaceAll(text, "<@!"+botID+">", "")
	return strings.TrimSpace(text)
}

func (b *Bot) mentioned(m *discordgo.MessageCreate) bool {
	b.mu.Lock()
	botID := b.selfID
	b.mu.Unlock()
	for _, u := range m.Mentions {
		if u.ID == botID {
			return true
		}
	}
	return false
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.ChannelID != b.channelID {
		return
	}
	if !b.mentioned(m) || !b.IsOwner(m.Author.ID) {
		return
	}
	text := b.StripMention(m.Content)
	if text == "" {
		return
	}
	go b.runTask(m.ID, text, func(reply string) { b.SendMessage(m.ChannelID, reply) })
}

func (b *Bot) onInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(i)
	}
}

var commands = []*discordgo.ApplicationCommand{
	{
		Name:        "ask",
		Description: "Run a task with the agent",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "prompt",
				Description: "What to do",
				Required:    true,
			},
		},
	},
	{
		Name:        "pending",
		Description: "List tool calls waiting for approval",
	},
	{
		Name:        "cancel",
		Description: "Cancel every running task",
	},
}

func (b *Bot) registerCommands(appID string) {
	for _, cmd := range commands {
		if _, err := b.session.ApplicationCommandCreate(appID, b.guildID, cmd); err != nil {
			slog.Error("discord: failed to register command", "cmd", cmd.Name, "err", err)
		} else {
			slog.Info("discord: registered command", "cmd", cmd.Name)
		}
	}
}

// runTask asks the agent in the background and delivers the reply. The task
// is cancelled by /cancel or shutdown.
func (b *Bot) runTask(key, prompt string, deliver func(string)) {
	b.mu.Lock()
	ctx, cancel := context.WithCancel(b.ctx)
	b.tasks[key] = cancel
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.tasks, key)
		b.mu.Unlock()
		cancel()
	}()

	resp, err := b.asker.Ask(ctx, b.prompt, prompt)
	if err != nil {
		slog.Error("discord: task failed", "err", err)
		deliver("Something went wrong: " + err.Error())
		return
	}
	if ctx.Err() != nil && resp == "" {
		deliver("Task cancelled.")
		return
	}
	if resp == "" {
		resp = "(no answer)"
	}
	deliver(resp)
}

func (b *Bot) cancelTasks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.tasks)
	for _, cancel := range b.tasks {
		cancel()
	}
	return n
}
