package discord

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/moorebrett0/agentcore/internal/approval"
	"github.com/moorebrett0/agentcore/internal/risk"
)

const (
	maxMessageLen = 2000
	maxFieldLen   = 1024

	actionApprove = "approve"
	actionDeny    = "deny"
)

// riskColor returns a Discord embed color for the level.
func riskColor(l risk.Level) int {
	switch l {
	case risk.Safe:
		return 0x57F287 // green
	case risk.Sensitive:
		return 0xFEE75C // yellow
	case risk.Dangerous:
		return 0xED4245 // red
	default:
		return 0x5865F2 // blurple
	}
}

// ApprovalEmbed describes a pending tool call. Secret-looking argument values
// are redacted.
func ApprovalEmbed(req approval.Request) *discordgo.MessageEmbed {
	args, err := json.MarshalIndent(risk.Redact(req.Action.Arguments), "", "  ")
	if err != nil {
		args = []byte(fmt.Sprint(req.Action.Arguments))
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Approve %s?", req.Action.ToolName),
		Description: fmt.Sprintf("Risk: **%s**", req.Action.Risk),
		Color:       riskColor(req.Action.Risk),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Arguments", Value: codeBlock(string(args), maxFieldLen)},
			{Name: "Task", Value: "`" + req.TaskID + "`", Inline: true},
			{Name: "Request", Value: "`" + req.ID + "`", Inline: true},
		},
		Timestamp: req.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// ApprovalButtons are the Approve/Deny controls for request id.
func ApprovalButtons(id string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Approve", Style: discordgo.SuccessButton, CustomID: actionApprove + ":" + id},
			discordgo.Button{Label: "Deny", Style: discordgo.DangerButton, CustomID: actionDeny + ":" + id},
		}},
	}
}

// ResolvedEmbed marks an approval embed with its outcome.
func ResolvedEmbed(orig *discordgo.MessageEmbed, approved bool, note string) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{}
	if orig != nil {
		cp := *orig
		e = &cp
	}
	if approved {
		e.Color = 0x57F287
		e.Footer = &discordgo.MessageEmbedFooter{Text: "Approved " + note}
	} else {
		e.Color = 0x99AAB5
		e.Footer = &discordgo.MessageEmbedFooter{Text: "Denied " + note}
	}
	return e
}

// ExpiredEmbed replaces a request that was already resolved elsewhere or
// timed out.
func ExpiredEmbed(id string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Approval no longer pending",
		Description: fmt.Sprintf("Request `%s` was already resolved or timed out.", id),
		Color:       0x23272A,
	}
}

func parseCustomID(s string) (action, id string, ok bool) {
	action, id, ok = strings.Cut(s, ":")
	if !ok || id == "" || (action != actionApprove && action != actionDeny) {
		return "", "", false
	}
	return action, id, true
}

func codeBlock(s string, max int) string {
	const fence = "```"
	limit := max - 2*len(fence) - len("json\n") - 1
	if len(s) > limit {
		s = s[:limit-3] + "..."
	}
	return fence + "json\n" + s + "\n" + fence
}

// splitMessage breaks text into chunks of at most n bytes, preferring line
// boundaries.
func splitMessage(text string, n int) []string {
	if text == "" {
		return nil
	}
	var out []string
	for len(text) > n {
		cut := strings.LastIndex(text[:n], "\n")
		if cut <= 0 {
			cut = n
		}
		out = append(out, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
