package discord

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
)

// textCommand is a prefix command parsed from a chat message.
type textCommand struct {
	Name string // Canonical name, aliases resolved
	Args string
}

// Canonical command names by name or alias. Names are case-sensitive.
var textCommandAliases = map[string]string{
	"play":   "play",
	"p":      "play",
	"remove": "remove",
	"rm":     "remove",
	"queue":  "queue",
	"q":      "queue",
	"skip":   "skip",
	"s":      "skip",
}

// parseTextCommand parses "<prefix><name> [args]". It returns false for
// messages that are not a known command.
func parseTextCommand(content, prefix string) (textCommand, bool) {
	if prefix == "" {
		return textCommand{}, false
	}

	rest, ok := strings.CutPrefix(strings.TrimSpace(content), prefix)
	if !ok {
		return textCommand{}, false
	}

	name, args := rest, ""
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		name, args = rest[:i], rest[i:]
	}

	canonical, ok := textCommandAliases[name]
	if !ok {
		return textCommand{}, false
	}

	return textCommand{Name: canonical, Args: strings.TrimSpace(args)}, true
}

// TextCommandHandler runs prefix commands posted in guild text channels.
type TextCommandHandler struct {
	commands *CommandHandlers
	sender   ports.NotificationSender
	prefix   string
	botID    snowflake.ID
}

// NewTextCommandHandler creates a new TextCommandHandler.
func NewTextCommandHandler(
	commands *CommandHandlers,
	sender ports.NotificationSender,
	prefix string,
	botID snowflake.ID,
) *TextCommandHandler {
	return &TextCommandHandler{
		commands: commands,
		sender:   sender,
		prefix:   prefix,
		botID:    botID,
	}
}

// HandleMessageCreate handles MessageCreate events.
func (h *TextCommandHandler) HandleMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	cmd, ok := parseTextCommand(m.Content, h.prefix)
	if !ok {
		return
	}

	inv, err := parseMessageInvocation(m)
	if err != nil {
		slog.Warn("failed to parse text command invocation", "error", err)
		return
	}
	if inv.UserID == h.botID {
		return
	}

	if err := h.run(context.Background(), inv, cmd); err != nil {
		slog.Error("failed to handle text command",
			"command", cmd.Name,
			"guild", inv.GuildID,
			"error", err,
		)
	}
}

func (h *TextCommandHandler) run(ctx context.Context, inv invocation, cmd textCommand) error {
	reply := newChannelReply(h.sender, inv.ChannelID)

	switch cmd.Name {
	case "play":
		return h.commands.play(ctx, inv, cmd.Args, reply)
	case "remove":
		position, err := strconv.Atoi(cmd.Args)
		if err != nil {
			return reply.Update("❌ Usage: `" + h.prefix + "remove <position>`")
		}
		return h.commands.remove(ctx, inv, position, reply)
	case "queue":
		page := 1
		if cmd.Args != "" {
			p, err := strconv.Atoi(cmd.Args)
			if err != nil {
				return reply.Update("❌ Usage: `" + h.prefix + "queue [page]`")
			}
			page = p
		}
		return h.commands.list(ctx, inv, page, reply)
	case "skip":
		return h.commands.skip(ctx, inv, reply)
	}

	return nil
}

func parseMessageInvocation(m *discordgo.MessageCreate) (invocation, error) {
	guildID, err := snowflake.Parse(m.GuildID)
	if err != nil {
		return invocation{}, err
	}
	userID, err := snowflake.Parse(m.Author.ID)
	if err != nil {
		return invocation{}, err
	}
	channelID, err := snowflake.Parse(m.ChannelID)
	if err != nil {
		return invocation{}, err
	}

	return invocation{GuildID: guildID, UserID: userID, ChannelID: channelID}, nil
}
