package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/jukebot/internal/bot"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/jukebot/internal/modules/music_player/domain"
)

// Status messages.
const (
	msgProcessing      = "🔍 Processing song..."
	msgStartedPlayback = "🎵 Starting playback..."
	msgQueueEmpty      = "📝 Queue is empty."
)

// CommandHandlers holds the command logic shared by slash and text commands.
type CommandHandlers struct {
	voiceChannel  *usecases.VoiceChannelService
	playback      *usecases.PlaybackService
	queue         *usecases.QueueService
	resolver      *usecases.TrackResolverService
	commandPrefix string
}

// NewCommandHandlers creates new CommandHandlers.
func NewCommandHandlers(
	voiceChannel *usecases.VoiceChannelService,
	playback *usecases.PlaybackService,
	queue *usecases.QueueService,
	resolver *usecases.TrackResolverService,
	commandPrefix string,
) *CommandHandlers {
	return &CommandHandlers{
		voiceChannel:  voiceChannel,
		playback:      playback,
		queue:         queue,
		resolver:      resolver,
		commandPrefix: commandPrefix,
	}
}

// invocation identifies who issued a command and where.
type invocation struct {
	GuildID   snowflake.ID
	UserID    snowflake.ID
	ChannelID snowflake.ID
}

// HandlePlay handles the /play command.
func (h *CommandHandlers) HandlePlay(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	inv, err := parseInvocation(i)
	if err != nil {
		return respondError(r, err.Error())
	}

	var query string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "query" {
			query = opt.StringValue()
		}
	}

	return h.play(context.Background(), inv, query, newInteractionReply(r))
}

// HandleRemove handles the /remove command.
func (h *CommandHandlers) HandleRemove(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	inv, err := parseInvocation(i)
	if err != nil {
		return respondError(r, err.Error())
	}

	var position int
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "position" {
			position = int(opt.IntValue())
		}
	}

	return h.remove(context.Background(), inv, position, newInteractionReply(r))
}

// HandleQueue handles the /queue command.
func (h *CommandHandlers) HandleQueue(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	inv, err := parseInvocation(i)
	if err != nil {
		return respondError(r, err.Error())
	}

	var page int
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "page" {
			page = int(opt.IntValue())
		}
	}

	return h.list(context.Background(), inv, page, newInteractionReply(r))
}

// HandleSkip handles the /skip command.
func (h *CommandHandlers) HandleSkip(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	inv, err := parseInvocation(i)
	if err != nil {
		return respondError(r, err.Error())
	}

	return h.skip(context.Background(), inv, newInteractionReply(r))
}

// play checks the caller's voice channel, resolves the query, joins voice and
// enqueues the track, reporting progress on a single status message.
func (h *CommandHandlers) play(
	ctx context.Context,
	inv invocation,
	query string,
	reply statusReply,
) error {
	prepared, err := h.voiceChannel.Prepare(ctx, usecases.PrepareInput{
		GuildID: inv.GuildID,
		UserID:  inv.UserID,
	})
	if err != nil {
		return reply.Update(h.errorMessage(err))
	}

	if err := reply.Update(msgProcessing); err != nil {
		return err
	}

	resolved, err := h.resolver.Resolve(ctx, usecases.ResolveInput{
		Query:       query,
		RequesterID: inv.UserID,
	})
	if err != nil {
		return reply.Update(h.errorMessage(err))
	}

	err = h.voiceChannel.EnsureConnected(ctx, usecases.EnsureConnectedInput{
		GuildID:        inv.GuildID,
		VoiceChannelID: prepared.VoiceChannelID,
	})
	if err != nil {
		return reply.Update(h.errorMessage(err))
	}

	enqueued, err := h.queue.Enqueue(ctx, usecases.EnqueueInput{
		GuildID:               inv.GuildID,
		Track:                 resolved.Track,
		NotificationChannelID: inv.ChannelID,
	})
	if err != nil {
		return reply.Update(h.errorMessage(err))
	}

	if enqueued.StartedPlayback {
		return reply.Update(msgStartedPlayback)
	}

	return reply.Update(fmt.Sprintf(
		"✅ Added to queue: %s (Position: %d) | Your songs in queue: %d/%d",
		resolved.Track,
		enqueued.Position,
		enqueued.RequesterCount,
		enqueued.MaxUserSongs,
	))
}

func (h *CommandHandlers) remove(
	ctx context.Context,
	inv invocation,
	position int,
	reply statusReply,
) error {
	output, err := h.queue.Remove(ctx, usecases.QueueRemoveInput{
		GuildID:  inv.GuildID,
		Position: position,
	})
	if err != nil {
		return reply.Update(h.errorMessage(err))
	}

	return reply.Update(fmt.Sprintf(
		"🗑️ Removed: %s | Songs left in queue: %d",
		output.RemovedTrack,
		output.Remaining,
	))
}

func (h *CommandHandlers) list(
	ctx context.Context,
	inv invocation,
	page int,
	reply statusReply,
) error {
	output, err := h.queue.List(ctx, usecases.QueueListInput{
		GuildID: inv.GuildID,
		Page:    page,
	})
	if err != nil {
		return reply.Update(h.errorMessage(err))
	}

	return reply.Update(formatQueue(output))
}

func (h *CommandHandlers) skip(ctx context.Context, inv invocation, reply statusReply) error {
	output, err := h.playback.Skip(ctx, usecases.SkipInput{GuildID: inv.GuildID})
	if err != nil {
		return reply.Update(h.errorMessage(err))
	}

	return reply.Update(fmt.Sprintf("⏭️ Skipped: %s", output.SkippedTrack))
}

// errorMessage renders a use case error as a user-facing status message.
func (h *CommandHandlers) errorMessage(err error) string {
	limits := h.queue.Limits()
	lookupPrefix := usecases.ErrMetadataLookup.Error() + ": "

	switch {
	case errors.Is(err, usecases.ErrQueueEmpty):
		return msgQueueEmpty
	case errors.Is(err, usecases.ErrQueueFull):
		return fmt.Sprintf("❌ Queue is full! Maximum %d songs allowed.", limits.MaxQueueSize)
	case errors.Is(err, usecases.ErrUserQuotaExceeded):
		return fmt.Sprintf(
			"❌ You already have %d songs in the queue! "+
				"Wait for them to play or use `%sremove` to remove one.",
			limits.MaxUserSongs,
			h.commandPrefix,
		)
	case errors.Is(err, ports.ErrMetadataAuth):
		return "❌ Spotify authentication failed."
	case errors.Is(err, ports.ErrMetadataInvalidLink):
		return "❌ Invalid Spotify track URL."
	case errors.Is(err, ports.ErrMetadataNotFound):
		return "❌ Spotify " + strings.TrimPrefix(err.Error(), lookupPrefix)
	case errors.Is(err, usecases.ErrMetadataLookup):
		return "❌ Spotify error: " + strings.TrimPrefix(err.Error(), lookupPrefix)
	}

	message := capitalize(err.Error())
	if isSentinel(err) || errors.Is(err, usecases.ErrInvalidPosition) {
		message += "."
	}
	return "❌ " + message
}

// isSentinel reports whether err is one of the bare use case errors, which
// read as complete sentences.
func isSentinel(err error) bool {
	for _, sentinel := range []error{
		usecases.ErrUserNotInVoice,
		usecases.ErrMissingPermissions,
		usecases.ErrEmptyQuery,
		usecases.ErrNoResults,
		usecases.ErrNoAudioURL,
		usecases.ErrNotPlaying,
	} {
		if err == sentinel {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// formatQueue renders the now playing track and one page of the pending queue.
func formatQueue(output *usecases.QueueListOutput) string {
	if output.NowPlaying == nil && output.TotalTracks == 0 {
		return msgQueueEmpty
	}

	var sb strings.Builder
	if output.NowPlaying != nil {
		fmt.Fprintf(&sb, "▶️ Now playing: %s (requested by <@%d>)\n",
			*output.NowPlaying, output.NowPlaying.RequesterID)
	}

	if output.TotalTracks == 0 {
		sb.WriteString(msgQueueEmpty)
		return sb.String()
	}

	fmt.Fprintf(&sb, "📜 Up next (page %d/%d, %d songs):\n",
		output.CurrentPage, output.TotalPages, output.TotalTracks)
	for idx, track := range output.Tracks {
		writeTrackLine(&sb, output.StartPosition+idx, track)
	}

	return strings.TrimSuffix(sb.String(), "\n")
}

// writeTrackLine writes a single track line to the string builder.
// Escapes period to prevent Discord markdown list formatting.
func writeTrackLine(sb *strings.Builder, position int, track domain.Track) {
	fmt.Fprintf(sb, "%d\\. %s - <@%d>\n", position, track, track.RequesterID)
}

// parseInvocation extracts the guild, user and channel of a slash command.
func parseInvocation(i *discordgo.InteractionCreate) (invocation, error) {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return invocation{}, errors.New("this command can only be used in a server")
	}

	if i.Member == nil || i.Member.User == nil {
		return invocation{}, errors.New("invalid user")
	}
	userID, err := snowflake.Parse(i.Member.User.ID)
	if err != nil {
		return invocation{}, errors.New("invalid user")
	}

	channelID, err := snowflake.Parse(i.ChannelID)
	if err != nil {
		return invocation{}, errors.New("invalid channel")
	}

	return invocation{GuildID: guildID, UserID: userID, ChannelID: channelID}, nil
}

// respondError reports a request the handlers could not parse.
func respondError(r bot.Responder, message string) error {
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "❌ " + capitalize(message) + ".",
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}
