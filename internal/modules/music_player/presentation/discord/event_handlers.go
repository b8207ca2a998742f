package discord

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/usecases"
)

// EventHandlers handles Discord gateway events for the music player.
type EventHandlers struct {
	botID        snowflake.ID
	voiceChannel *usecases.VoiceChannelService
}

// NewEventHandlers creates a new EventHandlers.
func NewEventHandlers(
	botID snowflake.ID,
	voiceChannel *usecases.VoiceChannelService,
) *EventHandlers {
	return &EventHandlers{
		botID:        botID,
		voiceChannel: voiceChannel,
	}
}

// HandleVoiceStateUpdate handles VoiceStateUpdate events for the bot.
func (h *EventHandlers) HandleVoiceStateUpdate(
	_ *discordgo.Session,
	event *discordgo.VoiceStateUpdate,
) {
	if event.VoiceState == nil || event.UserID != h.botID.String() {
		return
	}

	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice state update", "error", err)
		return
	}

	// Empty channel ID means disconnected
	var newChannelID *snowflake.ID
	if event.ChannelID != "" {
		id, err := snowflake.Parse(event.ChannelID)
		if err != nil {
			slog.Error("failed to parse channel ID in voice state update", "error", err)
			return
		}
		newChannelID = &id
	}

	err = h.voiceChannel.HandleBotVoiceStateChange(
		context.Background(),
		usecases.BotVoiceStateChangeInput{
			GuildID:      guildID,
			NewChannelID: newChannelID,
		},
	)
	if err != nil {
		slog.Error("failed to handle bot voice state change", "guild", guildID, "error", err)
	}
}

// HandleGuildDelete handles GuildDelete events.
// Unavailable guilds are an outage, not a removal, and keep their state.
func (h *EventHandlers) HandleGuildDelete(_ *discordgo.Session, event *discordgo.GuildDelete) {
	if event.Guild == nil || event.Unavailable {
		return
	}

	guildID, err := snowflake.Parse(event.ID)
	if err != nil {
		slog.Error("failed to parse guild ID in guild delete", "error", err)
		return
	}

	if err := h.voiceChannel.HandleGuildRemoved(context.Background(), guildID); err != nil {
		slog.Error("failed to release removed guild", "guild", guildID, "error", err)
	}
}
