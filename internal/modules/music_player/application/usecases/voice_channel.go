package usecases

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
)

// PrepareInput contains the input for the Prepare use case.
type PrepareInput struct {
	GuildID snowflake.ID
	UserID  snowflake.ID
}

// PrepareOutput contains the result of the Prepare use case.
type PrepareOutput struct {
	VoiceChannelID snowflake.ID
}

// EnsureConnectedInput contains the input for the EnsureConnected use case.
type EnsureConnectedInput struct {
	GuildID        snowflake.ID
	VoiceChannelID snowflake.ID
}

// BotVoiceStateChangeInput contains the input for HandleBotVoiceStateChange.
type BotVoiceStateChangeInput struct {
	GuildID      snowflake.ID
	NewChannelID *snowflake.ID // nil if the bot was disconnected
}

// VoiceChannelService handles voice channel checks and connections.
type VoiceChannelService struct {
	voiceState ports.VoiceStateProvider
	voiceConn  ports.VoiceConnection
	playback   *PlaybackService
}

// NewVoiceChannelService creates a new VoiceChannelService.
func NewVoiceChannelService(
	voiceState ports.VoiceStateProvider,
	voiceConn ports.VoiceConnection,
	playback *PlaybackService,
) *VoiceChannelService {
	return &VoiceChannelService{
		voiceState: voiceState,
		voiceConn:  voiceConn,
		playback:   playback,
	}
}

// Prepare checks that the user is in a voice channel the bot may connect and speak in.
func (v *VoiceChannelService) Prepare(
	_ context.Context,
	input PrepareInput,
) (*PrepareOutput, error) {
	channelID, err := v.voiceState.GetUserVoiceChannel(input.GuildID, input.UserID)
	if err != nil {
		slog.Debug("failed to look up user voice channel",
			"guild", input.GuildID,
			"user", input.UserID,
			"error", err,
		)
		return nil, ErrUserNotInVoice
	}
	if channelID == 0 {
		return nil, ErrUserNotInVoice
	}

	allowed, err := v.voiceState.CanConnectAndSpeak(input.GuildID, channelID)
	if err != nil {
		slog.Warn("failed to compute voice permissions",
			"guild", input.GuildID,
			"channel", channelID,
			"error", err,
		)
		return nil, ErrMissingPermissions
	}
	if !allowed {
		return nil, ErrMissingPermissions
	}

	return &PrepareOutput{VoiceChannelID: channelID}, nil
}

// EnsureConnected joins the voice channel, or moves there if connected elsewhere.
func (v *VoiceChannelService) EnsureConnected(
	ctx context.Context,
	input EnsureConnectedInput,
) error {
	current, connected := v.voiceConn.ConnectedChannel(input.GuildID)

	switch {
	case !connected:
		if err := v.voiceConn.JoinChannel(ctx, input.GuildID, input.VoiceChannelID); err != nil {
			return fmt.Errorf("%w: %w", ErrConnectFailed, err)
		}
		slog.Info("joined voice channel", "guild", input.GuildID, "channel", input.VoiceChannelID)
		return nil

	case current != input.VoiceChannelID:
		if err := v.voiceConn.MoveChannel(ctx, input.GuildID, input.VoiceChannelID); err != nil {
			return fmt.Errorf("%w: %w", ErrMoveFailed, err)
		}
		slog.Info("moved voice channel",
			"guild", input.GuildID,
			"from", current,
			"to", input.VoiceChannelID,
		)
		return nil

	default:
		return nil
	}
}

// HandleBotVoiceStateChange releases the guild's playback state when the bot
// was disconnected from voice.
func (v *VoiceChannelService) HandleBotVoiceStateChange(
	ctx context.Context,
	input BotVoiceStateChangeInput,
) error {
	if input.NewChannelID != nil {
		return nil
	}

	slog.Info("bot disconnected from voice", "guild", input.GuildID)
	return v.playback.Release(ctx, input.GuildID)
}

// HandleGuildRemoved releases the state of a guild the bot left, then disconnects.
// Releasing first invalidates the session, so the stop caused by leaving cannot
// advance the queue.
func (v *VoiceChannelService) HandleGuildRemoved(ctx context.Context, guildID snowflake.ID) error {
	releaseErr := v.playback.Release(ctx, guildID)

	if _, connected := v.voiceConn.ConnectedChannel(guildID); connected {
		if err := v.voiceConn.LeaveChannel(ctx, guildID); err != nil {
			slog.Debug("failed to leave voice channel of removed guild",
				"guild", guildID,
				"error", err,
			)
		}
	}
	return releaseErr
}
