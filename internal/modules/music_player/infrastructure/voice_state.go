package infrastructure

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
)

// voicePermissions are required to play audio in a voice channel.
const voicePermissions = discordgo.PermissionVoiceConnect | discordgo.PermissionVoiceSpeak

// VoiceStateProvider provides Discord voice state information.
type VoiceStateProvider struct {
	session *discordgo.Session
}

// NewVoiceStateProvider creates a new VoiceStateProvider.
func NewVoiceStateProvider(session *discordgo.Session) *VoiceStateProvider {
	return &VoiceStateProvider{
		session: session,
	}
}

// GetUserVoiceChannel returns the voice channel ID that the user is currently in.
// Returns 0 if the user is not in a voice channel.
func (v *VoiceStateProvider) GetUserVoiceChannel(
	guildID, userID snowflake.ID,
) (snowflake.ID, error) {
	vs, err := v.session.State.VoiceState(guildID.String(), userID.String())
	if err != nil {
		if errors.Is(err, discordgo.ErrStateNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if vs.ChannelID == "" {
		return 0, nil
	}

	return snowflake.Parse(vs.ChannelID)
}

// CanConnectAndSpeak reports whether the bot may connect and speak in the channel.
func (v *VoiceStateProvider) CanConnectAndSpeak(guildID, channelID snowflake.ID) (bool, error) {
	if v.session.State.User == nil {
		return false, errors.New("bot user not ready")
	}

	perms, err := v.session.State.UserChannelPermissions(
		v.session.State.User.ID,
		channelID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to compute permissions in guild %s: %w", guildID, err)
	}

	return hasVoicePermissions(perms), nil
}

func hasVoicePermissions(perms int64) bool {
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return perms&voicePermissions == voicePermissions
}

// Ensure VoiceStateProvider implements ports.VoiceStateProvider.
var _ ports.VoiceStateProvider = (*VoiceStateProvider)(nil)
