package infrastructure

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
)

// Ensure DiscordUserInfoProvider implements ports.UserInfoProvider.
var (
	_ ports.UserInfoProvider = (*DiscordUserInfoProvider)(nil)
)

// DiscordUserInfoProvider resolves requester display names for status messages.
type DiscordUserInfoProvider struct {
	session *discordgo.Session
}

// NewDiscordUserInfoProvider creates a new DiscordUserInfoProvider.
func NewDiscordUserInfoProvider(session *discordgo.Session) *DiscordUserInfoProvider {
	return &DiscordUserInfoProvider{session: session}
}

// GetUserInfo returns display info for a guild member.
// The state cache is consulted first; the REST API is the fallback.
func (p *DiscordUserInfoProvider) GetUserInfo(
	guildID, userID snowflake.ID,
) (*ports.UserInfo, error) {
	member, err := p.session.State.Member(guildID.String(), userID.String())
	if err != nil || member.User == nil {
		member, err = p.session.GuildMember(guildID.String(), userID.String())
		if err != nil {
			return nil, fmt.Errorf("failed to fetch guild member: %w", err)
		}
	}

	return &ports.UserInfo{
		DisplayName: getDisplayName(member),
	}, nil
}

// getDisplayName returns the effective display name for a guild member.
// Priority: guild nickname > global display name > username.
func getDisplayName(member *discordgo.Member) string {
	if member.Nick != "" {
		return member.Nick
	}
	if member.User == nil {
		return ""
	}
	if member.User.GlobalName != "" {
		return member.User.GlobalName
	}
	return member.User.Username
}
