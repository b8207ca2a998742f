package domain

import (
	"github.com/disgoorg/snowflake/v2"
)

// GuildStateRepository stores the playback state of each guild.
type GuildStateRepository interface {
	// GetOrCreate returns the state for the guild, creating an idle one on first access.
	GetOrCreate(guildID snowflake.ID) *GuildState

	// Get returns the state for the guild, or nil if none exists.
	Get(guildID snowflake.ID) *GuildState

	// Delete removes the state for the guild.
	Delete(guildID snowflake.ID)
}
