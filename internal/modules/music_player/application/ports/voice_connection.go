package ports

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// VoiceConnection defines the interface for voice channel connection operations.
type VoiceConnection interface {
	// ConnectedChannel returns the voice channel the bot is connected to in the guild,
	// or false if it is not connected.
	ConnectedChannel(guildID snowflake.ID) (snowflake.ID, bool)

	// JoinChannel connects the bot to the specified voice channel.
	JoinChannel(ctx context.Context, guildID, channelID snowflake.ID) error

	// MoveChannel moves an existing connection to another voice channel.
	MoveChannel(ctx context.Context, guildID, channelID snowflake.ID) error

	// LeaveChannel disconnects the bot from the voice channel.
	LeaveChannel(ctx context.Context, guildID snowflake.ID) error
}
