package ports

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/jukebot/internal/modules/music_player/domain"
)

// PlayOptions controls how the transport opens a stream.
type PlayOptions struct {
	ReconnectAttempts int           // Reconnect attempts when the stream drops
	ReconnectDelayMax time.Duration // Upper bound for the delay between reconnects
	NoVideo           bool          // Drop video streams
}

// TrackEndFunc is invoked exactly once when a playback session ends, from a
// goroutine owned by the transport. err is nil on a clean end of stream.
type TrackEndFunc func(reason domain.TrackEndReason, err error)

// AudioTransport streams audio into the guild's voice connection.
type AudioTransport interface {
	// Play starts streaming sourceURL. It returns an error if playback could not be
	// started, in which case onEnd is never called.
	Play(
		ctx context.Context,
		guildID snowflake.ID,
		sourceURL string,
		opts PlayOptions,
		onEnd TrackEndFunc,
	) error

	// Stop ends the current session; its TrackEndFunc reports TrackEndStopped.
	Stop(ctx context.Context, guildID snowflake.ID) error
}
