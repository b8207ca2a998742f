package domain

import (
	"github.com/disgoorg/snowflake/v2"
)

// Event is a domain event delivered through the module's event bus.
type Event interface {
	Guild() snowflake.ID
}

// TrackEndReason represents why a playback session ended.
type TrackEndReason string

const (
	// TrackEndFinished means the stream reached its end.
	TrackEndFinished TrackEndReason = "finished"
	// TrackEndLoadFailed means the stream failed while playing.
	TrackEndLoadFailed TrackEndReason = "load_failed"
	// TrackEndStopped means playback was stopped on request, e.g. by a skip.
	TrackEndStopped TrackEndReason = "stopped"
	// TrackEndReplaced means another track replaced this one on the player.
	TrackEndReplaced TrackEndReason = "replaced"
	// TrackEndCleanup means the player was torn down, e.g. on voice disconnect.
	TrackEndCleanup TrackEndReason = "cleanup"
)

// ShouldAdvanceQueue returns true if this end reason should advance the queue.
func (r TrackEndReason) ShouldAdvanceQueue() bool {
	return r == TrackEndFinished || r == TrackEndLoadFailed || r == TrackEndStopped
}

// TrackEnqueuedEvent is published when a track is added to the queue.
type TrackEnqueuedEvent struct {
	GuildID snowflake.ID
	Track   Track
	WasIdle bool // true if the guild was idle and playback must be started
}

// PlaybackStartedEvent is published when the transport accepted a track.
type PlaybackStartedEvent struct {
	GuildID               snowflake.ID
	Track                 Track
	NotificationChannelID snowflake.ID
}

// PlaybackFailedEvent is published when the transport rejected a track.
type PlaybackFailedEvent struct {
	GuildID               snowflake.ID
	Track                 Track
	Err                   error
	NotificationChannelID snowflake.ID
}

// PlaybackHaltedEvent is published when too many tracks failed to start in a row
// and the remaining queue was dropped.
type PlaybackHaltedEvent struct {
	GuildID               snowflake.ID
	ConsecutiveFailures   int
	DroppedTracks         int
	NotificationChannelID snowflake.ID
}

// PlaybackInterruptedEvent is published when the transport tore the session down
// on its own and the remaining queue was dropped.
type PlaybackInterruptedEvent struct {
	GuildID               snowflake.ID
	Reason                TrackEndReason
	DroppedTracks         int
	NotificationChannelID snowflake.ID
}

// TrackEndedEvent is published by the audio transport when a session ends.
// It carries the session ID so completions of superseded sessions can be ignored.
type TrackEndedEvent struct {
	GuildID   snowflake.ID
	SessionID uint64
	Reason    TrackEndReason
	Err       error
}

// QueueExhaustedEvent is published when the queue ran out and the guild went idle.
type QueueExhaustedEvent struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID
}

func (e TrackEnqueuedEvent) Guild() snowflake.ID       { return e.GuildID }
func (e PlaybackStartedEvent) Guild() snowflake.ID     { return e.GuildID }
func (e PlaybackFailedEvent) Guild() snowflake.ID      { return e.GuildID }
func (e PlaybackHaltedEvent) Guild() snowflake.ID      { return e.GuildID }
func (e PlaybackInterruptedEvent) Guild() snowflake.ID { return e.GuildID }
func (e TrackEndedEvent) Guild() snowflake.ID          { return e.GuildID }
func (e QueueExhaustedEvent) Guild() snowflake.ID      { return e.GuildID }
