package domain

import (
	"fmt"

	"github.com/disgoorg/snowflake/v2"
)

// Default queue limits.
const (
	DefaultMaxQueueSize = 100
	DefaultMaxUserSongs = 3
)

// QueueLimits bounds the pending queue of a guild.
type QueueLimits struct {
	MaxQueueSize int
	MaxUserSongs int
}

// DefaultQueueLimits returns the default queue limits.
func DefaultQueueLimits() QueueLimits {
	return QueueLimits{
		MaxQueueSize: DefaultMaxQueueSize,
		MaxUserSongs: DefaultMaxUserSongs,
	}
}

// EnqueueResult describes a successful enqueue.
type EnqueueResult struct {
	Position       int // 1-based position in the pending queue
	RequesterCount int // Pending tracks of the requester after the enqueue
}

// AdvanceOutcome is the result of advancing a guild's queue.
// When QueueEmpty is false, Track is the new now-playing track and SessionID
// identifies the playback session the transport must report completion for.
type AdvanceOutcome struct {
	QueueEmpty bool
	Track      Track
	SessionID  uint64
}

// GuildState holds the playback state of a single guild.
//
// State machine: Idle (isPlaying=false) and Playing (isPlaying=true).
// Idle -> Playing happens through MarkPlaying followed by Advance;
// Advance on an empty queue always returns to Idle.
//
// GuildState is not safe for concurrent use; all access happens on the
// module's scheduling context.
type GuildState struct {
	guildID               snowflake.ID
	pending               Queue
	nowPlaying            *Track
	isPlaying             bool
	notificationChannelID snowflake.ID
	sessionID             uint64
	consecutiveFailures   int
}

// NewGuildState creates an idle GuildState with an empty queue.
func NewGuildState(guildID snowflake.ID) *GuildState {
	return &GuildState{
		guildID: guildID,
		pending: NewQueue(),
	}
}

// GuildID returns the guild this state belongs to.
func (s *GuildState) GuildID() snowflake.ID {
	return s.guildID
}

// IsPlaying reports whether a playback session is active or being started.
func (s *GuildState) IsPlaying() bool {
	return s.isPlaying
}

// IsIdle reports whether the guild is idle.
func (s *GuildState) IsIdle() bool {
	return !s.isPlaying
}

// NowPlaying returns the currently playing track, or nil if idle.
func (s *GuildState) NowPlaying() *Track {
	if s.nowPlaying == nil {
		return nil
	}
	track := *s.nowPlaying
	return &track
}

// Pending returns a copy of the pending tracks in play order.
func (s *GuildState) Pending() []Track {
	return s.pending.List()
}

// PendingLen returns the number of pending tracks.
func (s *GuildState) PendingLen() int {
	return s.pending.Len()
}

// SessionID returns the identifier of the current playback session.
func (s *GuildState) SessionID() uint64 {
	return s.sessionID
}

// NotificationChannelID returns the text channel for status messages.
func (s *GuildState) NotificationChannelID() snowflake.ID {
	return s.notificationChannelID
}

// SetNotificationChannel sets the text channel for status messages.
func (s *GuildState) SetNotificationChannel(channelID snowflake.ID) {
	s.notificationChannelID = channelID
}

// Enqueue appends a track to the pending queue.
// It does not start playback; callers check IsIdle and call MarkPlaying and Advance.
func (s *GuildState) Enqueue(track Track, limits QueueLimits) (EnqueueResult, error) {
	if s.pending.Len() >= limits.MaxQueueSize {
		return EnqueueResult{}, fmt.Errorf("%w: maximum %d songs allowed", ErrQueueFull, limits.MaxQueueSize)
	}
	if s.pending.CountByRequester(track.RequesterID) >= limits.MaxUserSongs {
		return EnqueueResult{}, fmt.Errorf(
			"%w: already %d songs in the queue",
			ErrUserQuotaExceeded,
			limits.MaxUserSongs,
		)
	}

	s.pending.Append(track)

	return EnqueueResult{
		Position:       s.pending.Len(),
		RequesterCount: s.pending.CountByRequester(track.RequesterID),
	}, nil
}

// MarkPlaying reserves the Playing state before the first Advance so that
// concurrent enqueues do not start a second session.
func (s *GuildState) MarkPlaying() {
	s.isPlaying = true
}

// Advance pops the head of the pending queue into now-playing.
// On an empty queue it transitions to Idle and reports QueueEmpty; repeated
// calls on an empty queue yield the same result.
func (s *GuildState) Advance() AdvanceOutcome {
	track, ok := s.pending.PopFront()
	if !ok {
		s.isPlaying = false
		s.nowPlaying = nil
		return AdvanceOutcome{QueueEmpty: true}
	}

	s.nowPlaying = &track
	s.isPlaying = true
	s.sessionID++

	return AdvanceOutcome{
		Track:     track,
		SessionID: s.sessionID,
	}
}

// RemoveAt removes the pending track at the given 1-based position.
// It never affects the now-playing track.
func (s *GuildState) RemoveAt(position int) (Track, error) {
	if s.pending.IsEmpty() {
		return Track{}, ErrQueueEmpty
	}

	track, ok := s.pending.RemoveAt(position - 1)
	if !ok {
		return Track{}, fmt.Errorf("%w. Queue has %d songs", ErrInvalidPosition, s.pending.Len())
	}
	return track, nil
}

// RecordStartFailure increments the consecutive playback-start failure counter
// and returns the new value.
func (s *GuildState) RecordStartFailure() int {
	s.consecutiveFailures++
	return s.consecutiveFailures
}

// ResetStartFailures clears the consecutive playback-start failure counter.
func (s *GuildState) ResetStartFailures() {
	s.consecutiveFailures = 0
}

// Stop clears the pending queue and returns to Idle.
// It returns the number of pending tracks that were dropped.
func (s *GuildState) Stop() int {
	dropped := s.pending.Clear()
	s.nowPlaying = nil
	s.isPlaying = false
	s.consecutiveFailures = 0
	// Invalidate completions of the session that was playing.
	s.sessionID++
	return dropped
}
