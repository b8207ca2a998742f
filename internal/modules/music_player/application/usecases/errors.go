package usecases

import (
	"errors"

	"github.com/sglre6355/jukebot/internal/modules/music_player/domain"
)

// User-facing errors of the music player module.
// Every error returned by a use case wraps one of these and is safe to show to users.
var (
	// ErrUserNotInVoice is returned when the user is not in a voice channel.
	ErrUserNotInVoice = errors.New("you're not in a voice channel")

	// ErrMissingPermissions is returned when the bot may not connect or speak in the channel.
	ErrMissingPermissions = errors.New(
		"I don't have permission to connect or speak in that voice channel",
	)

	// ErrConnectFailed is returned when joining a voice channel fails.
	ErrConnectFailed = errors.New("failed to connect")

	// ErrMoveFailed is returned when moving to another voice channel fails.
	ErrMoveFailed = errors.New("failed to move to voice channel")

	// ErrEmptyQuery is returned when the query is blank.
	ErrEmptyQuery = errors.New("please provide a song name or URL")

	// ErrNoResults is returned when a search yields no results.
	ErrNoResults = errors.New("no results found")

	// ErrNoAudioURL is returned when the extractor found no playable stream.
	ErrNoAudioURL = errors.New("could not extract audio URL")

	// ErrExtraction is returned when the extractor failed; the cause is embedded.
	ErrExtraction = errors.New("error retrieving video")

	// ErrMetadataLookup is returned when a music-service link could not be translated.
	ErrMetadataLookup = errors.New("spotify lookup failed")

	// ErrNotPlaying is returned when no track is currently playing.
	ErrNotPlaying = errors.New("nothing is currently playing")

	// ErrQueueFull is returned when the queue has reached its size limit.
	ErrQueueFull = domain.ErrQueueFull

	// ErrUserQuotaExceeded is returned when the requester has too many songs queued.
	ErrUserQuotaExceeded = domain.ErrUserQuotaExceeded

	// ErrQueueEmpty is returned when the queue is empty.
	ErrQueueEmpty = domain.ErrQueueEmpty

	// ErrInvalidPosition is returned when an invalid queue position is specified.
	ErrInvalidPosition = domain.ErrInvalidPosition
)
