package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/jukebot/internal/modules/music_player/domain"
)

// Playback defaults.
const (
	DefaultMaxConsecutiveSkips = 5
	DefaultStartTimeout        = 15 * time.Second
)

// PlaybackConfig tunes the PlaybackService.
type PlaybackConfig struct {
	PlayOptions         ports.PlayOptions
	MaxConsecutiveSkips int           // Start failures in a row before the queue is dropped
	StartTimeout        time.Duration // Bounds a single transport start
}

// SkipInput contains the input for the Skip use case.
type SkipInput struct {
	GuildID snowflake.ID
}

// SkipOutput contains the result of the Skip use case.
type SkipOutput struct {
	SkippedTrack domain.Track
}

// PlaybackService drives the audio transport from the guild queue.
type PlaybackService struct {
	repo      domain.GuildStateRepository
	scheduler ports.Scheduler
	transport ports.AudioTransport
	publisher ports.EventPublisher
	config    PlaybackConfig
}

// NewPlaybackService creates a new PlaybackService.
func NewPlaybackService(
	repo domain.GuildStateRepository,
	scheduler ports.Scheduler,
	transport ports.AudioTransport,
	publisher ports.EventPublisher,
	config PlaybackConfig,
) *PlaybackService {
	if config.MaxConsecutiveSkips <= 0 {
		config.MaxConsecutiveSkips = DefaultMaxConsecutiveSkips
	}
	if config.StartTimeout <= 0 {
		config.StartTimeout = DefaultStartTimeout
	}

	return &PlaybackService{
		repo:      repo,
		scheduler: scheduler,
		transport: transport,
		publisher: publisher,
		config:    config,
	}
}

// Advance moves the guild to its next track, or to Idle if the queue is empty.
func (p *PlaybackService) Advance(ctx context.Context, guildID snowflake.ID) error {
	return p.scheduler.Run(ctx, func(ctx context.Context) error {
		state := p.repo.Get(guildID)
		if state == nil {
			slog.Debug("advance requested for unknown guild", "guild", guildID)
			return nil
		}
		p.advance(ctx, state)
		return nil
	})
}

// HandleTrackEnded advances the queue when the current session ended.
// Completions of superseded sessions are ignored.
func (p *PlaybackService) HandleTrackEnded(
	ctx context.Context,
	event domain.TrackEndedEvent,
) error {
	return p.scheduler.Run(ctx, func(ctx context.Context) error {
		state := p.repo.Get(event.GuildID)
		if state == nil {
			return nil
		}

		if state.SessionID() != event.SessionID {
			slog.Debug("ignoring completion of stale session",
				"guild", event.GuildID,
				"session", event.SessionID,
				"current_session", state.SessionID(),
			)
			return nil
		}

		if event.Err != nil {
			slog.Warn("playback ended with error",
				"guild", event.GuildID,
				"reason", event.Reason,
				"error", event.Err,
			)
		}

		if !event.Reason.ShouldAdvanceQueue() {
			slog.Debug("playback torn down, going idle",
				"guild", event.GuildID,
				"reason", event.Reason,
			)
			dropped := state.Stop()
			p.publish(domain.PlaybackInterruptedEvent{
				GuildID:               event.GuildID,
				Reason:                event.Reason,
				DroppedTracks:         dropped,
				NotificationChannelID: state.NotificationChannelID(),
			})
			return nil
		}

		p.advance(ctx, state)
		return nil
	})
}

// Skip stops the current track; its completion advances the queue.
func (p *PlaybackService) Skip(ctx context.Context, input SkipInput) (*SkipOutput, error) {
	var output *SkipOutput

	err := p.scheduler.Run(ctx, func(ctx context.Context) error {
		state := p.repo.Get(input.GuildID)
		if state == nil {
			return ErrNotPlaying
		}

		current := state.NowPlaying()
		if current == nil {
			return ErrNotPlaying
		}

		if err := p.transport.Stop(ctx, input.GuildID); err != nil {
			return fmt.Errorf("failed to skip track: %w", err)
		}

		output = &SkipOutput{SkippedTrack: *current}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return output, nil
}

// Release stops playback and forgets the guild's state.
func (p *PlaybackService) Release(ctx context.Context, guildID snowflake.ID) error {
	return p.scheduler.Run(ctx, func(ctx context.Context) error {
		state := p.repo.Get(guildID)
		if state == nil {
			return nil
		}

		wasPlaying := state.IsPlaying()
		dropped := state.Stop()
		p.repo.Delete(guildID)

		if wasPlaying {
			if err := p.transport.Stop(ctx, guildID); err != nil {
				slog.Debug("failed to stop transport on release", "guild", guildID, "error", err)
			}
		}

		slog.Info("released guild playback state", "guild", guildID, "dropped_tracks", dropped)
		return nil
	})
}

// advance pops tracks until one starts or the queue is exhausted.
// Start failures skip to the next track, bounded by MaxConsecutiveSkips.
// Must run on the scheduling context.
func (p *PlaybackService) advance(ctx context.Context, state *domain.GuildState) {
	guildID := state.GuildID()

	for {
		outcome := state.Advance()
		if outcome.QueueEmpty {
			slog.Debug("queue exhausted", "guild", guildID)
			p.publish(domain.QueueExhaustedEvent{
				GuildID:               guildID,
				NotificationChannelID: state.NotificationChannelID(),
			})
			return
		}

		err := p.start(ctx, guildID, outcome)
		if err == nil {
			state.ResetStartFailures()
			p.publish(domain.PlaybackStartedEvent{
				GuildID:               guildID,
				Track:                 outcome.Track,
				NotificationChannelID: state.NotificationChannelID(),
			})
			return
		}

		slog.Warn("failed to start playback",
			"guild", guildID,
			"track", outcome.Track.Title,
			"error", err,
		)
		p.publish(domain.PlaybackFailedEvent{
			GuildID:               guildID,
			Track:                 outcome.Track,
			Err:                   err,
			NotificationChannelID: state.NotificationChannelID(),
		})

		failures := state.RecordStartFailure()
		if failures >= p.config.MaxConsecutiveSkips {
			dropped := state.Stop()
			slog.Error("too many consecutive playback failures, dropping queue",
				"guild", guildID,
				"failures", failures,
				"dropped_tracks", dropped,
			)
			p.publish(domain.PlaybackHaltedEvent{
				GuildID:               guildID,
				ConsecutiveFailures:   failures,
				DroppedTracks:         dropped,
				NotificationChannelID: state.NotificationChannelID(),
			})
			return
		}
	}
}

// start hands the track to the transport. The completion callback only
// publishes an event; it never touches guild state.
func (p *PlaybackService) start(
	ctx context.Context,
	guildID snowflake.ID,
	outcome domain.AdvanceOutcome,
) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.StartTimeout)
	defer cancel()

	sessionID := outcome.SessionID
	return p.transport.Play(
		ctx,
		guildID,
		outcome.Track.SourceURL,
		p.config.PlayOptions,
		func(reason domain.TrackEndReason, err error) {
			p.publish(domain.TrackEndedEvent{
				GuildID:   guildID,
				SessionID: sessionID,
				Reason:    reason,
				Err:       err,
			})
		},
	)
}

func (p *PlaybackService) publish(event domain.Event) {
	if err := p.publisher.Publish(event); err != nil {
		slog.Error("failed to publish event", "guild", event.Guild(), "error", err)
	}
}
