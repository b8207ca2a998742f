package usecases

import (
	"context"
	"log/slog"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/jukebot/internal/modules/music_player/domain"
)

const DefaultPageSize = 10

// EnqueueInput contains the input for the Enqueue use case.
type EnqueueInput struct {
	GuildID               snowflake.ID
	Track                 domain.Track
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// EnqueueOutput contains the result of the Enqueue use case.
type EnqueueOutput struct {
	Position        int // 1-based position in the pending queue
	RequesterCount  int
	MaxUserSongs    int
	StartedPlayback bool // true if the guild was idle and playback is being started
}

// QueueRemoveInput contains the input for the Remove use case.
type QueueRemoveInput struct {
	GuildID  snowflake.ID
	Position int // 1-based position in the pending queue
}

// QueueRemoveOutput contains the result of the Remove use case.
type QueueRemoveOutput struct {
	RemovedTrack domain.Track
	Remaining    int
}

// QueueListInput contains the input for the List use case.
type QueueListInput struct {
	GuildID  snowflake.ID
	Page     int // 1-indexed page number
	PageSize int // Items per page (optional, defaults to 10)
}

// QueueListOutput contains the result of the List use case.
type QueueListOutput struct {
	NowPlaying    *domain.Track
	Tracks        []domain.Track
	StartPosition int // 1-based queue position of Tracks[0]
	TotalTracks   int
	CurrentPage   int
	TotalPages    int
}

// QueueService handles queue operations.
type QueueService struct {
	repo      domain.GuildStateRepository
	scheduler ports.Scheduler
	publisher ports.EventPublisher
	limits    domain.QueueLimits
}

// NewQueueService creates a new QueueService.
func NewQueueService(
	repo domain.GuildStateRepository,
	scheduler ports.Scheduler,
	publisher ports.EventPublisher,
	limits domain.QueueLimits,
) *QueueService {
	return &QueueService{
		repo:      repo,
		scheduler: scheduler,
		publisher: publisher,
		limits:    limits,
	}
}

// Limits returns the queue limits enforced by the service.
func (q *QueueService) Limits() domain.QueueLimits {
	return q.limits
}

// Enqueue adds a track to the guild's queue.
// If the guild was idle it reserves the Playing state and publishes an event so
// that playback is started on the scheduling context.
func (q *QueueService) Enqueue(ctx context.Context, input EnqueueInput) (*EnqueueOutput, error) {
	var output *EnqueueOutput

	err := q.scheduler.Run(ctx, func(ctx context.Context) error {
		state := q.repo.GetOrCreate(input.GuildID)

		if input.NotificationChannelID != 0 {
			state.SetNotificationChannel(input.NotificationChannelID)
		}

		result, err := state.Enqueue(input.Track, q.limits)
		if err != nil {
			return err
		}

		wasIdle := state.IsIdle()
		if wasIdle {
			state.MarkPlaying()
		}

		output = &EnqueueOutput{
			Position:        result.Position,
			RequesterCount:  result.RequesterCount,
			MaxUserSongs:    q.limits.MaxUserSongs,
			StartedPlayback: wasIdle,
		}

		if err := q.publisher.Publish(domain.TrackEnqueuedEvent{
			GuildID: input.GuildID,
			Track:   input.Track,
			WasIdle: wasIdle,
		}); err != nil {
			slog.Error("failed to publish track enqueued event",
				"guild", input.GuildID,
				"error", err,
			)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return output, nil
}

// Remove removes the track at the given 1-based position from the pending queue.
func (q *QueueService) Remove(
	ctx context.Context,
	input QueueRemoveInput,
) (*QueueRemoveOutput, error) {
	var output *QueueRemoveOutput

	err := q.scheduler.Run(ctx, func(ctx context.Context) error {
		state := q.repo.Get(input.GuildID)
		if state == nil {
			return ErrQueueEmpty
		}

		removed, err := state.RemoveAt(input.Position)
		if err != nil {
			return err
		}

		output = &QueueRemoveOutput{
			RemovedTrack: removed,
			Remaining:    state.PendingLen(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return output, nil
}

// List returns the now-playing track and a page of the pending queue.
func (q *QueueService) List(ctx context.Context, input QueueListInput) (*QueueListOutput, error) {
	pageSize := input.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var (
		nowPlaying *domain.Track
		pending    []domain.Track
	)
	err := q.scheduler.Run(ctx, func(ctx context.Context) error {
		state := q.repo.Get(input.GuildID)
		if state == nil {
			return nil
		}
		nowPlaying = state.NowPlaying()
		pending = state.Pending()
		return nil
	})
	if err != nil {
		return nil, err
	}

	totalTracks := len(pending)
	totalPages := max((totalTracks+pageSize-1)/pageSize, 1)
	page := min(max(input.Page, 1), totalPages)

	start := (page - 1) * pageSize
	end := min(start+pageSize, totalTracks)

	return &QueueListOutput{
		NowPlaying:    nowPlaying,
		Tracks:        pending[start:end],
		StartPosition: start + 1,
		TotalTracks:   totalTracks,
		CurrentPage:   page,
		TotalPages:    totalPages,
	}, nil
}
