package application

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/jukebot/internal/modules/music_player/domain"
)

// PlaybackEventHandler drives the playback flow from queue events.
// It subscribes to TrackEnqueued and TrackEnded events.
type PlaybackEventHandler struct {
	playback   *usecases.PlaybackService
	subscriber ports.EventSubscriber
}

// NewPlaybackEventHandler creates a new PlaybackEventHandler.
func NewPlaybackEventHandler(
	playback *usecases.PlaybackService,
	subscriber ports.EventSubscriber,
) *PlaybackEventHandler {
	return &PlaybackEventHandler{
		playback:   playback,
		subscriber: subscriber,
	}
}

// Start registers event handlers with the subscriber.
func (h *PlaybackEventHandler) Start() error {
	err := h.subscriber.Subscribe(
		reflect.TypeFor[domain.TrackEnqueuedEvent](),
		func(ctx context.Context, e domain.Event) {
			h.handleTrackEnqueued(ctx, e.(domain.TrackEnqueuedEvent))
		},
	)
	if err != nil {
		return err
	}

	err = h.subscriber.Subscribe(
		reflect.TypeFor[domain.TrackEndedEvent](),
		func(ctx context.Context, e domain.Event) {
			h.handleTrackEnded(ctx, e.(domain.TrackEndedEvent))
		},
	)
	if err != nil {
		return err
	}

	slog.Debug("playback event handlers properly registered")

	return nil
}

func (h *PlaybackEventHandler) handleTrackEnqueued(
	ctx context.Context,
	event domain.TrackEnqueuedEvent,
) {
	// Tracks added while playing are picked up on completion.
	if !event.WasIdle {
		return
	}

	slog.Debug("starting playback for idle guild", "guild", event.GuildID)

	if err := h.playback.Advance(ctx, event.GuildID); err != nil {
		slog.Error(
			"failed to start playback",
			"guild", event.GuildID,
			"error", err,
		)
	}
}

func (h *PlaybackEventHandler) handleTrackEnded(ctx context.Context, event domain.TrackEndedEvent) {
	slog.Debug(
		"track ended",
		"guild", event.GuildID,
		"session", event.SessionID,
		"reason", event.Reason,
	)

	if err := h.playback.HandleTrackEnded(ctx, event); err != nil {
		slog.Error(
			"failed to advance queue",
			"guild", event.GuildID,
			"error", err,
		)
	}
}

// NotificationEventHandler posts playback status messages to the guild's
// notification channel. Messages are rendered and sent off the event loop by
// per-guild workers.
type NotificationEventHandler struct {
	subscriber       ports.EventSubscriber
	notifier         ports.NotificationSender
	userInfoProvider ports.UserInfoProvider
	commandPrefix    string
	outbox           *guildOutbox
}

// NewNotificationEventHandler creates a new NotificationEventHandler.
func NewNotificationEventHandler(
	subscriber ports.EventSubscriber,
	notifier ports.NotificationSender,
	userInfoProvider ports.UserInfoProvider,
	commandPrefix string,
) *NotificationEventHandler {
	return &NotificationEventHandler{
		subscriber:       subscriber,
		notifier:         notifier,
		userInfoProvider: userInfoProvider,
		commandPrefix:    commandPrefix,
		outbox:           newGuildOutbox(),
	}
}

// Start registers event handlers with the subscriber.
func (h *NotificationEventHandler) Start() error {
	subscriptions := []struct {
		eventType reflect.Type
		handler   func(context.Context, domain.Event)
	}{
		{
			reflect.TypeFor[domain.PlaybackStartedEvent](),
			func(_ context.Context, e domain.Event) {
				h.handlePlaybackStarted(e.(domain.PlaybackStartedEvent))
			},
		},
		{
			reflect.TypeFor[domain.PlaybackFailedEvent](),
			func(_ context.Context, e domain.Event) {
				h.handlePlaybackFailed(e.(domain.PlaybackFailedEvent))
			},
		},
		{
			reflect.TypeFor[domain.PlaybackHaltedEvent](),
			func(_ context.Context, e domain.Event) {
				h.handlePlaybackHalted(e.(domain.PlaybackHaltedEvent))
			},
		},
		{
			reflect.TypeFor[domain.PlaybackInterruptedEvent](),
			func(_ context.Context, e domain.Event) {
				h.handlePlaybackInterrupted(e.(domain.PlaybackInterruptedEvent))
			},
		},
		{
			reflect.TypeFor[domain.QueueExhaustedEvent](),
			func(_ context.Context, e domain.Event) {
				h.handleQueueExhausted(e.(domain.QueueExhaustedEvent))
			},
		},
	}

	for _, sub := range subscriptions {
		if err := h.subscriber.Subscribe(sub.eventType, sub.handler); err != nil {
			return err
		}
	}

	slog.Debug("notification event handlers properly registered")

	return nil
}

// Close waits for queued notifications and rejects new ones.
func (h *NotificationEventHandler) Close() {
	h.outbox.close()
}

func (h *NotificationEventHandler) handlePlaybackStarted(event domain.PlaybackStartedEvent) {
	h.send(event.GuildID, event.NotificationChannelID, func() string {
		return fmt.Sprintf(
			"▶️ Now playing: %s (requested by %s)",
			event.Track,
			h.requesterName(event.GuildID, event.Track.RequesterID),
		)
	})
}

func (h *NotificationEventHandler) handlePlaybackFailed(event domain.PlaybackFailedEvent) {
	h.send(event.GuildID, event.NotificationChannelID, func() string {
		return fmt.Sprintf("❌ Playback error: %v", event.Err)
	})
}

func (h *NotificationEventHandler) handlePlaybackHalted(event domain.PlaybackHaltedEvent) {
	h.send(event.GuildID, event.NotificationChannelID, func() string {
		return fmt.Sprintf(
			"⏹️ Stopped after %d tracks in a row failed to play. Cleared %d songs from the queue.",
			event.ConsecutiveFailures,
			event.DroppedTracks,
		)
	})
}

func (h *NotificationEventHandler) handlePlaybackInterrupted(event domain.PlaybackInterruptedEvent) {
	h.send(event.GuildID, event.NotificationChannelID, func() string {
		return fmt.Sprintf(
			"⏹️ Playback was interrupted (%s). Cleared %d songs from the queue.",
			event.Reason,
			event.DroppedTracks,
		)
	})
}

func (h *NotificationEventHandler) handleQueueExhausted(event domain.QueueExhaustedEvent) {
	h.send(event.GuildID, event.NotificationChannelID, func() string {
		return fmt.Sprintf("🎵 Queue is empty. Use `%splay <song>` to add songs!", h.commandPrefix)
	})
}

// send renders and posts a message on the guild's worker.
func (h *NotificationEventHandler) send(guildID, channelID snowflake.ID, render func() string) {
	if channelID == 0 {
		slog.Debug("no notification channel, dropping message", "guild", guildID)
		return
	}

	queued := h.outbox.push(guildID, func() {
		if _, err := h.notifier.SendMessage(channelID, render()); err != nil {
			slog.Warn(
				"failed to send notification",
				"guild", guildID,
				"channel", channelID,
				"error", err,
			)
		}
	})
	if !queued {
		slog.Debug("notifications closed, dropping message", "guild", guildID)
	}
}

// requesterName falls back to a mention when the member cannot be resolved.
func (h *NotificationEventHandler) requesterName(guildID, userID snowflake.ID) string {
	if h.userInfoProvider != nil {
		info, err := h.userInfoProvider.GetUserInfo(guildID, userID)
		if err == nil && info.DisplayName != "" {
			return info.DisplayName
		}
	}
	return fmt.Sprintf("<@%d>", userID)
}
