package usecases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/jukebot/internal/modules/music_player/domain"
)

func newTestPlaybackService(
	repo *mockRepository,
	transport *mockAudioTransport,
	publisher *mockEventPublisher,
	maxSkips int,
) *PlaybackService {
	return NewPlaybackService(repo, &inlineScheduler{}, transport, publisher, PlaybackConfig{
		PlayOptions: ports.PlayOptions{
			ReconnectAttempts: 5,
			ReconnectDelayMax: 5 * time.Second,
			NoVideo:           true,
		},
		MaxConsecutiveSkips: maxSkips,
		StartTimeout:        time.Second,
	})
}

// enqueueIdle enqueues tracks into an idle guild the way QueueService does.
func enqueueIdle(repo *mockRepository, tracks ...domain.Track) *domain.GuildState {
	state := repo.GetOrCreate(testGuildID)
	state.SetNotificationChannel(testTextChannelID)
	limits := domain.QueueLimits{MaxQueueSize: 100, MaxUserSongs: 100}
	for _, t := range tracks {
		_, _ = state.Enqueue(t, limits)
	}
	state.MarkPlaying()
	return state
}

func TestPlaybackService_Advance_StartsHead(t *testing.T) {
	repo := newMockRepository()
	state := enqueueIdle(repo, mockTrack("A", testUserID), mockTrack("B", testUserID))
	transport := &mockAudioTransport{}
	publisher := &mockEventPublisher{}
	service := newTestPlaybackService(repo, transport, publisher, 5)

	if err := service.Advance(context.Background(), testGuildID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(transport.plays) != 1 {
		t.Fatalf("expected 1 play call, got %d", len(transport.plays))
	}
	play := transport.lastPlay()
	if play.sourceURL != "https://cdn.example/A" {
		t.Errorf("expected to play A, got %q", play.sourceURL)
	}
	if !play.opts.NoVideo || play.opts.ReconnectAttempts != 5 {
		t.Errorf("expected play options to be passed through, got %+v", play.opts)
	}
	if np := state.NowPlaying(); np == nil || np.Title != "A" {
		t.Errorf("expected now playing A, got %v", np)
	}

	started := eventsOfType[domain.PlaybackStartedEvent](publisher)
	if len(started) != 1 || started[0].Track.Title != "A" {
		t.Errorf("expected PlaybackStartedEvent for A, got %+v", started)
	}
	if started[0].NotificationChannelID != testTextChannelID {
		t.Error("expected notification channel on event")
	}
}

func TestPlaybackService_CompletionDrainsQueueInOrder(t *testing.T) {
	repo := newMockRepository()
	want := []string{"one", "two", "three"}
	var tracks []domain.Track
	for _, title := range want {
		tracks = append(tracks, mockTrack(title, testUserID))
	}
	state := enqueueIdle(repo, tracks...)
	transport := &mockAudioTransport{}
	publisher := &mockEventPublisher{}
	service := newTestPlaybackService(repo, transport, publisher, 5)

	if err := service.Advance(context.Background(), testGuildID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Simulate each session completing immediately.
	for range want {
		transport.lastPlay().onEnd(domain.TrackEndFinished, nil)
		ended := eventsOfType[domain.TrackEndedEvent](publisher)
		if err := service.HandleTrackEnded(context.Background(), ended[len(ended)-1]); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	var got []string
	for _, e := range eventsOfType[domain.PlaybackStartedEvent](publisher) {
		got = append(got, e.Track.Title)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d tracks played, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected play order %v, got %v", want, got)
			break
		}
	}

	if len(eventsOfType[domain.QueueExhaustedEvent](publisher)) != 1 {
		t.Error("expected one QueueExhaustedEvent")
	}
	if state.IsPlaying() {
		t.Error("expected guild to be idle after draining")
	}
}

func TestPlaybackService_HandleTrackEnded_IgnoresStaleSession(t *testing.T) {
	repo := newMockRepository()
	state := enqueueIdle(repo, mockTrack("A", testUserID), mockTrack("B", testUserID))
	transport := &mockAudioTransport{}
	publisher := &mockEventPublisher{}
	service := newTestPlaybackService(repo, transport, publisher, 5)

	_ = service.Advance(context.Background(), testGuildID)

	err := service.HandleTrackEnded(context.Background(), domain.TrackEndedEvent{
		GuildID:   testGuildID,
		SessionID: state.SessionID() - 1,
		Reason:    domain.TrackEndFinished,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(transport.plays) != 1 {
		t.Errorf("expected stale completion not to advance, got %d plays", len(transport.plays))
	}
	if np := state.NowPlaying(); np == nil || np.Title != "A" {
		t.Errorf("expected A to still be playing, got %v", np)
	}
}

func TestPlaybackService_HandleTrackEnded_CleanupGoesIdle(t *testing.T) {
	repo := newMockRepository()
	state := enqueueIdle(repo, mockTrack("A", testUserID), mockTrack("B", testUserID))
	transport := &mockAudioTransport{}
	publisher := &mockEventPublisher{}
	service := newTestPlaybackService(repo, transport, publisher, 5)

	_ = service.Advance(context.Background(), testGuildID)

	_ = service.HandleTrackEnded(context.Background(), domain.TrackEndedEvent{
		GuildID:   testGuildID,
		SessionID: state.SessionID(),
		Reason:    domain.TrackEndCleanup,
	})

	if state.IsPlaying() {
		t.Error("expected guild to go idle after the player was torn down")
	}
	if len(transport.plays) != 1 {
		t.Errorf("expected no further playback, got %d plays", len(transport.plays))
	}

	interrupted := eventsOfType[domain.PlaybackInterruptedEvent](publisher)
	if len(interrupted) != 1 {
		t.Fatalf("expected 1 interruption event, got %d", len(interrupted))
	}
	if interrupted[0].DroppedTracks != 1 || interrupted[0].Reason != domain.TrackEndCleanup {
		t.Errorf("unexpected interruption event %+v", interrupted[0])
	}
	if interrupted[0].NotificationChannelID != testTextChannelID {
		t.Errorf("expected channel %d, got %d", testTextChannelID, interrupted[0].NotificationChannelID)
	}
}

func TestPlaybackService_HandleTrackEnded_ErrorStillAdvances(t *testing.T) {
	repo := newMockRepository()
	state := enqueueIdle(repo, mockTrack("A", testUserID), mockTrack("B", testUserID))
	transport := &mockAudioTransport{}
	service := newTestPlaybackService(repo, transport, &mockEventPublisher{}, 5)

	_ = service.Advance(context.Background(), testGuildID)
	_ = service.HandleTrackEnded(context.Background(), domain.TrackEndedEvent{
		GuildID:   testGuildID,
		SessionID: state.SessionID(),
		Reason:    domain.TrackEndLoadFailed,
		Err:       errors.New("HTTP error 403 Forbidden"),
	})

	if np := state.NowPlaying(); np == nil || np.Title != "B" {
		t.Errorf("expected B to play after a failed stream, got %v", np)
	}
}

func TestPlaybackService_Advance_SkipsTracksThatFailToStart(t *testing.T) {
	repo := newMockRepository()
	state := enqueueIdle(repo,
		mockTrack("broken", testUserID),
		mockTrack("good", testUserID),
	)
	transport := &mockAudioTransport{playErrs: []error{errors.New("ffmpeg not found")}}
	publisher := &mockEventPublisher{}
	service := newTestPlaybackService(repo, transport, publisher, 5)

	_ = service.Advance(context.Background(), testGuildID)

	failed := eventsOfType[domain.PlaybackFailedEvent](publisher)
	if len(failed) != 1 || failed[0].Track.Title != "broken" {
		t.Errorf("expected PlaybackFailedEvent for broken track, got %+v", failed)
	}
	if np := state.NowPlaying(); np == nil || np.Title != "good" {
		t.Errorf("expected to skip to the next track, got %v", np)
	}
	if !state.IsPlaying() {
		t.Error("expected guild to be playing")
	}
}

func TestPlaybackService_Advance_StartFailureOnLastTrackGoesIdle(t *testing.T) {
	repo := newMockRepository()
	state := enqueueIdle(repo, mockTrack("broken", testUserID))
	transport := &mockAudioTransport{playErrs: []error{errors.New("rejected")}}
	publisher := &mockEventPublisher{}
	service := newTestPlaybackService(repo, transport, publisher, 5)

	_ = service.Advance(context.Background(), testGuildID)

	if state.IsPlaying() {
		t.Error("expected guild to be idle")
	}
	if len(eventsOfType[domain.QueueExhaustedEvent](publisher)) != 1 {
		t.Error("expected QueueExhaustedEvent")
	}
}

func TestPlaybackService_Advance_BoundsConsecutiveSkips(t *testing.T) {
	repo := newMockRepository()
	var tracks []domain.Track
	for range 6 {
		tracks = append(tracks, mockTrack("t", testUserID))
	}
	state := enqueueIdle(repo, tracks...)

	failure := errors.New("transport down")
	transport := &mockAudioTransport{playErrs: []error{failure, failure, failure, failure, failure, failure}}
	publisher := &mockEventPublisher{}
	service := newTestPlaybackService(repo, transport, publisher, 3)

	_ = service.Advance(context.Background(), testGuildID)

	if got := len(eventsOfType[domain.PlaybackFailedEvent](publisher)); got != 3 {
		t.Errorf("expected 3 start attempts, got %d", got)
	}

	halted := eventsOfType[domain.PlaybackHaltedEvent](publisher)
	if len(halted) != 1 {
		t.Fatalf("expected one PlaybackHaltedEvent, got %d", len(halted))
	}
	if halted[0].DroppedTracks != 3 {
		t.Errorf("expected 3 dropped tracks, got %d", halted[0].DroppedTracks)
	}
	if state.IsPlaying() || state.PendingLen() != 0 {
		t.Error("expected guild to be idle with an empty queue")
	}
}

func TestPlaybackService_Advance_SuccessResetsFailureCount(t *testing.T) {
	repo := newMockRepository()
	state := enqueueIdle(repo,
		mockTrack("bad1", testUserID),
		mockTrack("good", testUserID),
		mockTrack("bad2", testUserID),
		mockTrack("bad3", testUserID),
		mockTrack("last", testUserID),
	)
	failure := errors.New("flaky")
	transport := &mockAudioTransport{playErrs: []error{failure, nil, failure, failure}}
	publisher := &mockEventPublisher{}
	service := newTestPlaybackService(repo, transport, publisher, 3)

	_ = service.Advance(context.Background(), testGuildID)
	transport.lastPlay().onEnd(domain.TrackEndFinished, nil)
	ended := eventsOfType[domain.TrackEndedEvent](publisher)
	_ = service.HandleTrackEnded(context.Background(), ended[0])

	if len(eventsOfType[domain.PlaybackHaltedEvent](publisher)) != 0 {
		t.Error("expected failures to be counted per streak, not in total")
	}
	if np := state.NowPlaying(); np == nil || np.Title != "last" {
		t.Errorf("expected last track to play, got %v", np)
	}
}

func TestPlaybackService_Skip(t *testing.T) {
	repo := newMockRepository()
	repo.seedPlaying(testGuildID, mockTrack("A", testUserID), mockTrack("B", testUserID))
	transport := &mockAudioTransport{}
	service := newTestPlaybackService(repo, transport, &mockEventPublisher{}, 5)

	output, err := service.Skip(context.Background(), SkipInput{GuildID: testGuildID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output.SkippedTrack.Title != "A" {
		t.Errorf("expected to skip A, got %q", output.SkippedTrack.Title)
	}
	if transport.stopCalls != 1 {
		t.Errorf("expected transport to be stopped once, got %d", transport.stopCalls)
	}
}

func TestPlaybackService_Skip_NotPlaying(t *testing.T) {
	repo := newMockRepository()
	repo.GetOrCreate(testGuildID)
	transport := &mockAudioTransport{}
	service := newTestPlaybackService(repo, transport, &mockEventPublisher{}, 5)

	_, err := service.Skip(context.Background(), SkipInput{GuildID: testGuildID})
	if !errors.Is(err, ErrNotPlaying) {
		t.Errorf("expected ErrNotPlaying, got %v", err)
	}
	if transport.stopCalls != 0 {
		t.Error("expected transport not to be stopped")
	}
}

func TestPlaybackService_Release(t *testing.T) {
	repo := newMockRepository()
	repo.seedPlaying(testGuildID, mockTrack("A", testUserID), mockTrack("B", testUserID))
	transport := &mockAudioTransport{}
	service := newTestPlaybackService(repo, transport, &mockEventPublisher{}, 5)

	if err := service.Release(context.Background(), testGuildID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.Get(testGuildID) != nil {
		t.Error("expected guild state to be evicted")
	}
	if transport.stopCalls != 1 {
		t.Errorf("expected transport to be stopped, got %d calls", transport.stopCalls)
	}
}
