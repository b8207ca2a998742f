package usecases

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/jukebot/internal/modules/music_player/domain"
)

const (
	testGuildID        snowflake.ID = 1000
	testUserID         snowflake.ID = 2000
	testOtherUserID    snowflake.ID = 2001
	testTextChannelID  snowflake.ID = 3000
	testVoiceChannelID snowflake.ID = 4000
)

func mockTrack(title string, requester snowflake.ID) domain.Track {
	return domain.NewTrack(title, "https://cdn.example/"+title, 3*time.Minute, requester)
}

// inlineScheduler runs functions directly on the calling goroutine.
type inlineScheduler struct {
	calls int
}

func (s *inlineScheduler) Run(ctx context.Context, fn func(context.Context) error) error {
	s.calls++
	return fn(ctx)
}

type mockRepository struct {
	states  map[snowflake.ID]*domain.GuildState
	deleted []snowflake.ID
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		states: make(map[snowflake.ID]*domain.GuildState),
	}
}

func (m *mockRepository) GetOrCreate(guildID snowflake.ID) *domain.GuildState {
	state, ok := m.states[guildID]
	if !ok {
		state = domain.NewGuildState(guildID)
		m.states[guildID] = state
	}
	return state
}

func (m *mockRepository) Get(guildID snowflake.ID) *domain.GuildState {
	return m.states[guildID]
}

func (m *mockRepository) Delete(guildID snowflake.ID) {
	m.deleted = append(m.deleted, guildID)
	delete(m.states, guildID)
}

// seedPlaying creates a guild state whose first track is already playing.
func (m *mockRepository) seedPlaying(
	guildID snowflake.ID,
	playing domain.Track,
	pending ...domain.Track,
) *domain.GuildState {
	limits := domain.QueueLimits{MaxQueueSize: 100, MaxUserSongs: 100}
	state := m.GetOrCreate(guildID)
	state.SetNotificationChannel(testTextChannelID)
	_, _ = state.Enqueue(playing, limits)
	for _, t := range pending {
		_, _ = state.Enqueue(t, limits)
	}
	state.MarkPlaying()
	state.Advance()
	return state
}

type mockEventPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (m *mockEventPublisher) Publish(event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

func eventsOfType[T domain.Event](m *mockEventPublisher) []T {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []T
	for _, e := range m.events {
		if typed, ok := e.(T); ok {
			result = append(result, typed)
		}
	}
	return result
}

type playCall struct {
	guildID   snowflake.ID
	sourceURL string
	opts      ports.PlayOptions
	onEnd     ports.TrackEndFunc
}

type mockAudioTransport struct {
	playErrs  []error // consumed one per Play call; nil entries succeed
	plays     []playCall
	stopErr   error
	stopCalls int
}

func (m *mockAudioTransport) Play(
	_ context.Context,
	guildID snowflake.ID,
	sourceURL string,
	opts ports.PlayOptions,
	onEnd ports.TrackEndFunc,
) error {
	var err error
	if len(m.playErrs) > 0 {
		err = m.playErrs[0]
		m.playErrs = m.playErrs[1:]
	}
	if err != nil {
		return err
	}
	m.plays = append(m.plays, playCall{
		guildID:   guildID,
		sourceURL: sourceURL,
		opts:      opts,
		onEnd:     onEnd,
	})
	return nil
}

func (m *mockAudioTransport) Stop(_ context.Context, _ snowflake.ID) error {
	m.stopCalls++
	return m.stopErr
}

func (m *mockAudioTransport) lastPlay() playCall {
	return m.plays[len(m.plays)-1]
}

type mockExtractor struct {
	info    *ports.ExtractedInfo
	err     error
	queries []string
}

func (m *mockExtractor) Extract(_ context.Context, query string) (*ports.ExtractedInfo, error) {
	m.queries = append(m.queries, query)
	if m.err != nil {
		return nil, m.err
	}
	return m.info, nil
}

type mockMetadataLookup struct {
	query string
	err   error
	links []string
}

func (m *mockMetadataLookup) ResolveTrackQuery(_ context.Context, link string) (string, error) {
	m.links = append(m.links, link)
	if m.err != nil {
		return "", m.err
	}
	return m.query, nil
}

type mockSuggester struct {
	suggestions []ports.Suggestion
	err         error
	queries     []string
}

func (m *mockSuggester) Suggest(_ context.Context, query string, _ int) ([]ports.Suggestion, error) {
	m.queries = append(m.queries, query)
	return m.suggestions, m.err
}

type mockVoiceStateProvider struct {
	channels map[snowflake.ID]snowflake.ID // userID -> channelID
	err      error
	allowed  bool
	permErr  error
}

func (m *mockVoiceStateProvider) GetUserVoiceChannel(
	_, userID snowflake.ID,
) (snowflake.ID, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.channels[userID], nil
}

func (m *mockVoiceStateProvider) CanConnectAndSpeak(_, _ snowflake.ID) (bool, error) {
	return m.allowed, m.permErr
}

type mockVoiceConnection struct {
	connected map[snowflake.ID]snowflake.ID // guildID -> channelID
	joinErr   error
	moveErr   error
	leaveErr  error
	joins     int
	moves     int
	leaves    int
	onLeave   func(guildID snowflake.ID)
}

func newMockVoiceConnection() *mockVoiceConnection {
	return &mockVoiceConnection{connected: make(map[snowflake.ID]snowflake.ID)}
}

func (m *mockVoiceConnection) ConnectedChannel(guildID snowflake.ID) (snowflake.ID, bool) {
	channelID, ok := m.connected[guildID]
	return channelID, ok
}

func (m *mockVoiceConnection) JoinChannel(_ context.Context, guildID, channelID snowflake.ID) error {
	m.joins++
	if m.joinErr != nil {
		return m.joinErr
	}
	m.connected[guildID] = channelID
	return nil
}

func (m *mockVoiceConnection) MoveChannel(_ context.Context, guildID, channelID snowflake.ID) error {
	m.moves++
	if m.moveErr != nil {
		return m.moveErr
	}
	m.connected[guildID] = channelID
	return nil
}

func (m *mockVoiceConnection) LeaveChannel(_ context.Context, guildID snowflake.ID) error {
	m.leaves++
	if m.onLeave != nil {
		m.onLeave(guildID)
	}
	delete(m.connected, guildID)
	return m.leaveErr
}
