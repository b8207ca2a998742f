package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/jukebot/internal/modules/music_player/domain"
)

const (
	testGuildID        snowflake.ID = 1000
	testUserID         snowflake.ID = 2000
	testOtherUserID    snowflake.ID = 2001
	testBotID          snowflake.ID = 2999
	testTextChannelID  snowflake.ID = 3000
	testVoiceChannelID snowflake.ID = 4000
)

var testInvocation = invocation{
	GuildID:   testGuildID,
	UserID:    testUserID,
	ChannelID: testTextChannelID,
}

type inlineScheduler struct{}

func (inlineScheduler) Run(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type mockPublisher struct {
	events []domain.Event
}

func (m *mockPublisher) Publish(event domain.Event) error {
	m.events = append(m.events, event)
	return nil
}

type mockRepository struct {
	states map[snowflake.ID]*domain.GuildState
}

func newMockRepository() *mockRepository {
	return &mockRepository{states: make(map[snowflake.ID]*domain.GuildState)}
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
	delete(m.states, guildID)
}

// seedPlaying puts the guild into Playing with the given now-playing track.
func (m *mockRepository) seedPlaying(playing domain.Track, pending ...domain.Track) {
	limits := domain.QueueLimits{MaxQueueSize: 100, MaxUserSongs: 100}
	state := m.GetOrCreate(testGuildID)
	_, _ = state.Enqueue(playing, limits)
	for _, t := range pending {
		_, _ = state.Enqueue(t, limits)
	}
	state.MarkPlaying()
	state.Advance()
}

type mockVoiceState struct {
	userChannel snowflake.ID
	allowed     bool
}

func (m *mockVoiceState) GetUserVoiceChannel(_, _ snowflake.ID) (snowflake.ID, error) {
	return m.userChannel, nil
}

func (m *mockVoiceState) CanConnectAndSpeak(_, _ snowflake.ID) (bool, error) {
	return m.allowed, nil
}

type mockVoiceConnection struct {
	connected  snowflake.ID
	joinErr    error
	joined     []snowflake.ID
	leftGuilds []snowflake.ID
}

func (m *mockVoiceConnection) ConnectedChannel(snowflake.ID) (snowflake.ID, bool) {
	return m.connected, m.connected != 0
}

func (m *mockVoiceConnection) JoinChannel(_ context.Context, _, channelID snowflake.ID) error {
	if m.joinErr != nil {
		return m.joinErr
	}
	m.joined = append(m.joined, channelID)
	m.connected = channelID
	return nil
}

func (m *mockVoiceConnection) MoveChannel(_ context.Context, _, channelID snowflake.ID) error {
	m.connected = channelID
	return nil
}

func (m *mockVoiceConnection) LeaveChannel(_ context.Context, guildID snowflake.ID) error {
	m.leftGuilds = append(m.leftGuilds, guildID)
	m.connected = 0
	return nil
}

type mockTransport struct {
	stopped []snowflake.ID
}

func (m *mockTransport) Play(
	context.Context,
	snowflake.ID,
	string,
	ports.PlayOptions,
	ports.TrackEndFunc,
) error {
	return nil
}

func (m *mockTransport) Stop(_ context.Context, guildID snowflake.ID) error {
	m.stopped = append(m.stopped, guildID)
	return nil
}

type mockExtractor struct {
	info    *ports.ExtractedInfo
	err     error
	queries []string
}

func (m *mockExtractor) Extract(_ context.Context, query string) (*ports.ExtractedInfo, error) {
	m.queries = append(m.queries, query)
	return m.info, m.err
}

type mockSuggester struct {
	suggestions []ports.Suggestion
	err         error
}

func (m *mockSuggester) Suggest(context.Context, string, int) ([]ports.Suggestion, error) {
	return m.suggestions, m.err
}

type mockMetadata struct {
	query string
	err   error
}

func (m *mockMetadata) ResolveTrackQuery(context.Context, string) (string, error) {
	return m.query, m.err
}

type mockSender struct {
	sent  []string
	edits []string
}

func (m *mockSender) SendMessage(_ snowflake.ID, content string) (snowflake.ID, error) {
	m.sent = append(m.sent, content)
	return snowflake.ID(9000 + len(m.sent)), nil
}

func (m *mockSender) EditMessage(_, _ snowflake.ID, content string) error {
	m.edits = append(m.edits, content)
	return nil
}

// recordingReply records every status update.
type recordingReply struct {
	updates []string
}

func (r *recordingReply) Update(content string) error {
	r.updates = append(r.updates, content)
	return nil
}

func (r *recordingReply) last() string {
	if len(r.updates) == 0 {
		return ""
	}
	return r.updates[len(r.updates)-1]
}

// testEnv wires real use case services to in-memory fakes.
type testEnv struct {
	repo       *mockRepository
	publisher  *mockPublisher
	voiceState *mockVoiceState
	voiceConn  *mockVoiceConnection
	transport  *mockTransport
	extractor  *mockExtractor
	suggester  *mockSuggester
	metadata   *mockMetadata
	handlers   *CommandHandlers
	resolver   *usecases.TrackResolverService
	voice      *usecases.VoiceChannelService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:       newMockRepository(),
		publisher:  &mockPublisher{},
		voiceState: &mockVoiceState{userChannel: testVoiceChannelID, allowed: true},
		voiceConn:  &mockVoiceConnection{},
		transport:  &mockTransport{},
		extractor: &mockExtractor{info: &ports.ExtractedInfo{
			Title:    "Song A",
			URL:      "https://cdn.example/a",
			Duration: 3 * time.Minute,
		}},
		suggester: &mockSuggester{},
		metadata:  &mockMetadata{},
	}

	playback := usecases.NewPlaybackService(
		env.repo,
		inlineScheduler{},
		env.transport,
		env.publisher,
		usecases.PlaybackConfig{},
	)
	queue := usecases.NewQueueService(
		env.repo,
		inlineScheduler{},
		env.publisher,
		domain.QueueLimits{MaxQueueSize: 3, MaxUserSongs: 2},
	)
	env.resolver = usecases.NewTrackResolverService(
		env.extractor,
		env.metadata,
		env.suggester,
		usecases.ResolverConfig{},
	)
	env.voice = usecases.NewVoiceChannelService(env.voiceState, env.voiceConn, playback)
	env.handlers = NewCommandHandlers(env.voice, playback, queue, env.resolver, "!")

	return env
}

func testTrack(title string, requester snowflake.ID) domain.Track {
	return domain.NewTrack(title, "https://cdn.example/"+title, 3*time.Minute, requester)
}

// slashCommand builds a guild slash command interaction.
func slashCommand(
	name string,
	options ...*discordgo.ApplicationCommandInteractionDataOption,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:      discordgo.InteractionApplicationCommand,
			GuildID:   testGuildID.String(),
			ChannelID: testTextChannelID.String(),
			Member: &discordgo.Member{
				User: &discordgo.User{ID: testUserID.String()},
			},
			Data: discordgo.ApplicationCommandInteractionData{
				Name:    name,
				Options: options,
			},
		},
	}
}
