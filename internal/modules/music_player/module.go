package music_player

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/jukebot/internal/bot"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/jukebot/internal/modules/music_player/domain"
	"github.com/sglre6355/jukebot/internal/modules/music_player/infrastructure"
	"github.com/sglre6355/jukebot/internal/modules/music_player/presentation/discord"
)

func init() {
	bot.Register(&MusicPlayerModule{})
}

// Compile-time interface checks.
var (
	_ bot.ConfigurableModule = (*MusicPlayerModule)(nil)
	_ bot.IntentsModule      = (*MusicPlayerModule)(nil)
)

// audioBackend streams audio and manages the voice connection of a guild.
type audioBackend interface {
	ports.AudioTransport
	ports.VoiceConnection
}

// MusicPlayerModule provides music playback commands.
type MusicPlayerModule struct {
	config          *Config
	commandHandlers *discord.CommandHandlers
	textCommands    *discord.TextCommandHandler
	autocomplete    *discord.AutocompleteHandler
	eventHandlers   *discord.EventHandlers
	lavalinkAdapter *infrastructure.LavalinkAdapter
	voiceTransport  *infrastructure.VoiceTransport

	// Event-driven components
	eventLoop           *infrastructure.EventLoop
	playbackHandler     *application.PlaybackEventHandler
	notificationHandler *application.NotificationEventHandler
}

// Name returns the module name.
func (m *MusicPlayerModule) Name() string {
	return "music_player"
}

// Intents requests message content for prefix commands.
func (m *MusicPlayerModule) Intents() discordgo.Intent {
	return discordgo.IntentGuildMessages | discordgo.IntentMessageContent
}

// Commands returns the slash commands for this module.
func (m *MusicPlayerModule) Commands() []*discordgo.ApplicationCommand {
	return discord.Commands()
}

// CommandHandlers returns the command handlers for this module.
func (m *MusicPlayerModule) CommandHandlers() map[string]bot.InteractionHandler {
	return map[string]bot.InteractionHandler{
		"play":   m.commandHandlers.HandlePlay,
		"remove": m.commandHandlers.HandleRemove,
		"queue":  m.commandHandlers.HandleQueue,
		"skip":   m.commandHandlers.HandleSkip,
	}
}

// EventHandlers returns the event handlers for this module.
func (m *MusicPlayerModule) EventHandlers() []bot.EventHandler {
	return []bot.EventHandler{
		func(s *discordgo.Session, event *discordgo.VoiceServerUpdate) {
			m.handleVoiceServerUpdate(s, event)
		},
		func(s *discordgo.Session, event *discordgo.VoiceStateUpdate) {
			m.handleVoiceStateUpdate(s, event)
		},
		func(s *discordgo.Session, event *discordgo.GuildDelete) {
			m.eventHandlers.HandleGuildDelete(s, event)
		},
		func(s *discordgo.Session, event *discordgo.MessageCreate) {
			m.textCommands.HandleMessageCreate(s, event)
		},
		func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			m.handleInteractionCreate(s, i)
		},
	}
}

// LoadConfig loads module-specific configuration from environment variables.
func (m *MusicPlayerModule) LoadConfig() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	m.config = cfg
	return nil
}

// Init initializes the module.
func (m *MusicPlayerModule) Init(deps bot.ModuleDependencies) error {
	if deps.Session == nil || deps.Session.State == nil || deps.Session.State.User == nil {
		return errors.New("music_player requires a ready Discord session")
	}

	botID, err := snowflake.Parse(deps.Session.State.User.ID)
	if err != nil {
		return err
	}

	m.eventLoop = infrastructure.NewEventLoop(infrastructure.DefaultEventBufferSize)

	var (
		backend   audioBackend
		extractor ports.Extractor
		suggester ports.SearchSuggester
	)
	switch m.config.Backend {
	case BackendLavalink:
		m.lavalinkAdapter, err = infrastructure.NewLavalinkAdapter(
			context.Background(),
			deps.Session,
			infrastructure.LavalinkConfig{
				Address:  m.config.LavalinkAddress,
				Password: m.config.LavalinkPassword,
				Secure:   m.config.LavalinkSecure,
			},
		)
		if err != nil {
			m.eventLoop.Close()
			return err
		}
		backend = m.lavalinkAdapter
		extractor = m.lavalinkAdapter
		suggester = m.lavalinkAdapter
	default:
		m.voiceTransport = infrastructure.NewVoiceTransport(deps.Session, m.config.FFmpegPath)
		ytdlp := infrastructure.NewYtdlpExtractor(infrastructure.YtdlpConfig{
			SocketTimeout: m.config.YtdlpSocketTimeout,
			Retries:       m.config.YtdlpRetries,
			Proxy:         m.config.YtdlpProxy,
		})
		backend = m.voiceTransport
		extractor = ytdlp
		suggester = ytdlp
	}

	var metadata ports.TrackMetadataLookup
	if m.config.SpotifyEnabled() {
		metadata = infrastructure.NewSpotifyClient(infrastructure.SpotifyConfig{
			ClientID:     m.config.SpotifyClientID,
			ClientSecret: m.config.SpotifyClientSecret,
		})
	}

	// Create infrastructure
	repo := infrastructure.NewMemoryRepository()
	voiceState := infrastructure.NewVoiceStateProvider(deps.Session)
	userInfoProv := infrastructure.NewDiscordUserInfoProvider(deps.Session)
	notifier := infrastructure.NewNotifier(deps.Session)

	// Create services on the event loop
	playback := usecases.NewPlaybackService(
		repo,
		m.eventLoop,
		backend,
		m.eventLoop,
		usecases.PlaybackConfig{
			PlayOptions: ports.PlayOptions{
				ReconnectAttempts: m.config.ReconnectAttempts,
				ReconnectDelayMax: m.config.ReconnectDelayMax,
				NoVideo:           true,
			},
			MaxConsecutiveSkips: m.config.MaxConsecutiveSkips,
			StartTimeout:        m.config.StartTimeout,
		},
	)
	queue := usecases.NewQueueService(
		repo,
		m.eventLoop,
		m.eventLoop,
		domain.QueueLimits{
			MaxQueueSize: m.config.MaxQueueSize,
			MaxUserSongs: m.config.MaxUserSongs,
		},
	)
	resolver := usecases.NewTrackResolverService(
		extractor,
		metadata,
		suggester,
		usecases.ResolverConfig{
			Timeout:                  m.config.ResolveTimeout,
			MaxConcurrentExtractions: m.config.MaxConcurrentExtractions,
		},
	)
	voiceChannel := usecases.NewVoiceChannelService(voiceState, backend, playback)

	// Create application event handlers
	m.playbackHandler = application.NewPlaybackEventHandler(playback, m.eventLoop)
	m.notificationHandler = application.NewNotificationEventHandler(
		m.eventLoop,
		notifier,
		userInfoProv,
		m.config.CommandPrefix,
	)

	// Register event handlers
	if err := m.playbackHandler.Start(); err != nil {
		return err
	}
	if err := m.notificationHandler.Start(); err != nil {
		return err
	}

	// Create presentation handlers
	m.commandHandlers = discord.NewCommandHandlers(
		voiceChannel,
		playback,
		queue,
		resolver,
		m.config.CommandPrefix,
	)
	m.textCommands = discord.NewTextCommandHandler(
		m.commandHandlers,
		notifier,
		m.config.CommandPrefix,
		botID,
	)
	m.autocomplete = discord.NewAutocompleteHandler(resolver)
	m.eventHandlers = discord.NewEventHandlers(botID, voiceChannel)

	slog.Info("initialized music_player module",
		"backend", m.config.Backend,
		"spotify", metadata != nil,
		"prefix", m.config.CommandPrefix,
	)

	return nil
}

// Shutdown cleans up module resources.
func (m *MusicPlayerModule) Shutdown() error {
	// Close the loop first so no new playback is started
	if m.eventLoop != nil {
		m.eventLoop.Close()
	}

	if m.notificationHandler != nil {
		m.notificationHandler.Close()
	}

	if m.voiceTransport != nil {
		m.voiceTransport.Close()
	}

	// Close Lavalink connection
	if m.lavalinkAdapter != nil {
		m.lavalinkAdapter.Close()
	}

	return nil
}

// Event handlers.

func (m *MusicPlayerModule) handleVoiceServerUpdate(
	_ *discordgo.Session,
	event *discordgo.VoiceServerUpdate,
) {
	if m.lavalinkAdapter != nil {
		m.lavalinkAdapter.OnVoiceServerUpdate(event)
	}
}

func (m *MusicPlayerModule) handleVoiceStateUpdate(
	s *discordgo.Session,
	event *discordgo.VoiceStateUpdate,
) {
	if m.lavalinkAdapter != nil {
		m.lavalinkAdapter.OnVoiceStateUpdate(event)
	}
	if m.eventHandlers != nil {
		m.eventHandlers.HandleVoiceStateUpdate(s, event)
	}
}

func (m *MusicPlayerModule) handleInteractionCreate(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	if i.Type != discordgo.InteractionApplicationCommandAutocomplete {
		return
	}

	if i.ApplicationCommandData().Name != "play" {
		return
	}

	r := bot.NewDiscordResponder(s, i.Interaction)
	if err := m.autocomplete.HandlePlay(i, r); err != nil {
		slog.Debug("failed to respond to autocomplete", "error", err)
	}
}
