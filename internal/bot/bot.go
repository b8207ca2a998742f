package bot

import (
	"fmt"
	"log/slog"
	"maps"

	"github.com/bwmarrin/discordgo"
)

// defaultIntents are requested for every session; modules may add more via IntentsModule.
const defaultIntents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

// Bot manages the Discord bot lifecycle and module coordination.
type Bot struct {
	config   *Config
	session  *discordgo.Session
	modules  []Module
	handlers map[string]InteractionHandler
}

// NewBot creates a new Bot instance with the given configuration.
func NewBot(cfg *Config) *Bot {
	return &Bot{
		config:   cfg,
		modules:  make([]Module, 0),
		handlers: make(map[string]InteractionHandler),
	}
}

// LoadModules loads modules from the global registry.
func (b *Bot) LoadModules() {
	b.modules = Modules()
}

// Start initializes the bot, connects to Discord, and registers commands.
func (b *Bot) Start() error {
	// Module configuration is validated before anything touches the network.
	if err := b.loadModuleConfigs(); err != nil {
		return fmt.Errorf("failed to load module config: %w", err)
	}

	session, err := discordgo.New("Bot " + b.config.DiscordToken)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = b.collectIntents()
	b.session = session

	// Modules need the bot user from the ready state, so open first.
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	if err := b.initModules(); err != nil {
		return fmt.Errorf("failed to initialize modules: %w", err)
	}

	b.buildHandlerMap()
	b.session.AddHandler(b.handleInteraction)
	b.registerEventHandlers()

	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	slog.Info("started bot",
		"user_id", b.session.State.User.ID,
		"username", b.session.State.User.Username,
	)

	return nil
}

// Stop gracefully shuts down the bot.
func (b *Bot) Stop() error {
	for _, mod := range b.modules {
		if err := mod.Shutdown(); err != nil {
			slog.Warn("failed to shutdown module", "module", mod.Name(), "error", err)
		}
	}

	if b.session != nil {
		return b.session.Close()
	}

	return nil
}

// loadModuleConfigs calls LoadConfig on every module that implements ConfigurableModule.
func (b *Bot) loadModuleConfigs() error {
	for _, mod := range b.modules {
		configurable, ok := mod.(ConfigurableModule)
		if !ok {
			continue
		}
		if err := configurable.LoadConfig(); err != nil {
			return fmt.Errorf("%s: %w", mod.Name(), err)
		}
		slog.Debug("loaded module config", "module", mod.Name())
	}
	return nil
}

// collectIntents merges the default intents with those requested by modules.
func (b *Bot) collectIntents() discordgo.Intent {
	intents := discordgo.Intent(defaultIntents)
	for _, mod := range b.modules {
		if im, ok := mod.(IntentsModule); ok {
			intents |= im.Intents()
		}
	}
	return intents
}

// initModules initializes all loaded modules.
func (b *Bot) initModules() error {
	deps := ModuleDependencies{
		Session: b.session,
		Config:  b.config,
	}

	for _, mod := range b.modules {
		if err := mod.Init(deps); err != nil {
			return fmt.Errorf("failed to initialize %s module: %w", mod.Name(), err)
		}
		slog.Debug("initialized module", "module", mod.Name())
	}

	moduleNames := make([]string, len(b.modules))
	for i, mod := range b.modules {
		moduleNames[i] = mod.Name()
	}
	slog.Info("initialized modules", "modules", moduleNames)

	return nil
}

// buildHandlerMap builds the command name to handler mapping.
func (b *Bot) buildHandlerMap() {
	for _, mod := range b.modules {
		maps.Copy(b.handlers, mod.CommandHandlers())
	}
}

// registerEventHandlers registers all module event handlers with the session.
func (b *Bot) registerEventHandlers() {
	for _, mod := range b.modules {
		for _, handler := range mod.EventHandlers() {
			b.session.AddHandler(handler)
		}
	}
}

// collectCommands gathers all commands from loaded modules.
func (b *Bot) collectCommands() []*discordgo.ApplicationCommand {
	var commands []*discordgo.ApplicationCommand
	for _, mod := range b.modules {
		commands = append(commands, mod.Commands()...)
	}
	return commands
}

// registerCommands registers all module commands with Discord.
func (b *Bot) registerCommands() error {
	commands := b.collectCommands()

	for _, cmd := range commands {
		_, err := b.session.ApplicationCommandCreate(
			b.session.State.User.ID,
			"", // Empty string registers commands globally
			cmd,
		)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		slog.Debug("registered command", "command", cmd.Name)
	}

	return nil
}

// Fallback replies for interactions no module handled.
const (
	msgUnknownCommand = "❓ This command is not recognized."
	msgCommandFailed  = "❌ An error occurred while processing your command."
)

// handleInteraction routes incoming interactions to the appropriate handler.
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	cmdName := i.ApplicationCommandData().Name
	handler, ok := b.handlers[cmdName]
	if !ok {
		slog.Warn("found no handler for command", "command", cmdName)
		respondFallback(NewDiscordResponder(s, i.Interaction), false, msgUnknownCommand)
		return
	}

	responder := &trackingResponder{Responder: NewDiscordResponder(s, i.Interaction)}
	if err := handler(s, i, responder); err != nil {
		slog.Error("failed to handle command", "command", cmdName, "error", err)
		respondFallback(responder, responder.responded, msgCommandFailed)
	}
}

// trackingResponder remembers whether the interaction was already answered.
type trackingResponder struct {
	Responder
	responded bool
}

func (r *trackingResponder) Respond(response *discordgo.InteractionResponse) error {
	err := r.Responder.Respond(response)
	if err == nil {
		r.responded = true
	}
	return err
}

// respondFallback answers an interaction with a short ephemeral message, or
// edits the existing answer when one was already sent.
func respondFallback(r Responder, responded bool, content string) {
	var err error
	if responded {
		err = r.Edit(&discordgo.WebhookEdit{Content: &content})
	} else {
		err = r.Respond(&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: content,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
	}
	if err != nil {
		slog.Error("failed to send fallback response", "error", err)
	}
}
