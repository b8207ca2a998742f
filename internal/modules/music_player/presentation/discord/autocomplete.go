package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sglre6355/jukebot/internal/bot"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/usecases"
)

// Discord limits for autocomplete choices.
const (
	maxChoices          = 25
	maxChoiceNameLength = 100
	maxChoiceValueBytes = 100
	minAutocompleteLen  = 2
)

// Discord drops autocomplete responses that take longer than three seconds.
const autocompleteTimeout = 2500 * time.Millisecond

// AutocompleteHandler handles autocomplete requests.
type AutocompleteHandler struct {
	resolver *usecases.TrackResolverService
}

// NewAutocompleteHandler creates a new AutocompleteHandler.
func NewAutocompleteHandler(resolver *usecases.TrackResolverService) *AutocompleteHandler {
	return &AutocompleteHandler{resolver: resolver}
}

// HandlePlay handles autocomplete for the play command.
func (h *AutocompleteHandler) HandlePlay(i *discordgo.InteractionCreate, r bot.Responder) error {
	var query string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "query" && opt.Focused {
			query = opt.StringValue()
			break
		}
	}

	// Don't search for very short queries
	if len([]rune(query)) < minAutocompleteLen {
		return respondChoices(r, nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), autocompleteTimeout)
	defer cancel()

	output, err := h.resolver.Suggest(ctx, usecases.SuggestInput{
		Query: query,
		Limit: maxChoices,
	})
	if err != nil {
		slog.Debug("failed to fetch suggestions", "query", query, "error", err)
		return respondChoices(r, nil)
	}

	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(output.Suggestions))
	for _, s := range output.Suggestions {
		// Values longer than Discord allows are offered by title instead.
		value := s.URL
		if value == "" || len(value) > maxChoiceValueBytes {
			value = truncate(s.Title, maxChoiceValueBytes)
		}

		name := "🎵 " + s.Title
		if s.Duration > 0 {
			total := int(s.Duration.Seconds())
			name = fmt.Sprintf("%s (%d:%02d)", name, total/60, total%60)
		}

		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  truncate(name, maxChoiceNameLength),
			Value: value,
		})
		if len(choices) == maxChoices {
			break
		}
	}

	return respondChoices(r, choices)
}

func respondChoices(r bot.Responder, choices []*discordgo.ApplicationCommandOptionChoice) error {
	if choices == nil {
		choices = []*discordgo.ApplicationCommandOptionChoice{}
	}

	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{
			Choices: choices,
		},
	})
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
