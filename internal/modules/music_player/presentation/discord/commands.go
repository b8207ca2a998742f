package discord

import "github.com/bwmarrin/discordgo"

// Commands returns all slash commands for the music player module.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a song from a URL or search",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "query",
					Description:  "URL or search term",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:        "remove",
			Description: "Remove a song from the queue",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "position",
					Description: "Position in the queue",
					Required:    true,
					MinValue:    floatPtr(1),
				},
			},
		},
		{
			Name:        "queue",
			Description: "Show the current queue",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "page",
					Description: "Page number",
					Required:    false,
					MinValue:    floatPtr(1),
				},
			},
		},
		{
			Name:        "skip",
			Description: "Skip the current song",
		},
	}
}

func floatPtr(f float64) *float64 {
	return &f
}
