package bot

import "github.com/bwmarrin/discordgo"

// Responder provides an abstraction for responding to Discord interactions.
// This interface enables testing handlers without a live Discord connection.
type Responder interface {
	// Respond sends a response to an interaction.
	Respond(response *discordgo.InteractionResponse) error

	// Edit replaces the content of a previously sent or deferred response.
	Edit(edit *discordgo.WebhookEdit) error
}

// DiscordResponder implements Responder using a live Discord session.
type DiscordResponder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
}

// NewDiscordResponder creates a new DiscordResponder.
func NewDiscordResponder(s *discordgo.Session, i *discordgo.Interaction) *DiscordResponder {
	return &DiscordResponder{
		session:     s,
		interaction: i,
	}
}

// Respond sends a response to the interaction via Discord API.
func (r *DiscordResponder) Respond(response *discordgo.InteractionResponse) error {
	return r.session.InteractionRespond(r.interaction, response)
}

// Edit edits the original interaction response via Discord API.
func (r *DiscordResponder) Edit(edit *discordgo.WebhookEdit) error {
	_, err := r.session.InteractionResponseEdit(r.interaction, edit)
	return err
}

// MockResponder is a test double for Responder.
type MockResponder struct {
	Responses []*discordgo.InteractionResponse
	Edits     []*discordgo.WebhookEdit
	Err       error
}

// Respond records the response for testing.
func (m *MockResponder) Respond(response *discordgo.InteractionResponse) error {
	m.Responses = append(m.Responses, response)
	return m.Err
}

// Edit records the edit for testing.
func (m *MockResponder) Edit(edit *discordgo.WebhookEdit) error {
	m.Edits = append(m.Edits, edit)
	return m.Err
}

// LastResponse returns the most recent response, or nil if none was sent.
func (m *MockResponder) LastResponse() *discordgo.InteractionResponse {
	if len(m.Responses) == 0 {
		return nil
	}
	return m.Responses[len(m.Responses)-1]
}

// LastEdit returns the most recent edit, or nil if none was made.
func (m *MockResponder) LastEdit() *discordgo.WebhookEdit {
	if len(m.Edits) == 0 {
		return nil
	}
	return m.Edits[len(m.Edits)-1]
}
