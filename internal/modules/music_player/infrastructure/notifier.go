package infrastructure

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
)

// messageAPI is the subset of *discordgo.Session used by Notifier.
type messageAPI interface {
	ChannelMessageSendComplex(
		channelID string,
		data *discordgo.MessageSend,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
	ChannelMessageEditComplex(
		m *discordgo.MessageEdit,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
}

// Status messages may contain user mentions but must never ping anyone.
var silentMentions = &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}

// Notifier sends plain-text status messages to Discord channels.
type Notifier struct {
	api messageAPI
}

// NewNotifier creates a new Notifier.
func NewNotifier(session *discordgo.Session) *Notifier {
	return &Notifier{api: session}
}

// SendMessage posts a message to the channel and returns its ID.
func (n *Notifier) SendMessage(channelID snowflake.ID, content string) (snowflake.ID, error) {
	msg, err := n.api.ChannelMessageSendComplex(channelID.String(), &discordgo.MessageSend{
		Content:         content,
		AllowedMentions: silentMentions,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to send message: %w", err)
	}

	messageID, err := snowflake.Parse(msg.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to parse message ID: %w", err)
	}
	return messageID, nil
}

// EditMessage replaces the content of a previously sent message.
func (n *Notifier) EditMessage(channelID, messageID snowflake.ID, content string) error {
	edit := discordgo.NewMessageEdit(channelID.String(), messageID.String()).SetContent(content)
	edit.AllowedMentions = silentMentions

	if _, err := n.api.ChannelMessageEditComplex(edit); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

// Ensure Notifier implements ports.NotificationSender.
var _ ports.NotificationSender = (*Notifier)(nil)
