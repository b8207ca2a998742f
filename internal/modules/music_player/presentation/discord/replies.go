package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/jukebot/internal/bot"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
)

// statusReply is the single status message of a command invocation.
// The first Update posts it, later updates edit it in place.
type statusReply interface {
	Update(content string) error
}

// Replies may mention requesters but must never ping them.
var silentMentions = &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}

// interactionReply answers a slash command through its interaction response.
type interactionReply struct {
	r    bot.Responder
	sent bool
}

func newInteractionReply(r bot.Responder) *interactionReply {
	return &interactionReply{r: r}
}

func (ir *interactionReply) Update(content string) error {
	if !ir.sent {
		ir.sent = true
		return ir.r.Respond(&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:         content,
				AllowedMentions: silentMentions,
			},
		})
	}

	return ir.r.Edit(&discordgo.WebhookEdit{
		Content:         &content,
		AllowedMentions: silentMentions,
	})
}

// channelReply answers a text command with a message in the command's channel.
type channelReply struct {
	sender    ports.NotificationSender
	channelID snowflake.ID
	messageID snowflake.ID
}

func newChannelReply(sender ports.NotificationSender, channelID snowflake.ID) *channelReply {
	return &channelReply{sender: sender, channelID: channelID}
}

func (cr *channelReply) Update(content string) error {
	if cr.messageID == 0 {
		id, err := cr.sender.SendMessage(cr.channelID, content)
		if err != nil {
			return err
		}
		cr.messageID = id
		return nil
	}

	return cr.sender.EditMessage(cr.channelID, cr.messageID, content)
}
