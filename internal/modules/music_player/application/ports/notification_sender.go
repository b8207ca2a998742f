package ports

import (
	"github.com/disgoorg/snowflake/v2"
)

// NotificationSender posts plain-text status messages to text channels.
type NotificationSender interface {
	// SendMessage posts a message and returns its ID.
	SendMessage(channelID snowflake.ID, content string) (snowflake.ID, error)

	// EditMessage replaces the content of a previously sent message.
	EditMessage(channelID, messageID snowflake.ID, content string) error
}
