package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// DefaultTrackTitle is used when the extractor does not report a title.
const DefaultTrackTitle = "Unknown Title"

// Track represents a resolved, playable audio track.
// A Track is created once per successful resolution and never mutated afterwards.
type Track struct {
	Title       string
	SourceURL   string        // Playable stream location handed to the audio transport
	Duration    time.Duration // Zero when unknown
	RequesterID snowflake.ID  // Discord user who requested the track
}

// NewTrack creates a new Track with the given parameters.
func NewTrack(
	title string,
	sourceURL string,
	duration time.Duration,
	requesterID snowflake.ID,
) Track {
	if title == "" {
		title = DefaultTrackTitle
	}
	if duration < 0 {
		duration = 0
	}

	return Track{
		Title:       title,
		SourceURL:   sourceURL,
		Duration:    duration,
		RequesterID: requesterID,
	}
}

// String renders the track for chat messages, e.g. "**Title** (3:07)".
// The duration is omitted when unknown.
func (t Track) String() string {
	if t.Duration <= 0 {
		return fmt.Sprintf("**%s**", t.Title)
	}

	totalSeconds := int(t.Duration.Seconds())
	return fmt.Sprintf("**%s** (%d:%s)", t.Title, totalSeconds/60, pad(totalSeconds%60))
}

func pad(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
