package ports

import (
	"context"
	"errors"
)

// Metadata lookup failures. Implementations wrap these with detail.
var (
	ErrMetadataAuth        = errors.New("authentication failed")
	ErrMetadataInvalidLink = errors.New("invalid track link")
	ErrMetadataNotFound    = errors.New("track not found")
	ErrMetadataRequest     = errors.New("request failed")
)

// TrackMetadataLookup translates a music-service track link into a plain search
// query of the form "<title> <primary artist>".
type TrackMetadataLookup interface {
	ResolveTrackQuery(ctx context.Context, trackURL string) (string, error)
}
