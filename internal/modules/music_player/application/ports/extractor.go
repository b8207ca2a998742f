package ports

import (
	"context"
	"time"
)

// ExtractedInfo is the raw answer of the search/extraction backend.
// A search answers with a result set (IsResultSet), a direct link with a single result.
type ExtractedInfo struct {
	Title       string
	URL         string        // Playable stream location, empty if none was found
	Duration    time.Duration // Zero when unknown
	IsResultSet bool
	Entries     []ExtractedInfo
}

// Extractor turns a search query or URL into playable stream information.
// Extract blocks for the duration of the network lookup.
type Extractor interface {
	Extract(ctx context.Context, query string) (*ExtractedInfo, error)
}

// Suggestion is a search candidate offered while the user is typing.
type Suggestion struct {
	Title    string
	URL      string
	Duration time.Duration
}

// SearchSuggester returns search candidates for autocomplete.
type SearchSuggester interface {
	Suggest(ctx context.Context, query string, limit int) ([]Suggestion, error)
}
