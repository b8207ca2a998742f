package domain

import (
	"strings"
)

// SearchPrefix makes the extractor search and take only the first result.
const SearchPrefix = "ytsearch1:"

// QueryKind classifies raw user input.
type QueryKind int

const (
	// QueryKindSearch is free text to search for.
	QueryKindSearch QueryKind = iota
	// QueryKindURL is a direct HTTP(S) link handed to the extractor as-is.
	QueryKindURL
	// QueryKindMetadataLink is a music-service track link that must first be
	// translated into a search query.
	QueryKindMetadataLink
)

// String returns the name of the kind for logging.
func (k QueryKind) String() string {
	switch k {
	case QueryKindURL:
		return "url"
	case QueryKindMetadataLink:
		return "metadata_link"
	default:
		return "search"
	}
}

// SearchQuery represents a classified user query.
type SearchQuery struct {
	Query string // The trimmed user input
	Kind  QueryKind
}

// NewSearchQuery classifies user input.
func NewSearchQuery(input string) *SearchQuery {
	input = strings.TrimSpace(input)

	kind := QueryKindSearch
	switch {
	case isMetadataLink(input):
		kind = QueryKindMetadataLink
	case isURL(input):
		kind = QueryKindURL
	}

	return &SearchQuery{
		Query: input,
		Kind:  kind,
	}
}

// ExtractorQuery returns the query string formatted for the extractor.
// Search terms get the first-result search prefix; URLs pass through.
func (q *SearchQuery) ExtractorQuery() string {
	if q.Kind == QueryKindSearch {
		return SearchPrefix + q.Query
	}
	return q.Query
}

// IsValid returns true if the query is not empty.
func (q *SearchQuery) IsValid() bool {
	return q.Query != ""
}

func isMetadataLink(input string) bool {
	return strings.Contains(input, "spotify.com/track")
}

// isURL checks if the input begins with an HTTP(S) scheme.
func isURL(input string) bool {
	return strings.HasPrefix(input, "http://") ||
		strings.HasPrefix(input, "https://")
}
