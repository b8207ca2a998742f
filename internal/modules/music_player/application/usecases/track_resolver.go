package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/jukebot/internal/modules/music_player/domain"
	"golang.org/x/sync/semaphore"
)

// Resolver defaults.
const (
	DefaultResolveTimeout           = 30 * time.Second
	DefaultMaxConcurrentExtractions = 4
	DefaultSuggestionLimit          = 10
)

// ResolverConfig tunes the TrackResolverService.
type ResolverConfig struct {
	Timeout                  time.Duration // Bounds a whole resolution, metadata lookup included
	MaxConcurrentExtractions int64         // Extractor calls in flight across all guilds
}

// ResolveInput contains the input for the Resolve use case.
type ResolveInput struct {
	Query       string
	RequesterID snowflake.ID
}

// ResolveOutput contains the result of the Resolve use case.
type ResolveOutput struct {
	Track domain.Track
}

// SuggestInput contains the input for the Suggest use case.
type SuggestInput struct {
	Query string
	Limit int // Optional, defaults to DefaultSuggestionLimit
}

// SuggestOutput contains the result of the Suggest use case.
type SuggestOutput struct {
	Suggestions []ports.Suggestion
}

// TrackResolverService turns raw user queries into playable tracks.
// It runs on the calling goroutine, never on the scheduling context, since
// extraction blocks on the network.
type TrackResolverService struct {
	extractor ports.Extractor
	metadata  ports.TrackMetadataLookup // nil when no credentials are configured
	suggester ports.SearchSuggester     // nil disables suggestions
	sem       *semaphore.Weighted
	timeout   time.Duration
}

// NewTrackResolverService creates a new TrackResolverService.
func NewTrackResolverService(
	extractor ports.Extractor,
	metadata ports.TrackMetadataLookup,
	suggester ports.SearchSuggester,
	cfg ResolverConfig,
) *TrackResolverService {
	if cfg.MaxConcurrentExtractions <= 0 {
		cfg.MaxConcurrentExtractions = DefaultMaxConcurrentExtractions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultResolveTimeout
	}

	return &TrackResolverService{
		extractor: extractor,
		metadata:  metadata,
		suggester: suggester,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrentExtractions),
		timeout:   cfg.Timeout,
	}
}

// Resolve resolves a query into a Track requested by the given user.
func (s *TrackResolverService) Resolve(
	ctx context.Context,
	input ResolveInput,
) (*ResolveOutput, error) {
	query := domain.NewSearchQuery(input.Query)
	if !query.IsValid() {
		return nil, ErrEmptyQuery
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if query.Kind == domain.QueryKindMetadataLink {
		translated, err := s.translateLink(ctx, query.Query)
		if err != nil {
			return nil, err
		}
		query = domain.NewSearchQuery(translated)
		if !query.IsValid() {
			return nil, ErrNoResults
		}
	}

	slog.Debug("resolving track", "query", query.Query, "kind", query.Kind.String())

	info, err := s.extract(ctx, query.ExtractorQuery())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	if info.IsResultSet {
		if len(info.Entries) == 0 {
			return nil, ErrNoResults
		}
		info = &info.Entries[0]
	}

	if info.URL == "" {
		return nil, ErrNoAudioURL
	}

	return &ResolveOutput{
		Track: domain.NewTrack(info.Title, info.URL, info.Duration, input.RequesterID),
	}, nil
}

// Suggest returns search candidates for a partial query.
// URLs and blank queries yield no suggestions.
func (s *TrackResolverService) Suggest(
	ctx context.Context,
	input SuggestInput,
) (*SuggestOutput, error) {
	query := domain.NewSearchQuery(input.Query)
	if s.suggester == nil || !query.IsValid() || query.Kind != domain.QueryKindSearch {
		return &SuggestOutput{}, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	suggestions, err := s.suggester.Suggest(ctx, query.Query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch suggestions: %w", err)
	}
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}

	return &SuggestOutput{Suggestions: suggestions}, nil
}

func (s *TrackResolverService) translateLink(ctx context.Context, link string) (string, error) {
	if s.metadata == nil {
		return "", fmt.Errorf("%w: %w", ErrMetadataLookup, ports.ErrMetadataAuth)
	}

	translated, err := s.metadata.ResolveTrackQuery(ctx, link)
	if err != nil {
		slog.Warn("failed to translate track link", "link", link, "error", err)
		return "", fmt.Errorf("%w: %w", ErrMetadataLookup, err)
	}
	return translated, nil
}

// extract calls the extractor while holding an extraction slot.
func (s *TrackResolverService) extract(
	ctx context.Context,
	query string,
) (*ports.ExtractedInfo, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	info, err := s.extractor.Extract(ctx, query)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("extractor returned no information")
	}
	return info, nil
}
