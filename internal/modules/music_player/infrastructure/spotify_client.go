package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Spotify endpoints.
const (
	DefaultSpotifyTokenURL = "https://accounts.spotify.com/api/token"
	DefaultSpotifyAPIURL   = "https://api.spotify.com/v1"
)

// spotifyRequestTimeout bounds a single Spotify HTTP request.
const spotifyRequestTimeout = 10 * time.Second

// Compile-time check that SpotifyClient implements ports.TrackMetadataLookup.
var _ ports.TrackMetadataLookup = (*SpotifyClient)(nil)

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string

	// Overridable for tests.
	TokenURL   string
	APIURL     string
	HTTPClient *http.Client
}

// SpotifyClient translates Spotify track links into search queries using the
// Spotify Web API with client-credentials authentication.
type SpotifyClient struct {
	tokens     oauth2.TokenSource
	apiURL     string
	httpClient *http.Client
}

// NewSpotifyClient creates a new SpotifyClient.
// Tokens are fetched lazily and cached until they expire.
func NewSpotifyClient(config SpotifyConfig) *SpotifyClient {
	if config.TokenURL == "" {
		config.TokenURL = DefaultSpotifyTokenURL
	}
	if config.APIURL == "" {
		config.APIURL = DefaultSpotifyAPIURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: spotifyRequestTimeout}
	}

	credentials := clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     config.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	// The token source outlives any single request, so it gets its own context.
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, config.HTTPClient)

	return &SpotifyClient{
		tokens:     credentials.TokenSource(tokenCtx),
		apiURL:     strings.TrimRight(config.APIURL, "/"),
		httpClient: config.HTTPClient,
	}
}

type spotifyTrack struct {
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
}

// ResolveTrackQuery returns "<title> <primary artist>" for a Spotify track link.
func (c *SpotifyClient) ResolveTrackQuery(ctx context.Context, trackURL string) (string, error) {
	token, err := c.tokens.Token()
	if err != nil {
		slog.Warn("failed to obtain spotify token", "error", err)
		return "", fmt.Errorf("%w: %v", ports.ErrMetadataAuth, err)
	}

	trackID, err := parseSpotifyTrackID(trackURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.apiURL+"/tracks/"+url.PathEscape(trackID),
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrMetadataRequest, err)
	}
	token.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrMetadataRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w (HTTP %d)", ports.ErrMetadataNotFound, resp.StatusCode)
	}

	var track spotifyTrack
	if err := json.NewDecoder(resp.Body).Decode(&track); err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrMetadataRequest, err)
	}
	if track.Name == "" || len(track.Artists) == 0 {
		return "", fmt.Errorf("%w: incomplete track metadata", ports.ErrMetadataRequest)
	}

	query := track.Name + " " + track.Artists[0].Name
	slog.Debug("resolved spotify track", "track_id", trackID, "query", query)

	return query, nil
}

// parseSpotifyTrackID extracts the ID from links like
// https://open.spotify.com/track/<id>?si=...
func parseSpotifyTrackID(trackURL string) (string, error) {
	_, rest, found := strings.Cut(trackURL, "track/")
	if !found {
		return "", fmt.Errorf("%w: %q", ports.ErrMetadataInvalidLink, trackURL)
	}

	id, _, _ := strings.Cut(rest, "?")
	id = strings.Trim(id, "/")
	if id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("%w: %q", ports.ErrMetadataInvalidLink, trackURL)
	}
	return id, nil
}
