package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
)

// ytdlpFormat prefers m4a audio, then any audio, then anything playable.
const ytdlpFormat = "bestaudio[ext=m4a]/bestaudio/best"

// Compile-time checks that YtdlpExtractor implements ports interfaces.
var (
	_ ports.Extractor       = (*YtdlpExtractor)(nil)
	_ ports.SearchSuggester = (*YtdlpExtractor)(nil)
)

// YtdlpConfig configures the yt-dlp invocations.
type YtdlpConfig struct {
	SocketTimeout time.Duration
	Retries       int
	Proxy         string
}

// YtdlpExtractor extracts stream information by running yt-dlp.
type YtdlpExtractor struct {
	config YtdlpConfig
}

// NewYtdlpExtractor creates a new YtdlpExtractor.
func NewYtdlpExtractor(config YtdlpConfig) *YtdlpExtractor {
	if config.SocketTimeout <= 0 {
		config.SocketTimeout = 10 * time.Second
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	return &YtdlpExtractor{config: config}
}

func (e *YtdlpExtractor) command() *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig()

	if e.config.Proxy != "" {
		cmd.Proxy(e.config.Proxy)
	}

	return cmd
}

// commonArgs returns the network settings shared by every invocation.
func (e *YtdlpExtractor) commonArgs() []string {
	return []string{
		"--source-address", "0.0.0.0",
		"--socket-timeout", strconv.Itoa(int(math.Ceil(e.config.SocketTimeout.Seconds()))),
		"--retries", strconv.Itoa(e.config.Retries),
	}
}

// Extract resolves a query to stream information.
// Queries that are not URLs are searched on YouTube.
func (e *YtdlpExtractor) Extract(ctx context.Context, query string) (*ports.ExtractedInfo, error) {
	args := append(e.commonArgs(),
		"--dump-single-json",
		"--default-search", "ytsearch",
		query,
	)

	res, err := e.command().
		Format(ytdlpFormat).
		NoPlaylist().
		Run(ctx, args...)
	if err != nil {
		return nil, ytdlpError(res, err)
	}

	info, err := parseYtdlpJSON([]byte(res.Stdout))
	if err != nil {
		return nil, err
	}

	slog.Debug(
		"extracted stream info",
		"query", query,
		"title", info.Title,
		"result_set", info.IsResultSet,
	)

	return info, nil
}

// Suggest returns up to limit search candidates for autocomplete.
func (e *YtdlpExtractor) Suggest(
	ctx context.Context,
	query string,
	limit int,
) ([]ports.Suggestion, error) {
	if limit <= 0 {
		return nil, nil
	}

	args := append(e.commonArgs(), fmt.Sprintf("ytsearch%d:%s", limit, query))

	res, err := e.command().
		FlatPlaylist().
		Print("%(url)s\t%(title)s\t%(duration)s").
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		Run(ctx, args...)
	if err != nil {
		return nil, ytdlpError(res, err)
	}

	return parseYtdlpSuggestions(res.Stdout, limit), nil
}

// ytdlpError prefers yt-dlp's own error line over the exit status.
func ytdlpError(res *ytdlp.Result, err error) error {
	if res == nil {
		return err
	}
	for _, line := range strings.Split(res.Stderr, "\n") {
		if msg, ok := strings.CutPrefix(strings.TrimSpace(line), "ERROR: "); ok {
			return fmt.Errorf("%s: %w", msg, err)
		}
	}
	return err
}

// ytdlpInfo is the subset of yt-dlp's info JSON used for playback.
type ytdlpInfo struct {
	Type     string      `json:"_type"`
	Title    string      `json:"title"`
	URL      string      `json:"url"`
	Duration float64     `json:"duration"`
	Entries  []ytdlpInfo `json:"entries"`
}

func (i ytdlpInfo) toExtracted() ports.ExtractedInfo {
	info := ports.ExtractedInfo{
		Title:    i.Title,
		URL:      i.URL,
		Duration: secondsToDuration(i.Duration),
	}

	if i.Type == "playlist" || i.Entries != nil {
		info.IsResultSet = true
		info.Entries = make([]ports.ExtractedInfo, 0, len(i.Entries))
		for _, entry := range i.Entries {
			info.Entries = append(info.Entries, entry.toExtracted())
		}
	}

	return info
}

func parseYtdlpJSON(data []byte) (*ports.ExtractedInfo, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("yt-dlp returned no output")
	}

	var raw ytdlpInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode yt-dlp output: %w", err)
	}

	info := raw.toExtracted()
	return &info, nil
}

func parseYtdlpSuggestions(output string, limit int) []ports.Suggestion {
	var suggestions []ports.Suggestion

	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 3 || parts[0] == "" || parts[0] == "NA" {
			continue
		}

		var duration time.Duration
		if seconds, err := strconv.ParseFloat(parts[2], 64); err == nil {
			duration = secondsToDuration(seconds)
		}

		suggestions = append(suggestions, ports.Suggestion{
			URL:      parts[0],
			Title:    parts[1],
			Duration: duration,
		})
		if len(suggestions) == limit {
			break
		}
	}

	return suggestions
}

func secondsToDuration(seconds float64) time.Duration {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
