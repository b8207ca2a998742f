package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/disgolink/v3/disgolink"
	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/jukebot/internal/modules/music_player/domain"
)

// voiceConnectionTimeout is the maximum time to wait for voice connection to be established.
const voiceConnectionTimeout = 10 * time.Second

// ErrNoLavalinkNode is returned when no Lavalink node is available.
var ErrNoLavalinkNode = errors.New("no available Lavalink node")

// pendingVoiceConnection tracks the state of a pending voice connection.
type pendingVoiceConnection struct {
	mu             sync.Mutex
	needServer     bool
	hasVoiceState  bool
	hasVoiceServer bool
	ready          chan struct{}
}

func newPendingVoiceConnection(needServer bool) *pendingVoiceConnection {
	return &pendingVoiceConnection{
		needServer: needServer,
		ready:      make(chan struct{}),
	}
}

// onEvent marks an event as received and signals ready once every required
// event is present.
func (p *pendingVoiceConnection) onEvent(isVoiceState bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if isVoiceState {
		p.hasVoiceState = true
	} else {
		p.hasVoiceServer = true
	}

	if p.hasVoiceState && (p.hasVoiceServer || !p.needServer) {
		select {
		case <-p.ready:
			// Already closed
		default:
			close(p.ready)
		}
	}
}

// voiceEventBuffer buffers voice events to ensure both VoiceStateUpdate and
// VoiceServerUpdate are received before forwarding to Lavalink.
// This prevents "Partial Lavalink voice state" errors when events arrive out of order.
type voiceEventBuffer struct {
	mu sync.Mutex

	// From VoiceStateUpdate
	hasVoiceState bool
	channelID     *snowflake.ID
	sessionID     string

	// From VoiceServerUpdate
	hasVoiceServer bool
	token          string
	endpoint       string
}

// setVoiceState stores voice state data and returns true if both events are now ready.
func (b *voiceEventBuffer) setVoiceState(channelID *snowflake.ID, sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.hasVoiceState = true
	b.channelID = channelID
	b.sessionID = sessionID

	return b.hasVoiceState && b.hasVoiceServer
}

// setVoiceServer stores voice server data and returns true if both events are now ready.
func (b *voiceEventBuffer) setVoiceServer(token, endpoint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.hasVoiceServer = true
	b.token = token
	b.endpoint = endpoint

	return b.hasVoiceState && b.hasVoiceServer
}

// getData returns the buffered data and resets the buffer.
func (b *voiceEventBuffer) getData() (channelID *snowflake.ID, sessionID, token, endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	channelID = b.channelID
	sessionID = b.sessionID
	token = b.token
	endpoint = b.endpoint

	// Reset buffer
	b.hasVoiceState = false
	b.hasVoiceServer = false
	b.channelID = nil
	b.sessionID = ""
	b.token = ""
	b.endpoint = ""

	return
}

// activeTrack is the track a guild's player was last told to play.
type activeTrack struct {
	encoded string
	onEnd   ports.TrackEndFunc
	err     error // set by a TrackException preceding the TrackEnd
}

// LavalinkAdapter wraps DisGoLink as an alternative extraction and playback
// backend. Source URLs handed to Play are Lavalink encoded tracks.
type LavalinkAdapter struct {
	link    disgolink.Client
	session *discordgo.Session
	botID   snowflake.ID

	pendingMu sync.Mutex
	pending   map[snowflake.ID]*pendingVoiceConnection

	// voiceBuffers holds buffered voice events per guild to handle out-of-order events
	voiceBufferMu sync.Mutex
	voiceBuffers  map[snowflake.ID]*voiceEventBuffer

	activeMu sync.Mutex
	active   map[snowflake.ID]*activeTrack
}

// LavalinkConfig contains Lavalink connection configuration.
type LavalinkConfig struct {
	Address  string
	Password string
	Secure   bool
}

// NewLavalinkAdapter creates a new LavalinkAdapter and connects to the node.
// The session must be open.
func NewLavalinkAdapter(
	ctx context.Context,
	session *discordgo.Session,
	config LavalinkConfig,
) (*LavalinkAdapter, error) {
	if session.State == nil || session.State.User == nil {
		return nil, errors.New("discord session is not ready")
	}

	botID, err := snowflake.Parse(session.State.User.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bot ID: %w", err)
	}

	adapter := &LavalinkAdapter{
		session:      session,
		botID:        botID,
		pending:      make(map[snowflake.ID]*pendingVoiceConnection),
		voiceBuffers: make(map[snowflake.ID]*voiceEventBuffer),
		active:       make(map[snowflake.ID]*activeTrack),
	}

	// Create DisGoLink client
	link := disgolink.New(botID,
		disgolink.WithListenerFunc(adapter.onTrackStart),
		disgolink.WithListenerFunc(adapter.onTrackEnd),
		disgolink.WithListenerFunc(adapter.onTrackException),
		disgolink.WithListenerFunc(adapter.onTrackStuck),
	)
	adapter.link = link

	// Add Lavalink node
	node, err := link.AddNode(ctx, disgolink.NodeConfig{
		Name:     "main",
		Address:  config.Address,
		Password: config.Password,
		Secure:   config.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add Lavalink node: %w", err)
	}

	slog.Info("connected to Lavalink", "node", node.Config().Name, "address", config.Address)

	return adapter, nil
}

// Close disconnects from all Lavalink nodes.
func (c *LavalinkAdapter) Close() {
	c.link.Close()
}

// --- Extractor / SearchSuggester ---

// lavalinkIdentifier rewrites extractor queries to Lavalink identifiers.
// Lavalink search prefixes take no result count.
func lavalinkIdentifier(query string) string {
	if rest, ok := strings.CutPrefix(query, domain.SearchPrefix); ok {
		return "ytsearch:" + rest
	}
	return query
}

func (c *LavalinkAdapter) loadTracks(ctx context.Context, identifier string) (*lavalink.LoadResult, error) {
	node := c.link.BestNode()
	if node == nil {
		return nil, ErrNoLavalinkNode
	}

	result, err := node.LoadTracks(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracks: %w", err)
	}
	return result, nil
}

// Extract loads a query through Lavalink.
func (c *LavalinkAdapter) Extract(ctx context.Context, query string) (*ports.ExtractedInfo, error) {
	result, err := c.loadTracks(ctx, lavalinkIdentifier(query))
	if err != nil {
		return nil, err
	}
	return convertLoadResult(result)
}

// Suggest returns up to limit search candidates.
func (c *LavalinkAdapter) Suggest(
	ctx context.Context,
	query string,
	limit int,
) ([]ports.Suggestion, error) {
	result, err := c.loadTracks(ctx, "ytsearch:"+query)
	if err != nil {
		return nil, err
	}

	search, ok := result.Data.(lavalink.Search)
	if !ok {
		return nil, nil
	}

	suggestions := make([]ports.Suggestion, 0, min(limit, len(search)))
	for _, track := range search {
		if len(suggestions) == limit {
			break
		}
		if track.Info.URI == nil {
			continue
		}
		suggestions = append(suggestions, ports.Suggestion{
			Title:    track.Info.Title,
			URL:      *track.Info.URI,
			Duration: time.Duration(track.Info.Length) * time.Millisecond,
		})
	}
	return suggestions, nil
}

// convertLoadResult converts a Lavalink load result to extracted info.
// Playlists are reduced to their tracks as a result set.
func convertLoadResult(result *lavalink.LoadResult) (*ports.ExtractedInfo, error) {
	switch data := result.Data.(type) {
	case lavalink.Track:
		info := convertTrack(data)
		return &info, nil

	case lavalink.Playlist:
		return resultSet(data.Tracks), nil

	case lavalink.Search:
		return resultSet(data), nil

	case lavalink.Empty:
		return &ports.ExtractedInfo{IsResultSet: true, Entries: []ports.ExtractedInfo{}}, nil

	case lavalink.Exception:
		return nil, fmt.Errorf("lavalink failed to load track: %s", data.Message)

	default:
		return &ports.ExtractedInfo{IsResultSet: true, Entries: []ports.ExtractedInfo{}}, nil
	}
}

func resultSet(tracks []lavalink.Track) *ports.ExtractedInfo {
	entries := make([]ports.ExtractedInfo, len(tracks))
	for i, track := range tracks {
		entries[i] = convertTrack(track)
	}
	return &ports.ExtractedInfo{IsResultSet: true, Entries: entries}
}

// convertTrack maps a Lavalink track; its encoded form is the playable source.
func convertTrack(track lavalink.Track) ports.ExtractedInfo {
	return ports.ExtractedInfo{
		Title:    track.Info.Title,
		URL:      track.Encoded,
		Duration: time.Duration(track.Info.Length) * time.Millisecond,
	}
}

// --- AudioTransport ---

// Play plays an encoded track. opts are ignored; Lavalink manages stream
// reconnects itself.
func (c *LavalinkAdapter) Play(
	ctx context.Context,
	guildID snowflake.ID,
	sourceURL string,
	_ ports.PlayOptions,
	onEnd ports.TrackEndFunc,
) error {
	previous := c.setActive(guildID, &activeTrack{encoded: sourceURL, onEnd: onEnd})
	if previous != nil {
		previous.onEnd(domain.TrackEndReplaced, nil)
	}

	player := c.link.Player(guildID)

	// Use WithEncodedTrack to avoid userData:null issue
	if err := player.Update(ctx, lavalink.WithEncodedTrack(sourceURL)); err != nil {
		c.takeActive(guildID, sourceURL)
		return fmt.Errorf("failed to play track: %w", err)
	}

	return nil
}

// Stop stops the current playback; its end callback reports TrackEndStopped.
func (c *LavalinkAdapter) Stop(ctx context.Context, guildID snowflake.ID) error {
	player := c.link.ExistingPlayer(guildID)
	if player == nil {
		return nil
	}

	if err := player.Update(ctx, lavalink.WithNullTrack()); err != nil {
		return fmt.Errorf("failed to stop playback: %w", err)
	}

	return nil
}

func (c *LavalinkAdapter) setActive(guildID snowflake.ID, track *activeTrack) *activeTrack {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()

	previous := c.active[guildID]
	c.active[guildID] = track
	return previous
}

// takeActive removes and returns the guild's active track if it matches encoded.
func (c *LavalinkAdapter) takeActive(guildID snowflake.ID, encoded string) *activeTrack {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()

	track, ok := c.active[guildID]
	if !ok || track.encoded != encoded {
		return nil
	}
	delete(c.active, guildID)
	return track
}

// --- VoiceConnection ---

// ConnectedChannel returns the voice channel the bot is in, from the gateway state.
func (c *LavalinkAdapter) ConnectedChannel(guildID snowflake.ID) (snowflake.ID, bool) {
	vs, err := c.session.State.VoiceState(guildID.String(), c.botID.String())
	if err != nil || vs.ChannelID == "" {
		return 0, false
	}

	channelID, err := snowflake.Parse(vs.ChannelID)
	if err != nil {
		return 0, false
	}
	return channelID, true
}

// JoinChannel connects to a voice channel.
// It waits for both VoiceStateUpdate and VoiceServerUpdate events before returning.
func (c *LavalinkAdapter) JoinChannel(ctx context.Context, guildID, channelID snowflake.ID) error {
	return c.updateVoiceChannel(ctx, guildID, channelID, true)
}

// MoveChannel moves to another voice channel. Only the voice state update is awaited
// since Discord may keep the voice server.
func (c *LavalinkAdapter) MoveChannel(ctx context.Context, guildID, channelID snowflake.ID) error {
	return c.updateVoiceChannel(ctx, guildID, channelID, false)
}

func (c *LavalinkAdapter) updateVoiceChannel(
	ctx context.Context,
	guildID, channelID snowflake.ID,
	needServer bool,
) error {
	pending := newPendingVoiceConnection(needServer)

	c.pendingMu.Lock()
	c.pending[guildID] = pending
	c.pendingMu.Unlock()

	// Cleanup pending entry when done
	defer func() {
		c.pendingMu.Lock()
		if c.pending[guildID] == pending {
			delete(c.pending, guildID)
		}
		c.pendingMu.Unlock()
	}()

	// Use discordgo to update voice state
	err := c.session.ChannelVoiceJoinManual(guildID.String(), channelID.String(), false, true)
	if err != nil {
		return fmt.Errorf("failed to join voice channel: %w", err)
	}

	// Wait for voice connection to be established
	select {
	case <-pending.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for voice connection: %w", ctx.Err())
	case <-time.After(voiceConnectionTimeout):
		return errors.New("timeout waiting for voice connection")
	}
}

// LeaveChannel destroys the player and disconnects from the voice channel.
func (c *LavalinkAdapter) LeaveChannel(ctx context.Context, guildID snowflake.ID) error {
	player := c.link.ExistingPlayer(guildID)
	if player != nil {
		if err := player.Destroy(ctx); err != nil {
			slog.Warn("failed to destroy player", "guild", guildID, "error", err)
		}
	}

	// Leave voice channel
	err := c.session.ChannelVoiceJoinManual(guildID.String(), "", false, false)
	if err != nil {
		return fmt.Errorf("failed to leave voice channel: %w", err)
	}
	return nil
}

// --- Gateway event forwarding ---

// OnVoiceServerUpdate handles Discord voice server updates.
// This must be called from the Discord event handler.
func (c *LavalinkAdapter) OnVoiceServerUpdate(event *discordgo.VoiceServerUpdate) {
	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice server update", "error", err)
		return
	}

	// Get or create voice buffer for this guild
	buffer := c.getOrCreateVoiceBuffer(guildID)

	// Store voice server data and check if both events are ready
	if buffer.setVoiceServer(event.Token, event.Endpoint) {
		c.forwardBufferedVoiceEvents(guildID, buffer)
	}

	c.signalPending(guildID, false)
}

// OnVoiceStateUpdate handles Discord voice state updates.
// This must be called from the Discord event handler.
func (c *LavalinkAdapter) OnVoiceStateUpdate(event *discordgo.VoiceStateUpdate) {
	// Only handle updates for the bot itself
	if event.UserID != c.botID.String() {
		return
	}

	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice state update", "error", err)
		return
	}

	sessionID := event.SessionID

	// Parse the channel ID - if empty, the bot is disconnecting
	var channelID *snowflake.ID
	if event.ChannelID != "" {
		id, err := snowflake.Parse(event.ChannelID)
		if err != nil {
			slog.Error("failed to parse channel ID in voice state update", "error", err)
			return
		}
		channelID = &id
	}

	// Handle disconnect immediately (no need to wait for VoiceServerUpdate)
	if channelID == nil {
		c.link.OnVoiceStateUpdate(context.Background(), guildID, nil, sessionID)
		c.clearVoiceBuffer(guildID)
		return
	}

	buffer := c.getOrCreateVoiceBuffer(guildID)

	if buffer.setVoiceState(channelID, sessionID) {
		c.forwardBufferedVoiceEvents(guildID, buffer)
	} else if c.link.ExistingPlayer(guildID) != nil {
		// A channel move keeps the voice server; Lavalink only needs the new state.
		c.link.OnVoiceStateUpdate(context.Background(), guildID, channelID, sessionID)
	}

	c.signalPending(guildID, true)
}

func (c *LavalinkAdapter) signalPending(guildID snowflake.ID, isVoiceState bool) {
	c.pendingMu.Lock()
	pending := c.pending[guildID]
	c.pendingMu.Unlock()

	if pending != nil {
		pending.onEvent(isVoiceState)
	}
}

// getOrCreateVoiceBuffer returns the voice buffer for a guild, creating one if needed.
func (c *LavalinkAdapter) getOrCreateVoiceBuffer(guildID snowflake.ID) *voiceEventBuffer {
	c.voiceBufferMu.Lock()
	defer c.voiceBufferMu.Unlock()

	buffer, exists := c.voiceBuffers[guildID]
	if !exists {
		buffer = &voiceEventBuffer{}
		c.voiceBuffers[guildID] = buffer
	}
	return buffer
}

// clearVoiceBuffer removes the voice buffer for a guild.
func (c *LavalinkAdapter) clearVoiceBuffer(guildID snowflake.ID) {
	c.voiceBufferMu.Lock()
	defer c.voiceBufferMu.Unlock()
	delete(c.voiceBuffers, guildID)
}

// forwardBufferedVoiceEvents sends the buffered voice events to Lavalink.
func (c *LavalinkAdapter) forwardBufferedVoiceEvents(
	guildID snowflake.ID,
	buffer *voiceEventBuffer,
) {
	channelID, sessionID, token, endpoint := buffer.getData()

	slog.Debug("forwarding buffered voice events to Lavalink",
		"guild", guildID,
		"channel", channelID,
		"hasSessionID", sessionID != "",
	)

	// Forward to Lavalink in the correct order
	c.link.OnVoiceStateUpdate(context.Background(), guildID, channelID, sessionID)
	c.link.OnVoiceServerUpdate(context.Background(), guildID, token, endpoint)
}

// --- Lavalink player events ---

func (c *LavalinkAdapter) onTrackStart(player disgolink.Player, event lavalink.TrackStartEvent) {
	slog.Debug("track started", "guild", player.GuildID(), "track", event.Track.Info.Title)
}

func (c *LavalinkAdapter) onTrackEnd(player disgolink.Player, event lavalink.TrackEndEvent) {
	slog.Debug("track ended", "guild", player.GuildID(), "reason", event.Reason)

	// Replacements were already reported by Play.
	if event.Reason == lavalink.TrackEndReasonReplaced {
		return
	}

	track := c.takeActive(player.GuildID(), event.Track.Encoded)
	if track == nil {
		slog.Debug("track end for unknown track", "guild", player.GuildID())
		return
	}

	track.onEnd(convertEndReason(event.Reason), track.err)
}

func (c *LavalinkAdapter) onTrackException(
	player disgolink.Player,
	event lavalink.TrackExceptionEvent,
) {
	slog.Warn("track exception", "guild", player.GuildID(), "error", event.Exception.Message)

	c.activeMu.Lock()
	defer c.activeMu.Unlock()

	if track, ok := c.active[player.GuildID()]; ok && track.encoded == event.Track.Encoded {
		track.err = fmt.Errorf("lavalink track exception: %s", event.Exception.Message)
	}
}

func (c *LavalinkAdapter) onTrackStuck(player disgolink.Player, event lavalink.TrackStuckEvent) {
	slog.Warn("track stuck", "guild", player.GuildID(), "threshold", event.Threshold)
}

func convertEndReason(reason lavalink.TrackEndReason) domain.TrackEndReason {
	switch reason {
	case lavalink.TrackEndReasonFinished:
		return domain.TrackEndFinished
	case lavalink.TrackEndReasonLoadFailed:
		return domain.TrackEndLoadFailed
	case lavalink.TrackEndReasonStopped:
		return domain.TrackEndStopped
	case lavalink.TrackEndReasonReplaced:
		return domain.TrackEndReplaced
	case lavalink.TrackEndReasonCleanup:
		return domain.TrackEndCleanup
	default:
		return domain.TrackEndStopped
	}
}

// Ensure LavalinkAdapter implements port interfaces.
var (
	_ ports.AudioTransport  = (*LavalinkAdapter)(nil)
	_ ports.VoiceConnection = (*LavalinkAdapter)(nil)
	_ ports.Extractor       = (*LavalinkAdapter)(nil)
	_ ports.SearchSuggester = (*LavalinkAdapter)(nil)
)
