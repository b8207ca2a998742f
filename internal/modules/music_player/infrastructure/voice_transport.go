package infrastructure

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/jukebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/jukebot/internal/modules/music_player/domain"
	"gopkg.in/hraban/opus.v2"
)

// Discord voice audio format.
const (
	voiceSampleRate = 48000
	voiceChannels   = 2
	voiceFrameSize  = 960 // samples per channel in a 20ms frame
	voicePCMLength  = voiceFrameSize * voiceChannels
	maxOpusFrame    = 4000
)

// DefaultFFmpegPath is used when no ffmpeg binary is configured.
const DefaultFFmpegPath = "ffmpeg"

const ffmpegHelpTimeout = 5 * time.Second

// ErrNotConnected is returned when playing in a guild without a voice connection.
var ErrNotConnected = errors.New("not connected to a voice channel")

// Compile-time checks that VoiceTransport implements ports interfaces.
var (
	_ ports.AudioTransport  = (*VoiceTransport)(nil)
	_ ports.VoiceConnection = (*VoiceTransport)(nil)
)

// frameEncoder encodes one PCM frame to Opus.
type frameEncoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

// streamSession is a running ffmpeg process feeding a voice connection.
type streamSession struct {
	cancel  context.CancelFunc
	stopped atomic.Bool
	done    chan struct{}
}

// VoiceTransport plays audio through discordgo voice connections, decoding
// with ffmpeg and encoding to Opus in process.
type VoiceTransport struct {
	session    *discordgo.Session
	ffmpegPath string

	// ffmpeg 7.0 added reconnect_max_retries; older builds reject the option.
	limitRetries bool

	mu       sync.Mutex
	sessions map[snowflake.ID]*streamSession
}

// NewVoiceTransport creates a new VoiceTransport.
func NewVoiceTransport(session *discordgo.Session, ffmpegPath string) *VoiceTransport {
	if ffmpegPath == "" {
		ffmpegPath = DefaultFFmpegPath
	}
	limitRetries := supportsReconnectRetries(ffmpegPath)
	slog.Debug("checked ffmpeg options", "path", ffmpegPath, "reconnect_max_retries", limitRetries)

	return &VoiceTransport{
		session:      session,
		ffmpegPath:   ffmpegPath,
		limitRetries: limitRetries,
		sessions:     make(map[snowflake.ID]*streamSession),
	}
}

// supportsReconnectRetries reports whether the ffmpeg build lists the http
// reconnect_max_retries option.
func supportsReconnectRetries(ffmpegPath string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), ffmpegHelpTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-h", "protocol=http").Output()
	if err != nil {
		return false
	}
	return bytes.Contains(out, []byte("reconnect_max_retries"))
}

// buildFFmpegArgs returns the ffmpeg arguments decoding sourceURL to raw
// 48kHz stereo PCM on stdout. limitRetries caps reconnects at
// opts.ReconnectAttempts; without it ffmpeg retries until the delay cap is hit.
func buildFFmpegArgs(sourceURL string, opts ports.PlayOptions, limitRetries bool) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}

	if opts.ReconnectAttempts > 0 {
		delay := int(math.Ceil(opts.ReconnectDelayMax.Seconds()))
		if delay <= 0 {
			delay = 5
		}
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", strconv.Itoa(delay),
		)
		if limitRetries {
			args = append(args, "-reconnect_max_retries", strconv.Itoa(opts.ReconnectAttempts))
		}
	}

	args = append(args, "-i", sourceURL)

	if opts.NoVideo {
		args = append(args, "-vn")
	}

	return append(args,
		"-f", "s16le",
		"-ar", strconv.Itoa(voiceSampleRate),
		"-ac", strconv.Itoa(voiceChannels),
		"pipe:1",
	)
}

func (t *VoiceTransport) voiceConnection(guildID snowflake.ID) *discordgo.VoiceConnection {
	t.session.RLock()
	defer t.session.RUnlock()

	return t.session.VoiceConnections[guildID.String()]
}

// Play starts an ffmpeg process for sourceURL and streams it to the guild's
// voice connection. ctx bounds only the start; the stream runs until it ends
// or Stop is called.
func (t *VoiceTransport) Play(
	ctx context.Context,
	guildID snowflake.ID,
	sourceURL string,
	opts ports.PlayOptions,
	onEnd ports.TrackEndFunc,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	vc := t.voiceConnection(guildID)
	if vc == nil {
		return ErrNotConnected
	}

	// A new track replaces whatever is still playing.
	t.stopSession(guildID)

	encoder, err := opus.NewEncoder(voiceSampleRate, voiceChannels, opus.AppAudio)
	if err != nil {
		return fmt.Errorf("failed to create opus encoder: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())

	cmd := exec.CommandContext(streamCtx, t.ffmpegPath, buildFFmpegArgs(sourceURL, opts, t.limitRetries)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stdout pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	session := &streamSession{cancel: cancel, done: make(chan struct{})}

	t.mu.Lock()
	t.sessions[guildID] = session
	t.mu.Unlock()

	slog.Debug("started ffmpeg stream", "guild", guildID, "pid", cmd.Process.Pid)

	go func() {
		defer close(session.done)
		defer cancel()

		if err := vc.Speaking(true); err != nil {
			slog.Debug("failed to set speaking state", "guild", guildID, "error", err)
		}

		frames, streamErr := streamOpus(streamCtx, stdout, encoder, vc.OpusSend)
		waitErr := cmd.Wait()

		if err := vc.Speaking(false); err != nil {
			slog.Debug("failed to clear speaking state", "guild", guildID, "error", err)
		}

		t.mu.Lock()
		if t.sessions[guildID] == session {
			delete(t.sessions, guildID)
		}
		t.mu.Unlock()

		reason, err := classifyStreamEnd(session.stopped.Load(), frames, streamErr, waitErr, stderr.String())
		slog.Debug(
			"ffmpeg stream ended",
			"guild", guildID,
			"frames", frames,
			"reason", reason,
			"error", err,
		)
		onEnd(reason, err)
	}()

	return nil
}

// classifyStreamEnd maps the outcome of a stream to a track end reason.
func classifyStreamEnd(
	stopped bool,
	frames int,
	streamErr, waitErr error,
	stderr string,
) (domain.TrackEndReason, error) {
	if stopped {
		return domain.TrackEndStopped, nil
	}

	err := streamErr
	if err == nil && waitErr != nil {
		err = waitErr
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr); msg != "" {
			err = fmt.Errorf("%w: %s", err, lastLine(msg))
		}
	}

	if frames == 0 {
		if err == nil {
			err = errors.New("stream produced no audio")
		}
		return domain.TrackEndLoadFailed, err
	}

	return domain.TrackEndFinished, err
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// streamOpus reads 20ms PCM frames from r, encodes them and sends them to out
// until r is exhausted or ctx is canceled. It returns the number of frames sent.
// A trailing partial frame is padded with silence.
func streamOpus(
	ctx context.Context,
	r io.Reader,
	encoder frameEncoder,
	out chan<- []byte,
) (int, error) {
	pcmBuf := make([]byte, voicePCMLength*2)
	samples := make([]int16, voicePCMLength)
	opusBuf := make([]byte, maxOpusFrame)
	frames := 0

	for {
		n, readErr := io.ReadFull(r, pcmBuf)
		if errors.Is(readErr, io.EOF) {
			return frames, nil
		}
		if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) {
			if ctx.Err() != nil {
				return frames, nil
			}
			return frames, fmt.Errorf("read error: %w", readErr)
		}

		clear(pcmBuf[n:])
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
		}

		size, err := encoder.Encode(samples, opusBuf)
		if err != nil {
			return frames, fmt.Errorf("encode error: %w", err)
		}

		packet := make([]byte, size)
		copy(packet, opusBuf[:size])

		select {
		case out <- packet:
			frames++
		case <-ctx.Done():
			return frames, nil
		}

		if readErr != nil {
			return frames, nil
		}
	}
}

// stopSession stops the guild's stream and waits for it to wind down.
// It reports whether a stream was running.
func (t *VoiceTransport) stopSession(guildID snowflake.ID) bool {
	t.mu.Lock()
	session, ok := t.sessions[guildID]
	delete(t.sessions, guildID)
	t.mu.Unlock()

	if !ok {
		return false
	}

	session.stopped.Store(true)
	session.cancel()
	<-session.done
	return true
}

// Stop ends the guild's current stream. Its end callback reports TrackEndStopped.
func (t *VoiceTransport) Stop(_ context.Context, guildID snowflake.ID) error {
	if !t.stopSession(guildID) {
		slog.Debug("no stream to stop", "guild", guildID)
	}
	return nil
}

// ConnectedChannel returns the voice channel the bot is connected to in the guild.
func (t *VoiceTransport) ConnectedChannel(guildID snowflake.ID) (snowflake.ID, bool) {
	vc := t.voiceConnection(guildID)
	if vc == nil {
		return 0, false
	}

	vc.RLock()
	channelID := vc.ChannelID
	vc.RUnlock()

	id, err := snowflake.Parse(channelID)
	if err != nil {
		return 0, false
	}
	return id, true
}

// JoinChannel connects the bot to the specified voice channel.
func (t *VoiceTransport) JoinChannel(ctx context.Context, guildID, channelID snowflake.ID) error {
	ctx, cancel := context.WithTimeout(ctx, voiceConnectionTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		_, err := t.session.ChannelVoiceJoin(guildID.String(), channelID.String(), false, true)
		result <- err
	}()

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("failed to join voice channel: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("voice connection timeout: %w", ctx.Err())
	}
}

// MoveChannel moves the existing connection to another voice channel.
func (t *VoiceTransport) MoveChannel(_ context.Context, guildID, channelID snowflake.ID) error {
	vc := t.voiceConnection(guildID)
	if vc == nil {
		return ErrNotConnected
	}

	if err := vc.ChangeChannel(channelID.String(), false, true); err != nil {
		return fmt.Errorf("failed to change voice channel: %w", err)
	}
	return nil
}

// LeaveChannel stops playback and disconnects from voice.
func (t *VoiceTransport) LeaveChannel(_ context.Context, guildID snowflake.ID) error {
	t.stopSession(guildID)

	vc := t.voiceConnection(guildID)
	if vc == nil {
		return nil
	}

	if err := vc.Disconnect(); err != nil {
		return fmt.Errorf("failed to leave voice channel: %w", err)
	}
	return nil
}

// Close stops every running stream.
func (t *VoiceTransport) Close() {
	t.mu.Lock()
	guildIDs := make([]snowflake.ID, 0, len(t.sessions))
	for guildID := range t.sessions {
		guildIDs = append(guildIDs, guildID)
	}
	t.mu.Unlock()

	for _, guildID := range guildIDs {
		t.stopSession(guildID)
	}
}
