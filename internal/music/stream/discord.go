package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/server-otaku/internal/music/player"
	"github.com/keshon/server-otaku/internal/music/track"
	"layeh.com/gopus"
)

var (
	ErrNoVoiceChannel = errors.New("no voice channel selected")
	ErrBadHandle      = errors.New("handle does not belong to this transport")
)

// URLSource finds a media URL ffmpeg can open for a track.
type URLSource interface {
	StreamURL(ctx context.Context, t track.Track) (string, error)
}

// Transport is the voice transport of one guild. The voice gate picks the
// channel with SetChannel before a track is started.
type Transport struct {
	session *discordgo.Session
	guildID string
	urls    URLSource

	// swapped in tests
	open       func(url string, seek time.Duration) (source, error)
	join       func(channelID string) (chan<- []byte, error)
	newEncoder func() (encoder, error)

	mu        sync.Mutex
	channelID string
	vc        *discordgo.VoiceConnection
}

var _ player.Transport = (*Transport)(nil)

func NewTransport(s *discordgo.Session, guildID string, urls URLSource) *Transport {
	t := &Transport{
		session:    s,
		guildID:    guildID,
		urls:       urls,
		open:       openFFmpeg,
		newEncoder: newOpusEncoder,
	}
	t.join = t.joinVoice
	return t
}

// SetChannel selects the voice channel used by the next Start. When the bot
// already sits in another channel of the guild it moves on the next Start.
func (t *Transport) SetChannel(channelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channelID = channelID
}

func (t *Transport) ChannelID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channelID
}

// Start resolves the media URL, joins voice and starts the frame loop. ctx
// bounds only those steps, not the playback.
func (t *Transport) Start(ctx context.Context, tr track.Track, volume int) (player.Handle, error) {
	channelID := t.ChannelID()
	if channelID == "" {
		return nil, ErrNoVoiceChannel
	}

	url, err := t.urls.StreamURL(ctx, tr)
	if err != nil {
		return nil, fmt.Errorf("%w: stream url: %w", player.ErrTrackResolutionFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := t.join(channelID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enc, err := t.newEncoder()
	if err != nil {
		return nil, err
	}

	src, err := t.open(url, 0)
	if err != nil {
		return nil, err
	}
	reopen := func(seek time.Duration) (source, error) { return t.open(url, seek) }

	p := newPlayback(tr.Display(), src, reopen, out, enc, volume, tr.Duration)
	t.speaking(true)
	p.start()
	go func() {
		<-p.exited
		t.speaking(false)
	}()

	logf("guild=%s playing %q", t.guildID, tr.Display())
	return p, nil
}

func (t *Transport) Pause(h player.Handle) error {
	p, err := t.playback(h)
	if err != nil {
		return err
	}
	p.pause()
	t.speaking(false)
	return nil
}

func (t *Transport) Resume(h player.Handle) error {
	p, err := t.playback(h)
	if err != nil {
		return err
	}
	t.speaking(true)
	p.resume()
	return nil
}

// Stop returns once the frame loop has exited.
func (t *Transport) Stop(h player.Handle) error {
	p, err := t.playback(h)
	if err != nil {
		return err
	}
	p.halt()
	return nil
}

func (t *Transport) SetVolume(h player.Handle, volume int) error {
	p, err := t.playback(h)
	if err != nil {
		return err
	}
	p.setVolume(volume)
	return nil
}

// Connected reports whether the transport holds a voice connection. It is
// false before the first join and after Close.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.vc != nil
}

// Close leaves the voice channel.
func (t *Transport) Close() error {
	t.mu.Lock()
	vc := t.vc
	t.vc = nil
	t.mu.Unlock()

	if vc == nil {
		return nil
	}
	logf("guild=%s leaving voice channel %s", t.guildID, vc.ChannelID)
	return vc.Disconnect()
}

func (t *Transport) playback(h player.Handle) (*playback, error) {
	p, ok := h.(*playback)
	if !ok || p == nil {
		return nil, ErrBadHandle
	}
	return p, nil
}

// joinVoice joins or moves to channelID and returns the opus sink.
func (t *Transport) joinVoice(channelID string) (chan<- []byte, error) {
	t.mu.Lock()
	vc := t.vc
	t.mu.Unlock()

	if vc != nil && vc.ChannelID == channelID {
		return vc.OpusSend, nil
	}

	vc, err := t.session.ChannelVoiceJoin(t.guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("join voice channel %s: %w", channelID, err)
	}

	t.mu.Lock()
	t.vc = vc
	t.mu.Unlock()
	return vc.OpusSend, nil
}

func (t *Transport) speaking(on bool) {
	t.mu.Lock()
	vc := t.vc
	t.mu.Unlock()
	if vc == nil {
		return
	}
	if err := vc.Speaking(on); err != nil {
		logf("guild=%s speaking(%v): %v", t.guildID, on, err)
	}
}

func newOpusEncoder() (encoder, error) {
	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("encoder error: %w", err)
	}
	return enc, nil
}
