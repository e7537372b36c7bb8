package player

import (
	"context"

	"github.com/keshon/server-otaku/internal/music/track"
)

// Transport is the audio side of a session: it turns a track into sound.
//
// The ctx given to Start bounds the start itself (lookups, joining voice);
// once Start returns, playback runs until Stop or until the media ends.
// Stop must not return before playback has stopped.
type Transport interface {
	Start(ctx context.Context, t track.Track, volume int) (Handle, error)
	Pause(h Handle) error
	Resume(h Handle) error
	Stop(h Handle) error
	SetVolume(h Handle, volume int) error
	Close() error
}

// Handle identifies one started playback.
type Handle interface {
	// Done delivers the playback result once: nil when the media ended,
	// an error when playback broke. The channel is closed afterwards.
	Done() <-chan error
}

// Resolver turns user input into playable tracks.
type Resolver interface {
	Resolve(ctx context.Context, input, requestedBy string) ([]track.Track, error)
}
