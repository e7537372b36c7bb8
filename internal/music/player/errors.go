package player

import (
	"errors"

	"github.com/keshon/server-otaku/internal/music/queue"
)

var (
	ErrOutOfRange            = queue.ErrOutOfRange
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrNoActiveTrack         = errors.New("no track is currently playing")
	ErrTrackResolutionFailed = errors.New("track could not be resolved")
	ErrTransportFault        = errors.New("audio transport failed")
	ErrAlreadyPaused         = errors.New("playback is already paused")
	ErrNotPaused             = errors.New("playback is not paused")
	ErrSessionClosed         = errors.New("player session is closed")
	ErrStartCancelled        = errors.New("playback was stopped before the track started")
)
