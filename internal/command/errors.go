package command

import (
	"errors"
	"log"

	"github.com/keshon/server-otaku/internal/leveling"
	"github.com/keshon/server-otaku/internal/moderation"
	"github.com/keshon/server-otaku/internal/music/player"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrGuildOnly      = errors.New("this command only works in a server")
	ErrForbidden      = errors.New("missing permissions")
	ErrNotInVoice     = errors.New("you need to be in a voice channel")
	ErrMissingOption  = errors.New("missing option")
	ErrSelfTarget     = errors.New("you can't target yourself")
)

// errorReply turns a handler error into something safe to show the caller.
func errorReply(kind Kind, err error) Reply {
	msg := "Something went wrong, please try again later."
	switch {
	case errors.Is(err, player.ErrNoActiveTrack):
		msg = "Nothing is playing right now."
	case errors.Is(err, player.ErrAlreadyPaused):
		msg = "Playback is already paused."
	case errors.Is(err, player.ErrNotPaused):
		msg = "Playback isn't paused."
	case errors.Is(err, player.ErrOutOfRange):
		msg = "There is no track at that position."
	case errors.Is(err, player.ErrTrackResolutionFailed):
		msg = "Couldn't find anything playable for that input."
	case errors.Is(err, player.ErrTransportFault):
		msg = "Couldn't play that track. The audio connection failed."
	case errors.Is(err, player.ErrStartCancelled):
		msg = "Playback was stopped before the track started."
	case errors.Is(err, player.ErrSessionClosed):
		msg = "The player was just shut down, try again."
	case errors.Is(err, player.ErrInvalidArgument),
		errors.Is(err, moderation.ErrInvalidArgument),
		errors.Is(err, moderation.ErrEmptyReason),
		errors.Is(err, leveling.ErrInvalidAmount),
		errors.Is(err, ErrMissingOption),
		errors.Is(err, ErrSelfTarget),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrGuildOnly),
		errors.Is(err, ErrNotInVoice),
		errors.Is(err, ErrUnknownCommand):
		msg = err.Error()
	default:
		log.Printf("[ERR] %s failed: %v", kind.FullName(), err)
	}
	return Reply{Title: "❌ Error", Description: msg, Color: ColorError, Ephemeral: true}
}
