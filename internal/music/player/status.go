package player

import (
	"iter"
	"slices"

	"github.com/keshon/server-otaku/internal/music/track"
)

type State int

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Active reports whether a track is loaded (playing or paused).
func (s State) Active() bool {
	return s == StatePlaying || s == StatePaused
}

type PlayerStatus string

const (
	StatusPlaying    PlayerStatus = "Playing"
	StatusAdded      PlayerStatus = "Track(s) Added"
	StatusPaused     PlayerStatus = "Playback Paused"
	StatusResumed    PlayerStatus = "Playback Resumed"
	StatusSkipped    PlayerStatus = "Track Skipped"
	StatusStopped    PlayerStatus = "Playback Stopped"
	StatusQueueEnded PlayerStatus = "Queue Finished"
	StatusError      PlayerStatus = "Error"
)

func (status PlayerStatus) StringEmoji() string {
	m := map[PlayerStatus]string{
		StatusPlaying:    "▶️",
		StatusAdded:      "🎶",
		StatusPaused:     "⏸",
		StatusResumed:    "▶️",
		StatusSkipped:    "⏭",
		StatusStopped:    "⏹",
		StatusQueueEnded: "🏁",
		StatusError:      "❌",
	}
	return m[status]
}

// Event is what a session reports to the display side.
type Event struct {
	GuildID string
	Status  PlayerStatus
	Track   *track.Track
	Err     error
}

// View is a read-only snapshot of a session.
type View struct {
	GuildID string
	State   State
	Current *track.Track
	Queue   []track.Track
	Loop    bool
	Volume  int
}

// Upcoming iterates over the queued tracks of the snapshot.
func (v View) Upcoming() iter.Seq[track.Track] {
	return slices.Values(v.Queue)
}
