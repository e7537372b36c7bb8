package track

import (
	"time"
)

const (
	SourceYouTube = "youtube"
	SourceStream  = "stream"
	SourceSearch  = "search"
)

// Track describes one playable item. It is passed by value and never mutated
// after resolution.
type Track struct {
	Title       string
	Locator     string // URL or search query the user gave
	Duration    time.Duration
	RequestedBy string
	Source      string
	StreamURL   string // direct media URL when the resolver already knows it
}

// Display returns the best human-readable label for the track.
func (t Track) Display() string {
	switch {
	case t.Title != "":
		return t.Title
	case t.Locator != "":
		return t.Locator
	default:
		return "Unknown track"
	}
}

// DurationKnown reports whether the duration was resolved. Live streams stay unknown.
func (t Track) DurationKnown() bool {
	return t.Duration > 0
}
