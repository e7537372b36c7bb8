// Package queue holds the ordered list of tracks waiting to be played.
//
// A Queue is not safe for concurrent use; the owning player session serializes
// every call.
package queue

import (
	"errors"
	"fmt"
	"iter"
	"math/rand/v2"
	"slices"

	"github.com/keshon/server-otaku/internal/music/track"
)

var ErrOutOfRange = errors.New("queue position out of range")

type Queue struct {
	items []track.Track
	loop  bool
	last  *track.Track // most recent DequeueNext result, replayed while loop is on
	rng   *rand.Rand
}

// New creates an empty queue. A nil rng falls back to the global source.
func New(rng *rand.Rand) *Queue {
	return &Queue{rng: rng}
}

// Enqueue appends a track and returns the new length.
func (q *Queue) Enqueue(t track.Track) int {
	q.items = append(q.items, t)
	return len(q.items)
}

// DequeueNext removes and returns the front track. With loop on, the track
// returned by the previous call is put back at the front first, so it is
// returned again and the rest of the queue is left alone.
func (q *Queue) DequeueNext() (track.Track, bool) {
	if q.loop && q.last != nil {
		q.items = slices.Insert(q.items, 0, *q.last)
	}

	if len(q.items) == 0 {
		q.last = nil
		return track.Track{}, false
	}

	next := q.items[0]
	q.items[0] = track.Track{}
	q.items = q.items[1:]
	q.last = &next
	return next, true
}

// Remove deletes the track at a 1-indexed position.
func (q *Queue) Remove(position int) (track.Track, error) {
	if position < 1 || position > len(q.items) {
		return track.Track{}, fmt.Errorf("%w: %d not in 1..%d", ErrOutOfRange, position, len(q.items))
	}
	idx := position - 1
	removed := q.items[idx]
	q.items = slices.Delete(q.items, idx, idx+1)
	return removed, nil
}

// Shuffle applies a Fisher–Yates permutation to the waiting tracks.
func (q *Queue) Shuffle() {
	swap := func(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }
	if q.rng != nil {
		q.rng.Shuffle(len(q.items), swap)
		return
	}
	rand.Shuffle(len(q.items), swap)
}

// PeekAll returns a read-only view over a snapshot of the queue. Ranging over
// it twice yields the same tracks.
func (q *Queue) PeekAll() iter.Seq[track.Track] {
	snapshot := slices.Clone(q.items)
	return slices.Values(snapshot)
}

// Tracks returns a copy of the waiting tracks.
func (q *Queue) Tracks() []track.Track {
	return slices.Clone(q.items)
}

func (q *Queue) Len() int { return len(q.items) }

func (q *Queue) Loop() bool { return q.loop }

func (q *Queue) SetLoop(on bool) { q.loop = on }

// ToggleLoop flips the loop flag and returns the new value.
func (q *Queue) ToggleLoop() bool {
	q.loop = !q.loop
	return q.loop
}

// Clear drops every waiting track and forgets the looped one.
func (q *Queue) Clear() {
	q.items = nil
	q.last = nil
}

// SetCurrent records a track that started playing without passing through
// DequeueNext, so loop can replay it.
func (q *Queue) SetCurrent(t track.Track) {
	q.last = &t
}

// Forget drops the looped track without touching the waiting ones.
func (q *Queue) Forget() {
	q.last = nil
}
