package stream

import "time"

const (
	maxRecoveryAttempts = 3
	endTolerance        = 2 * time.Second
)

// nearEnd reports whether the track was practically over when the decoder
// died. Live streams are never near their end.
func (p *playback) nearEnd() bool {
	return p.duration > 0 && p.position >= p.duration-endTolerance
}

// recover reopens the decoder at the current position after it exited
// early, e.g. because the media host dropped the connection. It gives up
// after maxRecoveryAttempts.
func (p *playback) recover(cause error) bool {
	if p.reopen == nil || p.stopped() {
		return false
	}
	if p.retries >= maxRecoveryAttempts {
		logf("%q: max recovery attempts reached: %v", p.title, cause)
		return false
	}
	p.retries++

	seek := p.position
	if p.duration == 0 {
		seek = 0
	}
	logf("%q: stream ended prematurely (%v), reopening at %s (attempt %d)", p.title, cause, seek, p.retries)

	src, err := p.reopen(seek)
	if err != nil {
		logf("%q: recovery failed: %v", p.title, err)
		return false
	}

	p.srcMu.Lock()
	old := p.src
	p.src = src
	p.srcMu.Unlock()
	old.Kill()

	// halt may have raced with the reopen
	if p.stopped() {
		src.Kill()
		return false
	}
	return true
}
