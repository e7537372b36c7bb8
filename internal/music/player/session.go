package player

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/keshon/server-otaku/internal/music/queue"
	"github.com/keshon/server-otaku/internal/music/track"
)

const (
	MinVolume = 0
	MaxVolume = 100

	defaultEventBuffer = 32
)

type Options struct {
	GuildID     string
	Transport   Transport
	Resolver    Resolver
	Volume      int
	Rand        *rand.Rand // shuffle source, nil for the global one
	EventBuffer int
}

// PlayResult tells the caller what Play did with the resolved tracks.
type PlayResult struct {
	Tracks   []track.Track
	Started  bool // first track started right away
	Position int  // 1-indexed queue position of the first queued track, 0 when started
}

// Session is the player of one guild. All state changes run on a single
// loop goroutine; public methods post work to it and wait for the result.
// Transport "finished" signals and start results go through the same
// mailbox; Transport.Start itself runs off the loop.
type Session struct {
	guildID   string
	transport Transport
	resolver  Resolver

	mailbox chan func()
	done    chan struct{}
	events  chan Event

	ctx    context.Context
	cancel context.CancelFunc

	view       atomic.Pointer[View]
	lastActive atomic.Int64

	// owned by the loop goroutine
	state    State
	queue    *queue.Queue
	current  *track.Track
	handle   Handle
	starting *pendingStart
	volume   int
	closing  bool
}

// New creates a session and starts its loop.
func New(opts Options) *Session {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	volume := opts.Volume
	if volume < MinVolume || volume > MaxVolume {
		volume = MaxVolume
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		guildID:   opts.GuildID,
		transport: opts.Transport,
		resolver:  opts.Resolver,
		mailbox:   make(chan func()),
		done:      make(chan struct{}),
		events:    make(chan Event, opts.EventBuffer),
		ctx:       ctx,
		cancel:    cancel,
		state:     StateIdle,
		queue:     queue.New(opts.Rand),
		volume:    volume,
	}
	s.touch()
	s.publish()

	go s.run()
	return s
}

func (s *Session) GuildID() string { return s.guildID }

// Events delivers status changes. The channel is closed when the session closes.
// Events are dropped when nobody reads them.
func (s *Session) Events() <-chan Event { return s.events }

// View returns the latest snapshot.
func (s *Session) View() View { return *s.view.Load() }

// LastActive is the time of the last command or playback change.
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

// Done is closed once the session has shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Play resolves input and either starts it (when idle) or queues it.
// Resolution runs outside the session loop.
func (s *Session) Play(ctx context.Context, input, requestedBy string) (PlayResult, error) {
	if s.resolver == nil {
		return PlayResult{}, fmt.Errorf("%w: no resolver configured", ErrTrackResolutionFailed)
	}

	tracks, err := s.resolver.Resolve(ctx, input, requestedBy)
	if err != nil {
		if errors.Is(err, ErrTrackResolutionFailed) {
			return PlayResult{}, err
		}
		return PlayResult{}, fmt.Errorf("%w: %w", ErrTrackResolutionFailed, err)
	}
	if len(tracks) == 0 {
		return PlayResult{}, fmt.Errorf("%w: nothing found for %q", ErrTrackResolutionFailed, input)
	}

	return s.PlayTracks(ctx, tracks...)
}

// PlayTracks is Play for already resolved tracks. When the session is idle
// the first track is started and PlayTracks waits, outside the loop, until
// the transport accepts or refuses it.
func (s *Session) PlayTracks(ctx context.Context, tracks ...track.Track) (PlayResult, error) {
	if len(tracks) == 0 {
		return PlayResult{}, fmt.Errorf("%w: no tracks given", ErrInvalidArgument)
	}

	var (
		result  PlayResult
		started <-chan error
	)
	err := s.do(ctx, func() error {
		result = PlayResult{Tracks: tracks}

		if s.state == StateIdle {
			first := tracks[0]
			for _, t := range tracks[1:] {
				s.queue.Enqueue(t)
			}
			started = s.beginStartLocked(first)
			result.Started = true
			log.Printf("[Player] guild=%s starting %q, queued %d more | QueueLen=%d", s.guildID, first.Display(), len(tracks)-1, s.queue.Len())
			return nil
		}

		result.Position = s.queue.Len() + 1
		for _, t := range tracks {
			s.queue.Enqueue(t)
		}
		s.emit(StatusAdded, &tracks[0], nil)
		log.Printf("[Player] guild=%s added %d track(s) to queue | QueueLen=%d", s.guildID, len(tracks), s.queue.Len())
		return nil
	})
	if err != nil || started == nil {
		return result, err
	}

	select {
	case err := <-started:
		return result, err
	case <-ctx.Done():
		return result, ctx.Err()
	}
}

// Pause suspends the current track.
func (s *Session) Pause(ctx context.Context) error {
	return s.do(ctx, func() error {
		switch s.state {
		case StatePaused:
			return ErrAlreadyPaused
		case StatePlaying:
		default:
			return ErrNoActiveTrack
		}

		// a starting track is paused once the transport confirms it
		if s.handle != nil {
			if err := s.transport.Pause(s.handle); err != nil {
				return fmt.Errorf("%w: %w", ErrTransportFault, err)
			}
		}
		s.state = StatePaused
		s.emit(StatusPaused, s.current, nil)
		return nil
	})
}

// Resume continues a paused track from where it stopped.
func (s *Session) Resume(ctx context.Context) error {
	return s.do(ctx, func() error {
		switch s.state {
		case StatePlaying:
			return ErrNotPaused
		case StatePaused:
		default:
			return ErrNoActiveTrack
		}

		if s.handle != nil {
			if err := s.transport.Resume(s.handle); err != nil {
				return fmt.Errorf("%w: %w", ErrTransportFault, err)
			}
		}
		s.state = StatePlaying
		s.emit(StatusResumed, s.current, nil)
		return nil
	})
}

// Skip stops the current track and moves to the next one. It returns the
// skipped track.
func (s *Session) Skip(ctx context.Context) (track.Track, error) {
	var skipped track.Track
	err := s.do(ctx, func() error {
		if !s.state.Active() || s.current == nil {
			return ErrNoActiveTrack
		}

		skipped = *s.current
		s.haltLocked()
		s.current = nil
		s.emit(StatusSkipped, &skipped, nil)
		s.advanceLocked()
		return nil
	})
	return skipped, err
}

// Stop ends playback, clears the queue and turns loop off. An in-flight
// transport start is cancelled first.
func (s *Session) Stop(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.resetLocked()
		s.state = StateIdle
		s.emit(StatusStopped, nil, nil)
		log.Printf("[Player] guild=%s stopped, queue cleared", s.guildID)
		return nil
	})
}

// Remove drops the queued track at a 1-indexed position.
func (s *Session) Remove(ctx context.Context, position int) (track.Track, error) {
	var removed track.Track
	err := s.do(ctx, func() error {
		t, err := s.queue.Remove(position)
		if err != nil {
			return err
		}
		removed = t
		return nil
	})
	return removed, err
}

// Shuffle permutes the waiting tracks. The current track is not affected.
func (s *Session) Shuffle(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.queue.Shuffle()
		return nil
	})
}

// ToggleLoop flips repeat of the current track and returns the new value.
func (s *Session) ToggleLoop(ctx context.Context) (bool, error) {
	var on bool
	err := s.do(ctx, func() error {
		on = s.queue.ToggleLoop()
		return nil
	})
	return on, err
}

func (s *Session) SetLoop(ctx context.Context, on bool) error {
	return s.do(ctx, func() error {
		s.queue.SetLoop(on)
		return nil
	})
}

// Clear empties the queue but keeps the current track playing.
func (s *Session) Clear(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.queue.Clear()
		if s.current != nil {
			s.queue.SetCurrent(*s.current)
		}
		return nil
	})
}

// SetVolume changes the session volume, 0..100 inclusive.
func (s *Session) SetVolume(ctx context.Context, volume int) error {
	if volume < MinVolume || volume > MaxVolume {
		return fmt.Errorf("%w: volume %d not in %d..%d", ErrInvalidArgument, volume, MinVolume, MaxVolume)
	}
	return s.do(ctx, func() error {
		s.volume = volume
		if s.handle != nil {
			if err := s.transport.SetVolume(s.handle, volume); err != nil {
				log.Printf("[Player] guild=%s failed to apply volume %d: %v", s.guildID, volume, err)
			}
		}
		return nil
	})
}

// Close stops playback, releases the transport and ends the loop. The
// session is unusable afterwards.
func (s *Session) Close() error {
	var closeErr error
	err := s.do(context.Background(), func() error {
		closeErr = s.closeLocked()
		return nil
	})
	if errors.Is(err, ErrSessionClosed) {
		return nil
	}
	<-s.done
	return closeErr
}

// CloseIfIdle closes the session when it has been idle for longer than
// timeout at now. The check and the close run as one loop step, so a track
// started in between keeps the session alive. The check itself does not
// count as activity.
func (s *Session) CloseIfIdle(now time.Time, timeout time.Duration) bool {
	var (
		closed   bool
		closeErr error
	)
	err := s.call(context.Background(), false, func() error {
		if s.state != StateIdle || s.starting != nil || now.Sub(s.LastActive()) <= timeout {
			return nil
		}
		closed = true
		closeErr = s.closeLocked()
		return nil
	})
	if err != nil || !closed {
		return false
	}
	<-s.done
	if closeErr != nil {
		log.Printf("[Player] guild=%s transport close error: %v", s.guildID, closeErr)
	}
	return true
}

// Closed reports whether the session loop has exited.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) closeLocked() error {
	s.resetLocked()
	s.state = StateStopped
	s.closing = true
	s.emit(StatusStopped, nil, nil)
	if s.transport != nil {
		return s.transport.Close()
	}
	return nil
}

// run is the session loop.
func (s *Session) run() {
	defer func() {
		s.cancel()
		s.publish()
		close(s.events)
		close(s.done)
		log.Printf("[Player] guild=%s session closed", s.guildID)
	}()

	for op := range s.mailbox {
		op()
		if s.closing {
			return
		}
	}
}

// do runs fn on the loop and waits for its result. Once the op is accepted
// it always runs, so ctx only bounds the wait for a free loop. The snapshot
// is published before the caller is released.
func (s *Session) do(ctx context.Context, fn func() error) error {
	return s.call(ctx, true, fn)
}

func (s *Session) call(ctx context.Context, touch bool, fn func() error) error {
	errCh := make(chan error, 1)
	op := func() {
		err := fn()
		if touch {
			s.touch()
		}
		s.publish()
		errCh <- err
	}

	select {
	case s.mailbox <- op:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-errCh
}

// post delivers an internal event without waiting for it. It reports false
// when the session is already closed.
func (s *Session) post(fn func()) bool {
	op := func() {
		fn()
		s.touch()
		s.publish()
	}
	select {
	case s.mailbox <- op:
		return true
	case <-s.done:
		return false
	}
}

// watch turns the transport's completion into a loop event.
func (s *Session) watch(h Handle) {
	err := <-h.Done()
	s.post(func() { s.onFinished(h, err) })
}

func (s *Session) onFinished(h Handle, err error) {
	if h != s.handle {
		// skip or stop got there first
		return
	}
	s.handle = nil

	if err != nil {
		fault := fmt.Errorf("%w: %w", ErrTransportFault, err)
		log.Printf("[Player] guild=%s playback of %q failed: %v", s.guildID, s.current.Display(), err)
		s.emit(StatusError, s.current, fault)
	}

	s.current = nil
	s.advanceLocked()
}

// advanceLocked starts the next queued track, or goes idle.
func (s *Session) advanceLocked() {
	next, ok := s.queue.DequeueNext()
	if !ok {
		s.current = nil
		s.state = StateIdle
		s.emit(StatusQueueEnded, nil, nil)
		log.Printf("[Player] guild=%s queue is empty, going idle", s.guildID)
		return
	}
	s.beginStartLocked(next)
}

// pendingStart is a Transport.Start in flight. It is current while
// s.starting points at it; any other result is stale.
type pendingStart struct {
	track  track.Track
	volume int
	cancel context.CancelFunc
	result chan error
}

// beginStartLocked makes t the current track and starts it off the loop.
// The returned channel receives the outcome once.
func (s *Session) beginStartLocked(t track.Track) <-chan error {
	ctx, cancel := context.WithCancel(s.ctx)
	p := &pendingStart{
		track:  t,
		volume: s.volume,
		cancel: cancel,
		result: make(chan error, 1),
	}
	s.starting = p
	s.current = &t
	s.state = StatePlaying
	s.queue.SetCurrent(t)

	go s.start(ctx, p)
	return p.result
}

func (s *Session) start(ctx context.Context, p *pendingStart) {
	h, err := s.transport.Start(ctx, p.track, p.volume)
	p.cancel()
	if !s.post(func() { s.onStarted(p, h, err) }) && h != nil {
		s.stopStale(h)
	}
}

func (s *Session) onStarted(p *pendingStart, h Handle, err error) {
	if s.starting != p {
		// stop, skip or close got there first
		if h != nil {
			s.stopStale(h)
		}
		return
	}
	s.starting = nil

	if err != nil {
		if !errors.Is(err, ErrTrackResolutionFailed) {
			err = fmt.Errorf("%w: %w", ErrTransportFault, err)
		}
		log.Printf("[Player] guild=%s skipping %q: %v", s.guildID, p.track.Display(), err)
		s.emit(StatusError, &p.track, err)
		s.current = nil
		// Do not let loop replay a track the transport refused.
		s.queue.Forget()
		s.advanceLocked()
		s.publish()
		p.result <- err
		return
	}

	s.handle = h
	if s.state == StatePaused {
		if err := s.transport.Pause(h); err != nil {
			log.Printf("[Player] guild=%s failed to pause %q: %v", s.guildID, p.track.Display(), err)
		}
	}
	if s.volume != p.volume {
		if err := s.transport.SetVolume(h, s.volume); err != nil {
			log.Printf("[Player] guild=%s failed to apply volume %d: %v", s.guildID, s.volume, err)
		}
	}
	go s.watch(h)

	s.emit(StatusPlaying, &p.track, nil)
	s.publish()
	p.result <- nil
}

func (s *Session) stopStale(h Handle) {
	if err := s.transport.Stop(h); err != nil {
		log.Printf("[Player] guild=%s transport stop error: %v", s.guildID, err)
	}
}

// cancelStartLocked abandons a start in flight. Its handle, if the
// transport still produces one, is stopped when the result arrives.
func (s *Session) cancelStartLocked() {
	p := s.starting
	if p == nil {
		return
	}
	s.starting = nil
	p.cancel()
	p.result <- ErrStartCancelled
}

func (s *Session) stopHandleLocked() {
	if s.handle == nil {
		return
	}
	h := s.handle
	s.handle = nil
	if err := s.transport.Stop(h); err != nil {
		log.Printf("[Player] guild=%s transport stop error: %v", s.guildID, err)
	}
}

func (s *Session) haltLocked() {
	s.cancelStartLocked()
	s.stopHandleLocked()
}

func (s *Session) resetLocked() {
	s.haltLocked()
	s.current = nil
	s.queue.Clear()
	s.queue.SetLoop(false)
}

func (s *Session) emit(status PlayerStatus, t *track.Track, err error) {
	evt := Event{GuildID: s.guildID, Status: status, Err: err}
	if t != nil {
		cp := *t
		evt.Track = &cp
	}
	select {
	case s.events <- evt:
	default:
		log.Printf("[Player] guild=%s status signal dropped (channel full) - %s", s.guildID, status)
	}
}

func (s *Session) publish() {
	v := View{
		GuildID: s.guildID,
		State:   s.state,
		Queue:   s.queue.Tracks(),
		Loop:    s.queue.Loop(),
		Volume:  s.volume,
	}
	if s.current != nil {
		cp := *s.current
		v.Current = &cp
	}
	s.view.Store(&v)
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}
