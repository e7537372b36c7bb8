// Package stream plays tracks into a Discord voice connection: ffmpeg
// decodes to 48 kHz stereo PCM, frames are scaled by the session volume,
// encoded to opus and sent over the voice connection.
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const (
	channels   = 2
	sampleRate = 48000
	frameSize  = 960 // 20ms at 48kHz
	frameBytes = frameSize * channels * 2

	frameDuration = 20 * time.Millisecond
)

// encoder is satisfied by *gopus.Encoder.
type encoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

// playback is one running track. It implements player.Handle.
type playback struct {
	title  string
	out    chan<- []byte
	enc    encoder
	reopen openFunc

	volume atomic.Int32
	paused atomic.Bool
	wake   chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
	exited   chan struct{}
	done     chan error

	srcMu    sync.Mutex
	src      source
	position time.Duration
	retries  int
	duration time.Duration // 0 for live streams
}

func newPlayback(title string, src source, reopen openFunc, out chan<- []byte, enc encoder, volume int, duration time.Duration) *playback {
	p := &playback{
		title:    title,
		out:      out,
		enc:      enc,
		reopen:   reopen,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		exited:   make(chan struct{}),
		done:     make(chan error, 1),
		src:      src,
		duration: duration,
	}
	p.volume.Store(int32(volume))
	return p
}

func (p *playback) Done() <-chan error { return p.done }

func (p *playback) start() {
	go func() {
		err := p.run()
		p.source().Kill()
		close(p.exited)
		p.done <- err
		close(p.done)
	}()
}

func (p *playback) pause() { p.paused.Store(true) }

func (p *playback) resume() {
	p.paused.Store(false)
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *playback) setVolume(v int) { p.volume.Store(int32(v)) }

// halt stops the frame loop and waits until it has exited.
func (p *playback) halt() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.source().Kill()
	<-p.exited
}

func (p *playback) source() source {
	p.srcMu.Lock()
	defer p.srcMu.Unlock()
	return p.src
}

func (p *playback) stopped() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}

// run streams until the input ends, a fault happens or halt is called.
// A halted playback reports nil.
func (p *playback) run() error {
	for {
		err := p.pump()
		if p.stopped() {
			return nil
		}
		if !errors.Is(err, io.EOF) {
			return err
		}

		exitErr := p.source().Wait()
		if exitErr == nil || p.nearEnd() {
			return nil
		}
		if !p.recover(exitErr) {
			return fmt.Errorf("decoder: %w", exitErr)
		}
	}
}

// pump moves frames from the source to the voice connection. It returns
// io.EOF when the source is drained.
func (p *playback) pump() error {
	src := p.source()
	pcm := make([]byte, frameBytes)
	samples := make([]int16, frameSize*channels)

	for {
		if err := p.waitWhilePaused(); err != nil {
			return err
		}

		n, err := io.ReadFull(src, pcm)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				// pad the last partial frame with silence
				clear(pcm[n:])
			} else {
				return io.EOF
			}
		}

		decode(pcm, samples)
		scale(samples, int(p.volume.Load()))

		packet, encErr := p.enc.Encode(samples, frameSize, frameBytes)
		if encErr != nil {
			return fmt.Errorf("encode error: %w", encErr)
		}

		select {
		case p.out <- packet:
			p.position += frameDuration
		case <-p.stop:
			return nil
		}

		if err != nil {
			return io.EOF
		}
	}
}

func (p *playback) waitWhilePaused() error {
	for p.paused.Load() {
		select {
		case <-p.stop:
			return errHalted
		case <-p.wake:
		}
	}
	if p.stopped() {
		return errHalted
	}
	return nil
}

var errHalted = errors.New("playback halted")

func decode(pcm []byte, samples []int16) {
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
}

// scale applies a 0..100 volume in place.
func scale(samples []int16, volume int) {
	if volume >= 100 {
		return
	}
	if volume <= 0 {
		clear(samples)
		return
	}
	for i, s := range samples {
		samples[i] = int16(int32(s) * int32(volume) / 100)
	}
}

func logf(format string, args ...any) {
	log.Printf("[Stream] "+format, args...)
}
