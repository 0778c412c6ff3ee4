package audio

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by devices used after Close.
var ErrClosed = errors.New("audio device closed")

// Input is a capture device delivering frames in temporal order.
type Input interface {
	// Open starts capture. The channel closes when the device closes.
	Open(ctx context.Context) (<-chan Frame, error)
	// Close releases the device. Safe to call more than once.
	Close() error
}

// Output is a playback device with its own clock.
type Output interface {
	Clock
	// Open prepares playback at sampleRate and starts the clock.
	Open(ctx context.Context, sampleRate int) error
	// Play queues pcm (PCM16 mono) to start at src.Start.
	Play(src Source, pcm []byte) error
	// Stop halts the given sources immediately.
	Stop(srcs []Source)
	// Close releases the device. Safe to call more than once.
	Close() error
}

// PipeInput is an Input fed by Push, for audio arriving over a network
// connection rather than a local microphone.
type PipeInput struct {
	mu     sync.Mutex
	ch     chan Frame
	closed bool
}

// NewPipeInput creates an input buffering up to size frames.
func NewPipeInput(size int) *PipeInput {
	if size <= 0 {
		size = 64
	}
	return &PipeInput{ch: make(chan Frame, size)}
}

// Open returns the frame channel. Opening after Close starts a fresh buffer,
// as reacquiring a microphone would.
func (p *PipeInput) Open(context.Context) (<-chan Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.ch = make(chan Frame, cap(p.ch))
		p.closed = false
	}
	return p.ch, nil
}

// Push enqueues a frame. It reports false when the buffer is full or the
// input is closed; the frame is dropped in both cases.
func (p *PipeInput) Push(f Frame) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.ch <- f:
		return true
	default:
		return false
	}
}

func (p *PipeInput) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	return nil
}

// WallClock is a Clock measuring time since Start.
type WallClock struct {
	mu    sync.Mutex
	start time.Time
	now   func() time.Time
}

// NewWallClock creates a stopped clock; Now returns 0 until Start.
func NewWallClock(now func() time.Time) *WallClock {
	if now == nil {
		now = time.Now
	}
	return &WallClock{now: now}
}

// Start sets the clock origin to the current time.
func (c *WallClock) Start() {
	c.mu.Lock()
	c.start = c.now()
	c.mu.Unlock()
}

func (c *WallClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.start.IsZero() {
		return 0
	}
	return c.now().Sub(c.start)
}
