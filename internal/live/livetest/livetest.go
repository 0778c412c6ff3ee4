// Package livetest provides an in-process live.Dialer for tests: the test
// drives server events and inspects what the client sent.
package livetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jmbento/omnicall-ai/internal/audio"
	"github.com/jmbento/omnicall-ai/internal/live"
)

// Dialer hands out Streams and remembers the last one.
type Dialer struct {
	mu      sync.Mutex
	err     error
	streams []*Stream
	configs []live.Config
}

// FailNext makes the next Dial return err.
func (d *Dialer) FailNext(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *Dialer) Dial(_ context.Context, cfg live.Config, h live.Handler) (live.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configs = append(d.configs, cfg)
	if d.err != nil {
		err := d.err
		d.err = nil
		return nil, err
	}
	s := &Stream{handler: h}
	d.streams = append(d.streams, s)
	return s, nil
}

// Last returns the most recent stream, or nil.
func (d *Dialer) Last() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

// Config returns the config of the most recent Dial.
func (d *Dialer) Config() live.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.configs) == 0 {
		return live.Config{}
	}
	return d.configs[len(d.configs)-1]
}

// Dials counts Dial calls, failed ones included.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.configs)
}

// Stream records client sends. Server events are delivered synchronously on
// the caller's goroutine.
type Stream struct {
	handler live.Handler

	mu        sync.Mutex
	frames    []audio.Frame
	responses [][]live.ToolResponse
	closes    int
	sendErr   error
}

// Open fires OnOpen.
func (s *Stream) Open() { s.handler.OnOpen() }

// Deliver fires OnMessage.
func (s *Stream) Deliver(m live.ServerMessage) { s.handler.OnMessage(m) }

// ServerClose fires OnClose.
func (s *Stream) ServerClose(reason string) { s.handler.OnClose(reason) }

// Fail fires OnError.
func (s *Stream) Fail(err error) { s.handler.OnError(err) }

// FailSends makes subsequent sends return err.
func (s *Stream) FailSends(err error) {
	s.mu.Lock()
	s.sendErr = err
	s.mu.Unlock()
}

func (s *Stream) SendAudio(f audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closes > 0 {
		return live.ErrStreamClosed
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *Stream) SendToolResponses(r []live.ToolResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closes > 0 {
		return live.ErrStreamClosed
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.responses = append(s.responses, r)
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// Frames returns the audio frames sent so far.
func (s *Stream) Frames() []audio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.Frame(nil), s.frames...)
}

// Responses returns the tool response batches sent so far.
func (s *Stream) Responses() [][]live.ToolResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]live.ToolResponse(nil), s.responses...)
}

// Closes counts Close calls.
func (s *Stream) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// ErrDial is a ready-made dial failure.
var ErrDial = errors.New("livetest: dial refused")

// Output is an audio.Output recording what was played.
type Output struct {
	mu      sync.Mutex
	now     time.Duration
	opened  int
	closes  int
	played  []audio.Source
	stopped []audio.Source
}

// SetNow sets the playback clock.
func (o *Output) SetNow(d time.Duration) {
	o.mu.Lock()
	o.now = d
	o.mu.Unlock()
}

func (o *Output) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *Output) Open(context.Context, int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened++
	return nil
}

func (o *Output) Play(src audio.Source, _ []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.played = append(o.played, src)
	return nil
}

func (o *Output) Stop(srcs []audio.Source) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = append(o.stopped, srcs...)
}

func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closes++
	return nil
}

// Played returns the scheduled sources in play order.
func (o *Output) Played() []audio.Source {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]audio.Source(nil), o.played...)
}

// Stopped returns every source stopped by an interruption.
func (o *Output) Stopped() []audio.Source {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]audio.Source(nil), o.stopped...)
}

// Counts returns how many times Open and Close were called.
func (o *Output) Counts() (opened, closed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened, o.closes
}
