package audio

import (
	"slices"
	"time"
)

// Clock reports the playback context's current time.
type Clock interface {
	Now() time.Duration
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Duration

func (f ClockFunc) Now() time.Duration { return f() }

// Source is one scheduled chunk of output audio.
type Source struct {
	ID       int
	Start    time.Duration
	Duration time.Duration
}

// End is when the source finishes playing.
func (s Source) End() time.Duration { return s.Start + s.Duration }

// Scheduler assigns gapless, non-overlapping start times to output chunks.
// It is not safe for concurrent use; the session owning it serializes access.
type Scheduler struct {
	clock     Clock
	nextStart time.Duration
	nextID    int
	active    map[int]Source
}

// NewScheduler creates a scheduler reading time from clock.
func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{clock: clock, active: make(map[int]Source)}
}

// Schedule places a chunk of duration d at max(nextStart, now).
func (s *Scheduler) Schedule(d time.Duration) Source {
	start := max(s.nextStart, s.clock.Now())
	s.nextID++
	src := Source{ID: s.nextID, Start: start, Duration: d}
	s.nextStart = start + d
	s.active[src.ID] = src
	return src
}

// Ended removes a source that finished playing.
func (s *Scheduler) Ended(id int) {
	delete(s.active, id)
}

// Prune drops sources whose end lies before now.
func (s *Scheduler) Prune() {
	now := s.clock.Now()
	for id, src := range s.active {
		if src.End() <= now {
			delete(s.active, id)
		}
	}
}

// Interrupt discards every active source and resets the cursor to zero, so
// the next chunk starts at the clock's current time. It returns the
// discarded sources in id order for the caller to stop.
func (s *Scheduler) Interrupt() []Source {
	stopped := s.Active()
	clear(s.active)
	s.nextStart = 0
	return stopped
}

// Active returns the sources not yet ended, in id order.
func (s *Scheduler) Active() []Source {
	out := make([]Source, 0, len(s.active))
	for _, src := range s.active {
		out = append(out, src)
	}
	slices.SortFunc(out, func(a, b Source) int { return a.ID - b.ID })
	return out
}

// NextStart is the cursor: the earliest start of the next chunk.
func (s *Scheduler) NextStart() time.Duration { return s.nextStart }

// Reset clears all state, as on teardown.
func (s *Scheduler) Reset() {
	s.Interrupt()
	s.nextID = 0
}
