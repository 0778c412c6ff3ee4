// Package appstate is the application state shared by a live session and its
// observers. A State is created at startup, mutated only through its methods,
// and observed through Subscribe.
package appstate

import (
	"sync"

	"github.com/jmbento/omnicall-ai/internal/models"
)

// EventKind names what changed.
type EventKind string

const (
	EventCartridge  EventKind = "cartridge"
	EventSession    EventKind = "session"
	EventLive       EventKind = "state"
	EventTool       EventKind = "tool"
	EventWidget     EventKind = "widget"
	EventTranscript EventKind = "transcript"
	EventReset      EventKind = "reset"
)

// TranscriptEntry is one displayed transcript fragment.
type TranscriptEntry struct {
	Role models.Role `json:"role"`
	Text string      `json:"text"`
}

// Widget is the side panel driven by a tool result.
type Widget struct {
	Kind string         `json:"kind"`
	Data map[string]any `json:"data,omitempty"`
}

// Snapshot is a copy of the state at one point in time.
type Snapshot struct {
	CartridgeID string            `json:"cartridge_id"`
	SessionID   string            `json:"session_id,omitempty"`
	Phase       string            `json:"phase"`
	ActiveTool  string            `json:"active_tool,omitempty"`
	Widget      *Widget           `json:"widget,omitempty"`
	Transcript  []TranscriptEntry `json:"transcript,omitempty"`
}

// Event is delivered to subscribers after every mutation.
type Event struct {
	Kind     EventKind `json:"kind"`
	Snapshot Snapshot  `json:"snapshot"`
}

const subscriberBuffer = 32

// State holds the mutable application state.
type State struct {
	mu      sync.Mutex
	snap    Snapshot
	subs    map[int]chan Event
	nextSub int
}

// New creates a state with cartridgeID selected.
func New(cartridgeID string) *State {
	return &State{
		snap: Snapshot{CartridgeID: cartridgeID, Phase: "idle"},
		subs: make(map[int]chan Event),
	}
}

// Subscribe returns a channel of events and a function that cancels the
// subscription. Slow subscribers miss events rather than block writers.
func (s *State) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, subscriberBuffer)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// update applies fn under the lock and notifies subscribers.
func (s *State) update(kind EventKind, fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
	ev := Event{Kind: kind, Snapshot: s.copyLocked()}
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *State) copyLocked() Snapshot {
	c := s.snap
	c.Transcript = append([]TranscriptEntry(nil), s.snap.Transcript...)
	if s.snap.Widget != nil {
		w := *s.snap.Widget
		c.Widget = &w
	}
	return c
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *State) SetActiveCartridge(id string) {
	s.update(EventCartridge, func(sn *Snapshot) { sn.CartridgeID = id })
}

func (s *State) ActiveCartridge() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.CartridgeID
}

func (s *State) SetSessionID(id string) {
	s.update(EventSession, func(sn *Snapshot) { sn.SessionID = id })
}

// SetPhase records the orchestrator phase (idle, connecting, live...).
func (s *State) SetPhase(phase string) {
	s.update(EventLive, func(sn *Snapshot) { sn.Phase = phase })
}

// SetLive is shorthand for the live and idle phases.
func (s *State) SetLive(live bool) {
	if live {
		s.SetPhase("live")
		return
	}
	s.SetPhase("idle")
}

// Live reports whether the phase is live or a tool is pending.
func (s *State) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Phase == "live" || s.snap.Phase == "tool_pending"
}

func (s *State) SetActiveTool(name string) {
	s.update(EventTool, func(sn *Snapshot) { sn.ActiveTool = name })
}

// ClearActiveTool clears the active tool only if it is still name, so a late
// timer from an earlier call does not clear a newer one.
func (s *State) ClearActiveTool(name string) {
	s.update(EventTool, func(sn *Snapshot) {
		if name == "" || sn.ActiveTool == name {
			sn.ActiveTool = ""
		}
	})
}

func (s *State) SetWidget(kind string, data map[string]any) {
	s.update(EventWidget, func(sn *Snapshot) { sn.Widget = &Widget{Kind: kind, Data: data} })
}

func (s *State) ClearWidget() {
	s.update(EventWidget, func(sn *Snapshot) { sn.Widget = nil })
}

// AppendTranscript adds a displayed fragment.
func (s *State) AppendTranscript(role models.Role, text string) {
	if text == "" {
		return
	}
	s.update(EventTranscript, func(sn *Snapshot) {
		sn.Transcript = append(sn.Transcript, TranscriptEntry{Role: role, Text: text})
	})
}

func (s *State) Transcript() []TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TranscriptEntry(nil), s.snap.Transcript...)
}

// Reset returns to idle, keeping the selected cartridge and the transcript.
func (s *State) Reset() {
	s.update(EventReset, func(sn *Snapshot) {
		sn.SessionID = ""
		sn.Phase = "idle"
		sn.ActiveTool = ""
		sn.Widget = nil
	})
}

// Close ends all subscriptions.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
