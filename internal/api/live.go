package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jmbento/omnicall-ai/internal/appstate"
	"github.com/jmbento/omnicall-ai/internal/audio"
	"github.com/jmbento/omnicall-ai/internal/cartridge"
	"github.com/jmbento/omnicall-ai/internal/session"
	"github.com/jmbento/omnicall-ai/internal/tools"
)

const (
	maxInboundMessage = 1 << 20
	captureBuffer     = 64
	priorityBuffer    = 64
	audioBuffer       = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// audioHeader precedes every binary audio message.
type audioHeader struct {
	Type       string `json:"type"`
	ID         int    `json:"id"`
	StartMS    int64  `json:"start_ms"`
	DurationMS int64  `json:"duration_ms"`
	SampleRate int    `json:"sample_rate"`
}

type interruptedEvent struct {
	Type string `json:"type"`
	IDs  []int  `json:"ids"`
}

type stateEvent struct {
	Type     string             `json:"type"`
	Kind     appstate.EventKind `json:"kind"`
	Snapshot appstate.Snapshot  `json:"snapshot"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type controlMessage struct {
	Type string `json:"type"`
}

// socketOutput plays model audio by forwarding it to the browser, which
// schedules each chunk at its start offset on its own audio context.
type socketOutput struct {
	ctx      context.Context
	clock    *audio.WallClock
	priority chan<- outboundFrame
	normal   chan<- outboundFrame

	mu      sync.Mutex
	rate    int
	closed  bool
	stopped map[int]bool
}

func newSocketOutput(ctx context.Context, priority, normal chan<- outboundFrame) *socketOutput {
	return &socketOutput{
		ctx:      ctx,
		clock:    audio.NewWallClock(nil),
		priority: priority,
		normal:   normal,
		stopped:  make(map[int]bool),
	}
}

func (o *socketOutput) Now() time.Duration { return o.clock.Now() }

func (o *socketOutput) Open(_ context.Context, sampleRate int) error {
	o.mu.Lock()
	o.rate = sampleRate
	o.closed = false
	o.stopped = make(map[int]bool)
	o.mu.Unlock()
	o.clock.Start()
	return nil
}

func (o *socketOutput) Play(src audio.Source, pcm []byte) error {
	o.mu.Lock()
	closed, rate := o.closed, o.rate
	o.mu.Unlock()
	if closed {
		return audio.ErrClosed
	}

	header, err := json.Marshal(audioHeader{
		Type:       "audio",
		ID:         src.ID,
		StartMS:    src.Start.Milliseconds(),
		DurationMS: src.Duration.Milliseconds(),
		SampleRate: rate,
	})
	if err != nil {
		return err
	}
	select {
	case o.normal <- outboundFrame{text: header, audio: pcm, audioID: src.ID}:
		return nil
	case <-o.ctx.Done():
		return audio.ErrClosed
	}
}

func (o *socketOutput) Stop(srcs []audio.Source) {
	ids := make([]int, 0, len(srcs))
	o.mu.Lock()
	for _, s := range srcs {
		o.stopped[s.ID] = true
		ids = append(ids, s.ID)
	}
	o.mu.Unlock()

	payload, _ := json.Marshal(interruptedEvent{Type: "interrupted", IDs: ids})
	select {
	case o.priority <- outboundFrame{text: payload}:
	case <-o.ctx.Done():
	}
}

func (o *socketOutput) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return nil
}

// isStopped reports whether queued audio for id was interrupted and should
// not be written.
func (o *socketOutput) isStopped(id int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopped[id]
}

// handleLive bridges a browser WebSocket to one live session. Binary
// messages carry PCM16 capture audio; text messages carry control.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dialer == nil {
		Error(w, http.StatusServiceUnavailable, "live sessions are not configured")
		return
	}
	q := r.URL.Query()
	userID := q.Get("userId")
	if userID == "" {
		Error(w, http.StatusBadRequest, "userId is required")
		return
	}
	cartridgeID := q.Get("cartridgeId")
	if cartridgeID == "" {
		cartridgeID = cartridge.DefaultID
	}
	cart, err := s.deps.Catalog.Get(cartridgeID)
	if err != nil {
		s.fail(w, r, err, "Failed to load cartridge")
		return
	}
	if !cart.Active {
		Error(w, http.StatusBadRequest, "cartridge "+cart.ID+" is not active")
		return
	}
	rate := audio.CaptureRate
	if v := q.Get("rate"); v != "" {
		if rate, err = strconv.Atoi(v); err != nil || rate <= 0 {
			Error(w, http.StatusBadRequest, "rate must be a positive integer")
			return
		}
	}
	if err := s.deps.Credits.EnsureCanStart(r.Context(), userID); err != nil {
		s.fail(w, r, err, "Failed to check credits")
		return
	}
	var registry *tools.Registry
	if s.deps.Tools != nil {
		if registry, err = s.deps.Tools(cart.ID); err != nil {
			s.fail(w, r, err, "Failed to load tools")
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(maxInboundMessage)
	log := s.logger.With("user", userID, "cartridge", cart.ID)

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	priority := make(chan outboundFrame, priorityBuffer)
	normal := make(chan outboundFrame, audioBuffer)
	out := newSocketOutput(ctx, priority, normal)
	writer := &outboundWriter{ws: conn, ctx: ctx, priority: priority, normal: normal, isStopped: out.isStopped}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if err := writer.Run(); err != nil {
			log.Debug("live writer stopped", "error", err)
			_ = conn.Close()
		}
		cancel()
	}()

	state := appstate.New(cart.ID)
	events, unsubscribe := state.Subscribe()
	go forwardState(ctx, cancel, events, priority)

	in := audio.NewPipeInput(captureBuffer)
	orch, err := session.New(session.Deps{
		Dialer:      s.deps.Dialer,
		Registry:    registry,
		Persistence: s.deps.Persistence,
		Input:       in,
		Output:      out,
		State:       state,
		Cartridge:   cart,
		UserID:      userID,
		Config:      s.deps.SessionConfig,
		Logger:      s.logger,
		Metrics:     s.deps.Metrics,
	})
	if err == nil {
		err = orch.Start(ctx)
	}
	if err != nil {
		log.Warn("live session failed to start", "error", err)
		sendPriority(ctx, priority, errorEvent{Type: "error", Message: "failed to start live session"})
		unsubscribe()
		cancel()
		<-writerDone
		return
	}

	s.readLoop(conn, in, rate, log)

	orch.Stop()
	orch.Wait()
	unsubscribe()
	cancel()
	<-writerDone
	state.Close()
}

// readLoop feeds capture audio until the client stops or disconnects.
func (s *Server) readLoop(conn *websocket.Conn, in *audio.PipeInput, rate int, log *slog.Logger) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			s.deps.Metrics.RecordLiveAudio("in", len(data))
			if !in.Push(audio.Frame{Samples: audio.DecodePCM16(data), SampleRate: rate}) {
				s.deps.Metrics.RecordDroppedFrames(1)
			}
		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Debug("ignoring malformed control message", "error", err)
				continue
			}
			if msg.Type == "stop" {
				return
			}
		}
	}
}

// forwardState relays state changes to the client. A reset means the session
// ended, so the connection is closed after it is sent.
func forwardState(ctx context.Context, cancel context.CancelFunc, events <-chan appstate.Event, priority chan<- outboundFrame) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			sendPriority(ctx, priority, stateEvent{Type: "state", Kind: ev.Kind, Snapshot: ev.Snapshot})
			if ev.Kind == appstate.EventReset {
				cancel()
				return
			}
		}
	}
}

func sendPriority(ctx context.Context, priority chan<- outboundFrame, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case priority <- outboundFrame{text: payload}:
	case <-ctx.Done():
	}
}
