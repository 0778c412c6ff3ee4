package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmbento/omnicall-ai/internal/appstate"
	"github.com/jmbento/omnicall-ai/internal/audio"
	"github.com/jmbento/omnicall-ai/internal/cartridge"
	"github.com/jmbento/omnicall-ai/internal/live"
	"github.com/jmbento/omnicall-ai/internal/live/livetest"
	"github.com/jmbento/omnicall-ai/internal/models"
	"github.com/jmbento/omnicall-ai/internal/service"
	"github.com/jmbento/omnicall-ai/internal/store"
	"github.com/jmbento/omnicall-ai/internal/tools"
)

type harness struct {
	orch   *Orchestrator
	dialer *livetest.Dialer
	input  *audio.PipeInput
	output *livetest.Output
	store  *store.Memory
	pers   *Persistence
	state  *appstate.State
}

func newHarness(t *testing.T, mutate ...func(*Deps)) *harness {
	t.Helper()

	hotel, err := cartridge.Builtin().Get("h-concierge-1")
	require.NoError(t, err)
	reg, err := tools.ForCartridge(tools.DefaultBackends(), hotel.ID, hotel.Tools)
	require.NoError(t, err)

	h := &harness{
		dialer: &livetest.Dialer{},
		input:  audio.NewPipeInput(8),
		output: &livetest.Output{},
		store:  store.NewMemory(),
		state:  appstate.New(hotel.ID),
	}
	h.pers = NewPersistence(h.store, nil)

	deps := Deps{
		Dialer:      h.dialer,
		Registry:    reg,
		Persistence: h.pers,
		Input:       h.input,
		Output:      h.output,
		State:       h.state,
		Cartridge:   hotel,
		UserID:      "user-1",
		Config:      Config{ToolClearDelay: 20 * time.Millisecond},
	}
	for _, fn := range mutate {
		fn(&deps)
	}

	h.orch, err = New(deps)
	require.NoError(t, err)
	t.Cleanup(h.orch.Stop)
	return h
}

func (h *harness) startOpen(t *testing.T) *livetest.Stream {
	t.Helper()
	require.NoError(t, h.orch.Start(t.Context()))
	s := h.dialer.Last()
	require.NotNil(t, s)
	s.Open()
	require.Equal(t, Live, h.orch.Phase())
	return s
}

func (h *harness) messages(t *testing.T) []models.Message {
	t.Helper()
	require.NoError(t, h.pers.Drain(t.Context()))
	msgs, err := h.store.ListMessages(t.Context(), h.orch.SessionID())
	require.NoError(t, err)
	return msgs
}

func byRole(msgs []models.Message, role models.Role) []string {
	var out []string
	for _, m := range msgs {
		if m.Role == role {
			out = append(out, m.Content)
		}
	}
	return out
}

func TestNewValidatesDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)

	_, err = New(Deps{Dialer: &livetest.Dialer{}, Input: audio.NewPipeInput(1), Output: &livetest.Output{}})
	assert.Error(t, err, "cartridge required")
}

func TestStartDialsWithCartridgeConfig(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.orch.Start(t.Context()))
	assert.Equal(t, Connecting, h.orch.Phase())

	cfg := h.dialer.Config()
	assert.Equal(t, live.DefaultModel, cfg.Model)
	assert.Equal(t, "Zephyr", cfg.Voice)
	assert.True(t, cfg.AudioOut)
	assert.True(t, cfg.InputTranscription)
	assert.True(t, cfg.OutputTranscription)
	assert.Contains(t, cfg.SystemInstruction, "concierge")

	names := make([]string, 0, len(cfg.Tools))
	for _, d := range cfg.Tools {
		names = append(names, d.Name)
	}
	assert.ElementsMatch(t, []string{tools.CheckRoomAvailability, tools.SearchKnowledgeBase}, names)

	sessionID := h.orch.SessionID()
	require.NotEmpty(t, sessionID)
	sess, ok := h.store.Session(sessionID)
	require.True(t, ok)
	assert.Equal(t, models.ChannelVoice, sess.Channel)
	assert.Equal(t, sessionID, h.state.Snapshot().SessionID)

	h.dialer.Last().Open()
	assert.Equal(t, Live, h.orch.Phase())
	assert.Equal(t, "live", h.state.Snapshot().Phase)

	assert.ErrorIs(t, h.orch.Start(t.Context()), ErrAlreadyRunning)
}

func TestCaptureFramesPipedInOrder(t *testing.T) {
	h := newHarness(t)
	s := h.startOpen(t)

	for i := range 3 {
		require.True(t, h.input.Push(audio.Frame{Samples: make([]float32, 480*(i+1)), SampleRate: 48000}))
	}

	require.Eventually(t, func() bool { return len(s.Frames()) == 3 }, time.Second, 5*time.Millisecond)
	for i, f := range s.Frames() {
		assert.Equal(t, audio.CaptureRate, f.SampleRate)
		assert.Len(t, f.Samples, 160*(i+1), "frame %d resampled and in order", i)
	}
}

func TestTurnCompleteFlushesOneMessagePerRole(t *testing.T) {
	h := newHarness(t)
	s := h.startOpen(t)

	for _, frag := range []string{"What time", " is", " check-in?"} {
		s.Deliver(live.ServerMessage{InputTranscript: frag})
	}
	s.Deliver(live.ServerMessage{OutputTranscript: "Check-in "})
	s.Deliver(live.ServerMessage{OutputTranscript: "is at 3pm."})

	assert.Empty(t, h.messages(t), "fragments are not persisted individually")

	s.Deliver(live.ServerMessage{TurnComplete: true})
	msgs := h.messages(t)
	assert.Equal(t, []string{"What time is check-in?"}, byRole(msgs, models.RoleUser))
	assert.Equal(t, []string{"Check-in is at 3pm."}, byRole(msgs, models.RoleModel))

	s.Deliver(live.ServerMessage{TurnComplete: true})
	assert.Len(t, h.messages(t), 2, "buffers are empty after a flush")

	assert.Len(t, h.state.Transcript(), 5)
}

type failingSessions struct{ store.SessionStore }

func (failingSessions) CreateSession(context.Context, string, string, models.Channel) (string, error) {
	return "", errors.New("db down")
}

func TestSessionProceedsWithoutPersistence(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Persistence = NewPersistence(failingSessions{}, nil)
	})
	s := h.startOpen(t)

	assert.Empty(t, h.orch.SessionID())
	s.Deliver(live.ServerMessage{InputTranscript: "hello", TurnComplete: true})
	h.orch.Stop()
	assert.Equal(t, Idle, h.orch.Phase())
}

func TestToolCallsDispatchedSequentially(t *testing.T) {
	h := newHarness(t)
	s := h.startOpen(t)
	events, cancel := h.state.Subscribe()
	defer cancel()

	s.Deliver(live.ServerMessage{ToolCalls: []live.ToolCall{
		{ID: "c1", Name: tools.CheckRoomAvailability, Args: map[string]any{"date": "2026-12-01", "roomType": "deluxe"}},
		{ID: "c2", Name: "bookSpaceship", Args: map[string]any{}},
	}})

	require.Eventually(t, func() bool { return len(s.Responses()) == 2 }, time.Second, 5*time.Millisecond)
	resp := s.Responses()

	first := resp[0][0]
	assert.Equal(t, "c1", first.ID)
	assert.Equal(t, tools.CheckRoomAvailability, first.Name)
	avail, ok := first.Response["result"].(tools.Availability)
	require.True(t, ok)
	assert.True(t, avail.Available)

	second := resp[1][0]
	assert.Equal(t, "c2", second.ID)
	assert.Equal(t, map[string]any{"error": "Function not found"}, second.Response)

	widget := h.state.Snapshot().Widget
	require.NotNil(t, widget)
	assert.Equal(t, tools.WidgetHotel, widget.Kind)
	assert.Equal(t, "deluxe", widget.Data["roomType"])
	assert.Equal(t, true, widget.Data["available"])

	require.Eventually(t, func() bool { return h.orch.Phase() == Live }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.state.Snapshot().ActiveTool == "" }, time.Second, 5*time.Millisecond)

	sawTool := false
	for len(events) > 0 {
		if ev := <-events; ev.Kind == appstate.EventTool && ev.Snapshot.ActiveTool == tools.CheckRoomAvailability {
			sawTool = true
		}
	}
	assert.True(t, sawTool, "active tool was published")

	assert.Equal(t, []string{
		"Executing tool: " + tools.CheckRoomAvailability,
		"Executing tool: bookSpaceship",
	}, byRole(h.messages(t), models.RoleSystem))
}

func TestDispatchUnknownToolReturnsError(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, map[string]any{"error": "Function not found"}, h.orch.Dispatch(t.Context(), "nope", nil))

	bare := newHarness(t, func(d *Deps) { d.Registry = nil })
	assert.Equal(t, map[string]any{"error": "Function not found"}, bare.orch.Dispatch(t.Context(), "nope", nil))
}

func TestPlaybackScheduling(t *testing.T) {
	h := newHarness(t)
	s := h.startOpen(t)

	chunk := live.AudioChunk{Data: make([]byte, 4800), SampleRate: audio.PlaybackRate} // 100ms
	s.Deliver(live.ServerMessage{Audio: []live.AudioChunk{chunk, chunk}})
	s.Deliver(live.ServerMessage{Audio: []live.AudioChunk{chunk}})

	played := h.output.Played()
	require.Len(t, played, 3)
	for i := 1; i < len(played); i++ {
		assert.GreaterOrEqual(t, played[i].Start, played[i-1].End())
	}
	assert.Equal(t, 200*time.Millisecond, played[2].Start)

	h.output.SetNow(50 * time.Millisecond)
	s.Deliver(live.ServerMessage{Interrupted: true})
	assert.Len(t, h.output.Stopped(), 3)

	s.Deliver(live.ServerMessage{Audio: []live.AudioChunk{chunk}})
	played = h.output.Played()
	assert.Equal(t, 50*time.Millisecond, played[len(played)-1].Start, "restarts at now after interruption")
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t)
	s := h.startOpen(t)
	sessionID := h.orch.SessionID()

	s.Deliver(live.ServerMessage{InputTranscript: "half a sentence"})
	h.state.SetWidget(tools.WidgetHotel, map[string]any{"x": 1})

	h.orch.Stop()
	h.orch.Stop()
	s.ServerClose("late close")
	s.Fail(errors.New("late error"))

	assert.Equal(t, Idle, h.orch.Phase())
	assert.Equal(t, 1, s.Closes())
	_, closed := h.output.Counts()
	assert.Equal(t, 1, closed)

	snap := h.state.Snapshot()
	assert.Equal(t, "idle", snap.Phase)
	assert.Nil(t, snap.Widget)
	assert.Empty(t, snap.ActiveTool)

	require.NoError(t, h.pers.Drain(t.Context()))
	sess, ok := h.store.Session(sessionID)
	require.True(t, ok)
	assert.Equal(t, models.SessionEnded, sess.Status)
	msgs, err := h.store.ListMessages(t.Context(), sessionID)
	require.NoError(t, err)
	assert.Empty(t, msgs, "unflushed buffers are discarded")
}

func TestServerCloseAndErrorTearDown(t *testing.T) {
	tests := []struct {
		name string
		end  func(*livetest.Stream)
	}{
		{"close", func(s *livetest.Stream) { s.ServerClose("going away") }},
		{"error", func(s *livetest.Stream) { s.Fail(errors.New("boom")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			s := h.startOpen(t)

			tt.end(s)
			assert.Equal(t, Idle, h.orch.Phase())
			assert.Equal(t, 1, s.Closes())

			h.orch.Stop()
			assert.Equal(t, 1, s.Closes())
		})
	}
}

func TestDialFailureAllowsRetry(t *testing.T) {
	h := newHarness(t)
	h.dialer.FailNext(livetest.ErrDial)

	err := h.orch.Start(t.Context())
	require.ErrorIs(t, err, livetest.ErrDial)
	assert.Equal(t, Idle, h.orch.Phase())

	require.NoError(t, h.orch.Start(t.Context()))
	assert.Equal(t, 2, h.dialer.Dials())
	h.dialer.Last().Open()
	assert.Equal(t, Live, h.orch.Phase())
}

// blockingSessions holds CreateSession until release is closed.
type blockingSessions struct {
	*store.Memory
	entered chan struct{}
	release chan struct{}
	created string
}

func (b *blockingSessions) CreateSession(ctx context.Context, userID, cartridgeID string, channel models.Channel) (string, error) {
	select {
	case <-b.entered:
	default:
		close(b.entered)
	}
	<-b.release
	id, err := b.Memory.CreateSession(ctx, userID, cartridgeID, channel)
	b.created = id
	return id, err
}

func TestStopDuringSessionCreateEndsSession(t *testing.T) {
	sessions := &blockingSessions{
		Memory:  store.NewMemory(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	var pers *Persistence
	h := newHarness(t, func(d *Deps) {
		pers = NewPersistence(sessions, nil)
		d.Persistence = pers
	})

	errc := make(chan error, 1)
	go func() { errc <- h.orch.Start(t.Context()) }()

	<-sessions.entered
	h.orch.Stop()
	assert.Equal(t, Idle, h.orch.Phase())
	close(sessions.release)

	var err error
	select {
	case err = <-errc:
	case <-time.After(time.Second):
		t.Fatal("start did not return")
	}
	require.ErrorIs(t, err, ErrStopped)

	assert.Equal(t, Idle, h.orch.Phase())
	assert.Empty(t, h.orch.SessionID())
	assert.Empty(t, h.state.Snapshot().SessionID)
	assert.Zero(t, h.dialer.Dials())

	require.NoError(t, pers.Drain(t.Context()))
	require.NotEmpty(t, sessions.created)
	sess, ok := sessions.Session(sessions.created)
	require.True(t, ok)
	assert.Equal(t, models.SessionEnded, sess.Status)

	require.NoError(t, h.orch.Start(t.Context()))
	assert.Equal(t, 1, h.dialer.Dials())
}

func TestPhaseStaysToolPendingWhileBatchQueued(t *testing.T) {
	gates := map[string]chan struct{}{
		"a": make(chan struct{}),
		"b": make(chan struct{}),
	}
	reg, err := tools.NewRegistry(
		[]tools.Declaration{{Name: "wait", Description: "Blocks until released."}},
		map[string]tools.Func{
			"wait": func(ctx context.Context, args map[string]any) (any, error) {
				gate, _ := args["gate"].(string)
				select {
				case <-gates[gate]:
				case <-ctx.Done():
				}
				return gate, nil
			},
		},
	)
	require.NoError(t, err)

	h := newHarness(t, func(d *Deps) { d.Registry = reg })
	s := h.startOpen(t)

	s.Deliver(live.ServerMessage{ToolCalls: []live.ToolCall{{ID: "c1", Name: "wait", Args: map[string]any{"gate": "a"}}}})
	s.Deliver(live.ServerMessage{ToolCalls: []live.ToolCall{{ID: "c2", Name: "wait", Args: map[string]any{"gate": "b"}}}})
	assert.Equal(t, ToolPending, h.orch.Phase())

	close(gates["a"])
	require.Eventually(t, func() bool { return len(s.Responses()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return h.orch.Phase() == Live }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, ToolPending, h.orch.Phase())

	close(gates["b"])
	require.Eventually(t, func() bool { return h.orch.Phase() == Live }, time.Second, 5*time.Millisecond)
	resp := s.Responses()
	require.Len(t, resp, 2)
	assert.Equal(t, "c1", resp[0][0].ID)
	assert.Equal(t, "c2", resp[1][0].ID)
}

func TestStaleStreamEventsIgnored(t *testing.T) {
	h := newHarness(t)
	old := h.startOpen(t)
	h.orch.Stop()

	fresh := h.startOpen(t)
	old.ServerClose("stale")
	assert.Equal(t, Live, h.orch.Phase())
	assert.Zero(t, fresh.Closes())
}

func TestCreditsGateStart(t *testing.T) {
	var credits *service.Credits
	h := newHarness(t, func(d *Deps) {
		credits = service.NewCredits(store.NewMemory())
		d.Credits = credits
	})

	assert.ErrorIs(t, h.orch.Start(t.Context()), ErrNoCredits)
	assert.Zero(t, h.dialer.Dials())

	_, err := credits.Add(t.Context(), "user-1", 5)
	require.NoError(t, err)
	assert.NoError(t, h.orch.Start(t.Context()))
}
