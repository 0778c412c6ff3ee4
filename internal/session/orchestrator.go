// Package session runs one live voice conversation: it connects capture audio
// to a streaming model, plays the reply audio gaplessly, executes tool calls,
// and writes the transcript through a detached persistence adapter.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/jmbento/omnicall-ai/internal/appstate"
	"github.com/jmbento/omnicall-ai/internal/audio"
	"github.com/jmbento/omnicall-ai/internal/live"
	"github.com/jmbento/omnicall-ai/internal/metrics"
	"github.com/jmbento/omnicall-ai/internal/models"
	"github.com/jmbento/omnicall-ai/internal/service"
	"github.com/jmbento/omnicall-ai/internal/tools"
)

// Phase is the orchestrator state.
type Phase string

const (
	Idle        Phase = "idle"
	Connecting  Phase = "connecting"
	Live        Phase = "live"
	ToolPending Phase = "tool_pending"
	Closing     Phase = "closing"
	Error       Phase = "error"
)

var (
	// ErrAlreadyRunning is returned by Start outside Idle.
	ErrAlreadyRunning = errors.New("session already running")

	// ErrNoCredits is returned by Start when the user has no balance.
	ErrNoCredits = service.ErrNoCredits

	// ErrStopped is returned by Start when Stop ran while connecting.
	ErrStopped = errors.New("session stopped while connecting")
)

const defaultToolClearDelay = 1500 * time.Millisecond

// Config holds per-session tunables.
type Config struct {
	Model          string
	Voice          string // used when the cartridge names none
	CaptureRate    int
	PlaybackRate   int
	Channel        models.Channel
	ToolClearDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = live.DefaultModel
	}
	if c.CaptureRate <= 0 {
		c.CaptureRate = audio.CaptureRate
	}
	if c.PlaybackRate <= 0 {
		c.PlaybackRate = audio.PlaybackRate
	}
	if c.Channel == "" {
		c.Channel = models.ChannelVoice
	}
	if c.ToolClearDelay <= 0 {
		c.ToolClearDelay = defaultToolClearDelay
	}
	return c
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Dialer      live.Dialer
	Registry    *tools.Registry
	Persistence *Persistence
	Input       audio.Input
	Output      audio.Output
	State       *appstate.State
	Cartridge   models.Cartridge
	UserID      string

	// Credits, when set, gates Start on a positive balance.
	Credits *service.Credits

	Config  Config
	Logger  *slog.Logger
	Metrics *metrics.Registry
	Now     func() time.Time
}

// Orchestrator drives one live session. It is reusable: after teardown it is
// back in Idle and Start may be called again.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger

	// closeMu serializes teardown so a second Stop returns after the first
	// has finished.
	closeMu sync.Mutex

	mu        sync.Mutex
	phase     Phase
	gen       int
	stream    live.Stream
	opened    bool
	frames    <-chan audio.Frame
	cancel    context.CancelFunc
	runCtx    context.Context
	sessionID string
	userBuf   strings.Builder
	modelBuf  strings.Builder
	sched     *audio.Scheduler
	toolTail  chan struct{}
	timers    []*time.Timer
	startedAt time.Time
	wg        sync.WaitGroup
}

// New validates deps and returns an idle orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Dialer == nil:
		return nil, fmt.Errorf("new session: dialer is required")
	case deps.Input == nil:
		return nil, fmt.Errorf("new session: audio input is required")
	case deps.Output == nil:
		return nil, fmt.Errorf("new session: audio output is required")
	case deps.Cartridge.ID == "":
		return nil, fmt.Errorf("new session: cartridge is required")
	}
	if deps.State == nil {
		deps.State = appstate.New(deps.Cartridge.ID)
	}
	if deps.Persistence == nil {
		deps.Persistence = NewPersistence(nil, deps.Logger)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config.withDefaults()
	if deps.Cartridge.Voice != "" {
		cfg.Voice = deps.Cartridge.Voice
	}
	if cfg.Voice == "" {
		cfg.Voice = live.DefaultVoice
	}

	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With("cartridge", deps.Cartridge.ID, "user", deps.UserID),
		phase:  Idle,
		sched:  audio.NewScheduler(deps.Output),
	}, nil
}

// Phase returns the current state.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// SessionID returns the persisted session id, "" when none.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// State returns the observed application state.
func (o *Orchestrator) State() *appstate.State { return o.deps.State }

func (o *Orchestrator) setPhaseLocked(p Phase) {
	o.phase = p
	o.deps.State.SetPhase(string(p))
}

// Start connects the session. On a dial failure the orchestrator is torn
// down to Idle and the error returned, so the caller may retry.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.deps.Credits != nil {
		if err := o.deps.Credits.EnsureCanStart(ctx, o.deps.UserID); err != nil {
			return err
		}
	}

	o.mu.Lock()
	if o.phase != Idle {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.gen++
	gen := o.gen
	runCtx, cancel := context.WithCancel(ctx)
	o.runCtx = runCtx
	o.cancel = cancel
	o.opened = false
	o.toolTail = nil
	o.setPhaseLocked(Connecting)
	o.mu.Unlock()

	frames, err := o.deps.Input.Open(runCtx)
	if err != nil {
		o.teardown(gen, "error")
		return fmt.Errorf("open capture: %w", err)
	}
	if err := o.deps.Output.Open(runCtx, o.cfg.PlaybackRate); err != nil {
		o.teardown(gen, "error")
		return fmt.Errorf("open playback: %w", err)
	}

	sessionID := o.deps.Persistence.CreateSession(ctx, o.deps.UserID, o.deps.Cartridge.ID, o.cfg.Channel)
	o.mu.Lock()
	if o.gen != gen || o.phase != Connecting {
		// Teardown ran while the record was being created and could not end it.
		o.mu.Unlock()
		o.deps.Persistence.EndSession(sessionID)
		return ErrStopped
	}
	o.sessionID = sessionID
	o.frames = frames
	o.mu.Unlock()
	o.deps.State.SetSessionID(sessionID)

	var decls []tools.Declaration
	if o.deps.Registry != nil {
		decls = o.deps.Registry.Declarations()
	}
	stream, err := o.deps.Dialer.Dial(runCtx, live.Config{
		Model:               o.cfg.Model,
		AudioOut:            true,
		Voice:               o.cfg.Voice,
		SystemInstruction:   o.deps.Cartridge.SystemInstruction,
		Tools:               decls,
		InputTranscription:  true,
		OutputTranscription: true,
	}, &handler{o: o, gen: gen})
	if err != nil {
		o.teardown(gen, "error")
		return fmt.Errorf("dial live: %w", err)
	}

	o.mu.Lock()
	if o.gen != gen || o.phase == Closing || o.phase == Idle {
		o.mu.Unlock()
		_ = stream.Close()
		return ErrStopped
	}
	o.stream = stream
	o.startedAt = o.deps.Now()
	if o.opened {
		o.startPumpLocked()
	}
	o.mu.Unlock()

	o.deps.Metrics.RecordLiveSessionStart()
	o.logger.Info("live session connecting", "session", sessionID, "model", o.cfg.Model)
	return nil
}

// Stop tears the session down. It is safe in any state and idempotent.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	gen := o.gen
	o.mu.Unlock()
	o.teardown(gen, "stopped")
}

// Wait blocks until background tool work of past sessions has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Dispatch runs one tool through the registry. Unknown names and a missing
// registry resolve to {"error": "Function not found"}.
func (o *Orchestrator) Dispatch(ctx context.Context, name string, args map[string]any) map[string]any {
	return o.deps.Registry.Dispatch(ctx, name, args)
}

// handler binds stream callbacks to the Start call that opened the stream,
// so late events of a torn-down stream are ignored.
type handler struct {
	o   *Orchestrator
	gen int
}

func (h *handler) OnOpen()                        { h.o.onOpen(h.gen) }
func (h *handler) OnMessage(m live.ServerMessage) { h.o.onMessage(h.gen, m) }
func (h *handler) OnClose(reason string)          { h.o.onClose(h.gen, reason) }
func (h *handler) OnError(err error)              { h.o.onError(h.gen, err) }

func (o *Orchestrator) current(gen int) bool {
	return o.gen == gen && (o.phase == Connecting || o.phase == Live || o.phase == ToolPending)
}

func (o *Orchestrator) onOpen(gen int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.current(gen) {
		return
	}
	o.opened = true
	if o.phase == Connecting {
		o.setPhaseLocked(Live)
	}
	if o.stream != nil {
		o.startPumpLocked()
	}
	o.logger.Info("live session open", "session", o.sessionID)
}

// startPumpLocked pipes capture frames to the stream in order. Sends are
// enqueues; the stream owns backpressure.
func (o *Orchestrator) startPumpLocked() {
	frames, stream, ctx := o.frames, o.stream, o.runCtx
	if frames == nil {
		return
	}
	o.frames = nil
	rate := o.cfg.CaptureRate

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case f, ok := <-frames:
				if !ok {
					return
				}
				if err := stream.SendAudio(f.ToRate(rate)); err != nil {
					if errors.Is(err, live.ErrStreamClosed) {
						return
					}
					o.logger.Debug("send audio failed", "error", err)
				}
			}
		}
	}()
}

func (o *Orchestrator) onMessage(gen int, m live.ServerMessage) {
	o.mu.Lock()
	if !o.current(gen) {
		o.mu.Unlock()
		return
	}

	if m.Interrupted {
		stopped := o.sched.Interrupt()
		o.deps.Output.Stop(stopped)
		o.logger.Debug("playback interrupted", "stopped", len(stopped))
	}
	for _, chunk := range m.Audio {
		o.playLocked(chunk)
	}
	if m.InputTranscript != "" {
		o.userBuf.WriteString(m.InputTranscript)
	}
	if m.OutputTranscript != "" {
		o.modelBuf.WriteString(m.OutputTranscript)
	}

	var userText, modelText string
	if m.TurnComplete {
		userText = strings.TrimSpace(o.userBuf.String())
		modelText = strings.TrimSpace(o.modelBuf.String())
		o.userBuf.Reset()
		o.modelBuf.Reset()
	}
	sessionID := o.sessionID

	if len(m.ToolCalls) > 0 {
		o.setPhaseLocked(ToolPending)
		o.enqueueToolsLocked(gen, m.ToolCalls)
	}
	o.mu.Unlock()

	o.deps.State.AppendTranscript(models.RoleUser, m.InputTranscript)
	o.deps.State.AppendTranscript(models.RoleModel, m.OutputTranscript)
	if userText != "" {
		o.deps.Persistence.PersistMessage(sessionID, models.RoleUser, userText)
	}
	if modelText != "" {
		o.deps.Persistence.PersistMessage(sessionID, models.RoleModel, modelText)
	}
}

func (o *Orchestrator) playLocked(chunk live.AudioChunk) {
	if len(chunk.Data) == 0 {
		return
	}
	rate := chunk.SampleRate
	if rate <= 0 {
		rate = o.cfg.PlaybackRate
	}
	o.sched.Prune()
	src := o.sched.Schedule(audio.PCMDuration(chunk.Data, rate))
	if err := o.deps.Output.Play(src, chunk.Data); err != nil {
		o.sched.Ended(src.ID)
		o.logger.Warn("play audio failed", "error", err)
		return
	}
	o.deps.Metrics.RecordLiveAudio("out", len(chunk.Data))
}

// enqueueToolsLocked runs calls after every earlier batch, off the event
// goroutine.
func (o *Orchestrator) enqueueToolsLocked(gen int, calls []live.ToolCall) {
	prev := o.toolTail
	done := make(chan struct{})
	o.toolTail = done
	ctx := o.runCtx
	calls = append([]live.ToolCall(nil), calls...)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		o.runTools(ctx, gen, calls, done)
	}()
}

// runTools executes one batch. The phase returns to Live only when no later
// batch is queued behind this one.
func (o *Orchestrator) runTools(ctx context.Context, gen int, calls []live.ToolCall, done chan struct{}) {
	for _, call := range calls {
		o.mu.Lock()
		if !o.current(gen) {
			o.mu.Unlock()
			return
		}
		stream, sessionID := o.stream, o.sessionID
		o.mu.Unlock()

		o.deps.State.SetActiveTool(call.Name)
		o.deps.Persistence.PersistMessage(sessionID, models.RoleSystem, "Executing tool: "+call.Name)

		result := o.Dispatch(ctx, call.Name, call.Args)
		if kind := tools.WidgetFor(call.Name); kind != "" {
			o.deps.State.SetWidget(kind, widgetData(result, call.Args))
		}

		if stream != nil {
			err := stream.SendToolResponses([]live.ToolResponse{{ID: call.ID, Name: call.Name, Response: result}})
			if err != nil {
				o.logger.Warn("send tool response failed", "tool", call.Name, "error", err)
			}
		}
		o.scheduleToolClear(gen, call.Name)
	}

	o.mu.Lock()
	if o.gen == gen && o.phase == ToolPending && o.toolTail == done {
		o.setPhaseLocked(Live)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) scheduleToolClear(gen int, name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.current(gen) {
		return
	}
	state := o.deps.State
	o.timers = append(o.timers, time.AfterFunc(o.cfg.ToolClearDelay, func() {
		state.ClearActiveTool(name)
	}))
}

// widgetData merges the tool result with the call arguments, arguments
// winning, for the side panel.
func widgetData(result, args map[string]any) map[string]any {
	data := make(map[string]any)
	if v, ok := result["result"]; ok {
		maps.Copy(data, toMap(v))
	} else {
		maps.Copy(data, result)
	}
	maps.Copy(data, args)
	return data
}

func toMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"result": v}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{"result": v}
	}
	return m
}

func (o *Orchestrator) onClose(gen int, reason string) {
	o.logger.Info("live session closed by server", "reason", reason)
	o.teardown(gen, "closed")
}

func (o *Orchestrator) onError(gen int, err error) {
	o.mu.Lock()
	if o.current(gen) {
		o.setPhaseLocked(Error)
	}
	o.mu.Unlock()
	o.logger.Error("live session error", "error", err)
	o.teardown(gen, "error")
}

// teardown closes the stream and both audio devices, clears buffers and UI
// state, ends the persisted session and returns to Idle. Calls for a stale
// generation or an idle orchestrator do nothing.
func (o *Orchestrator) teardown(gen int, status string) {
	o.closeMu.Lock()
	defer o.closeMu.Unlock()

	o.mu.Lock()
	if o.gen != gen || o.phase == Idle {
		o.mu.Unlock()
		return
	}
	o.setPhaseLocked(Closing)
	stream, cancel, sessionID := o.stream, o.cancel, o.sessionID
	started := o.startedAt
	o.stream, o.cancel, o.frames = nil, nil, nil
	o.startedAt = time.Time{}
	stopped := o.sched.Interrupt()
	o.sched.Reset()
	o.userBuf.Reset()
	o.modelBuf.Reset()
	for _, t := range o.timers {
		t.Stop()
	}
	o.timers = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		if err := stream.Close(); err != nil {
			o.logger.Debug("close stream", "error", err)
		}
	}
	o.deps.Output.Stop(stopped)
	if err := o.deps.Output.Close(); err != nil {
		o.logger.Debug("close playback", "error", err)
	}
	if err := o.deps.Input.Close(); err != nil {
		o.logger.Debug("close capture", "error", err)
	}
	o.deps.State.ClearActiveTool("")
	o.deps.State.ClearWidget()
	o.deps.Persistence.EndSession(sessionID)
	if !started.IsZero() {
		o.deps.Metrics.RecordLiveSessionEnd(status, o.deps.Now().Sub(started))
	}

	o.mu.Lock()
	o.sessionID = ""
	o.opened = false
	o.setPhaseLocked(Idle)
	o.mu.Unlock()
	o.deps.State.Reset()
	o.logger.Info("live session ended", "session", sessionID, "status", status)
}
