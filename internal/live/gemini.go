package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/jmbento/omnicall-ai/internal/audio"
	"github.com/jmbento/omnicall-ai/internal/metrics"
	"github.com/jmbento/omnicall-ai/internal/tools"
)

const (
	// DefaultModel is the native-audio live model.
	DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

	// DefaultVoice is the prebuilt output voice.
	DefaultVoice = "Zephyr"

	defaultQueueSize = 64
)

// session is the subset of *genai.Session used by the stream.
type session interface {
	SendRealtimeInput(genai.LiveRealtimeInput) error
	SendToolResponse(genai.LiveToolResponseInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

// GeminiDialer opens Gemini Live sessions.
type GeminiDialer struct {
	client    *genai.Client
	queueSize int
	metrics   *metrics.Registry
	logger    *slog.Logger
}

// NewGeminiDialer creates a dialer using the Gemini API backend.
func NewGeminiDialer(ctx context.Context, apiKey string, reg *metrics.Registry, logger *slog.Logger) (*GeminiDialer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini live: GEMINI_API_KEY is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1beta"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiDialer{client: client, queueSize: defaultQueueSize, metrics: reg, logger: logger}, nil
}

// Dial connects and starts the receive and send goroutines.
func (d *GeminiDialer) Dial(ctx context.Context, cfg Config, h Handler) (Stream, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	sess, err := d.client.Live.Connect(ctx, model, connectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("live connect: %w", err)
	}
	d.logger.Debug("live session connected", "model", model, "tools", len(cfg.Tools))
	return newGeminiStream(sess, h, d.queueSize, d.metrics, d.logger), nil
}

func connectConfig(cfg Config) *genai.LiveConnectConfig {
	out := &genai.LiveConnectConfig{}
	if cfg.AudioOut {
		out.ResponseModalities = []genai.Modality{genai.ModalityAudio}
		voice := cfg.Voice
		if voice == "" {
			voice = DefaultVoice
		}
		out.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		}
	} else {
		out.ResponseModalities = []genai.Modality{genai.ModalityText}
	}
	if cfg.SystemInstruction != "" {
		out.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	if len(cfg.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(cfg.Tools))
		for i, t := range cfg.Tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenaiSchema(t.Parameters),
			}
		}
		out.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if cfg.InputTranscription {
		out.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		out.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return out
}

func toGenaiSchema(s *tools.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(s.Type)),
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       toGenaiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = toGenaiSchema(p)
		}
	}
	return out
}

// geminiStream serializes all writes through one goroutine: gorilla
// connections allow a single concurrent writer. Audio goes through a bounded
// queue that drops the oldest frame when full; tool responses never drop.
type geminiStream struct {
	sess    session
	handler Handler
	metrics *metrics.Registry
	logger  *slog.Logger

	audioQ   chan audio.Frame
	controlQ chan []ToolResponse
	done     chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
	dropped   int
}

func newGeminiStream(sess session, h Handler, queueSize int, reg *metrics.Registry, logger *slog.Logger) *geminiStream {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	s := &geminiStream{
		sess:     sess,
		handler:  h,
		metrics:  reg,
		logger:   logger,
		audioQ:   make(chan audio.Frame, queueSize),
		controlQ: make(chan []ToolResponse, 16),
		done:     make(chan struct{}),
	}
	go s.writeLoop()
	go s.readLoop()
	return s
}

func (s *geminiStream) SendAudio(f audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	for {
		select {
		case s.audioQ <- f:
			return nil
		default:
		}
		// Full: drop the oldest queued frame and retry.
		select {
		case <-s.audioQ:
			s.dropped++
			s.metrics.RecordDroppedFrames(1)
		default:
		}
	}
}

func (s *geminiStream) SendToolResponses(responses []ToolResponse) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	s.mu.Unlock()

	select {
	case s.controlQ <- responses:
		return nil
	case <-s.done:
		return ErrStreamClosed
	}
}

func (s *geminiStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		err = s.sess.Close()
	})
	return err
}

func (s *geminiStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Dropped reports how many audio frames were discarded on overflow.
func (s *geminiStream) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *geminiStream) writeLoop() {
	for {
		// Tool responses first.
		select {
		case <-s.done:
			return
		case r := <-s.controlQ:
			s.writeToolResponses(r)
			continue
		default:
		}

		select {
		case <-s.done:
			return
		case r := <-s.controlQ:
			s.writeToolResponses(r)
		case f := <-s.audioQ:
			pcm := audio.EncodePCM16(f.Samples)
			err := s.sess.SendRealtimeInput(genai.LiveRealtimeInput{
				Audio: &genai.Blob{Data: pcm, MIMEType: audio.MimeType(f.SampleRate)},
			})
			if err != nil {
				if !s.isClosed() {
					s.logger.Debug("send audio failed", "error", err)
				}
				continue
			}
			s.metrics.RecordLiveAudio("in", len(pcm))
		}
	}
}

func (s *geminiStream) writeToolResponses(responses []ToolResponse) {
	frs := make([]*genai.FunctionResponse, len(responses))
	for i, r := range responses {
		frs[i] = &genai.FunctionResponse{ID: r.ID, Name: r.Name, Response: r.Response}
	}
	if err := s.sess.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: frs}); err != nil && !s.isClosed() {
		s.logger.Warn("send tool response failed", "count", len(frs), "error", err)
	}
}

func (s *geminiStream) readLoop() {
	opened := false
	for {
		msg, err := s.sess.Receive()
		if err != nil {
			switch {
			case s.isClosed():
				s.handler.OnClose("closed by client")
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				var ce *websocket.CloseError
				reason := "closed by server"
				if errors.As(err, &ce) && ce.Text != "" {
					reason = ce.Text
				}
				s.handler.OnClose(reason)
			default:
				s.handler.OnError(err)
			}
			return
		}

		if !opened {
			opened = true
			s.handler.OnOpen()
		}
		if out := convertMessage(msg); !out.Empty() {
			for _, a := range out.Audio {
				s.metrics.RecordLiveAudio("out", len(a.Data))
			}
			s.handler.OnMessage(out)
		}
		if msg.GoAway != nil {
			s.logger.Info("live server going away", "time_left", msg.GoAway.TimeLeft)
		}
	}
}

func convertMessage(msg *genai.LiveServerMessage) ServerMessage {
	var out ServerMessage
	if msg == nil {
		return out
	}
	if msg.ToolCall != nil {
		for _, fc := range msg.ToolCall.FunctionCalls {
			if fc == nil {
				continue
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	sc := msg.ServerContent
	if sc == nil {
		return out
	}
	if sc.InputTranscription != nil {
		out.InputTranscript = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		out.OutputTranscript = sc.OutputTranscription.Text
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			out.Audio = append(out.Audio, AudioChunk{
				Data:       p.InlineData.Data,
				SampleRate: rateFromMime(p.InlineData.MIMEType, audio.PlaybackRate),
			})
		}
	}
	out.TurnComplete = sc.TurnComplete
	out.Interrupted = sc.Interrupted
	return out
}

// rateFromMime parses "audio/pcm;rate=24000".
func rateFromMime(mime string, fallback int) int {
	_, params, ok := strings.Cut(mime, "rate=")
	if !ok {
		return fallback
	}
	if i := strings.IndexByte(params, ';'); i >= 0 {
		params = params[:i]
	}
	rate, err := strconv.Atoi(strings.TrimSpace(params))
	if err != nil || rate <= 0 {
		return fallback
	}
	return rate
}
