// Package live is the boundary to a streaming, full-duplex generation model:
// audio in, audio and transcripts out, tool calls in between.
package live

import (
	"context"
	"errors"

	"github.com/jmbento/omnicall-ai/internal/audio"
	"github.com/jmbento/omnicall-ai/internal/tools"
)

// ErrStreamClosed is returned by sends on a closed stream.
var ErrStreamClosed = errors.New("live stream closed")

// Config opens a streaming session.
type Config struct {
	Model               string
	AudioOut            bool
	Voice               string
	SystemInstruction   string
	Tools               []tools.Declaration
	InputTranscription  bool
	OutputTranscription bool
}

// ToolCall is a model request to run a tool. ID keys the response.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResponse answers one ToolCall.
type ToolResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// AudioChunk is PCM16 mono output audio.
type AudioChunk struct {
	Data       []byte
	SampleRate int
}

// ServerMessage carries zero or more events of one inbound message.
type ServerMessage struct {
	ToolCalls        []ToolCall
	InputTranscript  string
	OutputTranscript string
	Audio            []AudioChunk
	TurnComplete     bool
	Interrupted      bool
}

// Empty reports whether the message carries nothing the session acts on.
func (m ServerMessage) Empty() bool {
	return len(m.ToolCalls) == 0 && m.InputTranscript == "" && m.OutputTranscript == "" &&
		len(m.Audio) == 0 && !m.TurnComplete && !m.Interrupted
}

// Handler receives stream events. Calls for one stream are serialized:
// OnOpen first, then messages in arrival order, then at most one of OnClose
// or OnError.
type Handler interface {
	OnOpen()
	OnMessage(msg ServerMessage)
	OnClose(reason string)
	OnError(err error)
}

// Stream is the client side of an open session.
type Stream interface {
	// SendAudio enqueues a capture frame without waiting for delivery.
	SendAudio(f audio.Frame) error
	// SendToolResponses delivers responses in order.
	SendToolResponses(responses []ToolResponse) error
	// Close ends the session. Safe to call more than once.
	Close() error
}

// Dialer opens streams.
type Dialer interface {
	Dial(ctx context.Context, cfg Config, h Handler) (Stream, error)
}
