package api

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval = 20 * time.Second
	writeTimeout = 5 * time.Second
)

type wsConn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// outboundFrame is a text event, or a text header followed by binary audio.
type outboundFrame struct {
	text    []byte
	audio   []byte
	audioID int
}

// outboundWriter is the only goroutine writing to the socket. Priority
// frames (interruptions, state) always go before queued audio.
type outboundWriter struct {
	ws        wsConn
	ctx       context.Context
	priority  <-chan outboundFrame
	normal    <-chan outboundFrame
	isStopped func(id int) bool
}

func (w *outboundWriter) Run() error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.flushPriority()
			_ = w.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
			return w.ws.Close()
		default:
		}

		select {
		case f := <-w.priority:
			if err := w.write(f); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case <-w.ctx.Done():
		case <-ticker.C:
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				return err
			}
		case f := <-w.priority:
			if err := w.write(f); err != nil {
				return err
			}
		case f := <-w.normal:
			if err := w.write(f); err != nil {
				return err
			}
		}
	}
}

// flushPriority writes what is already queued, briefly, so a final reset
// event reaches the client before the close frame.
func (w *outboundWriter) flushPriority() {
	deadline := time.Now().Add(100 * time.Millisecond)
	for i := 0; i < 8 && time.Now().Before(deadline); i++ {
		select {
		case f := <-w.priority:
			_ = w.write(f)
		default:
			return
		}
	}
}

func (w *outboundWriter) write(f outboundFrame) error {
	if f.audio != nil && w.isStopped != nil && w.isStopped(f.audioID) {
		return nil
	}
	if err := w.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if len(f.text) > 0 {
		if err := w.ws.WriteMessage(websocket.TextMessage, f.text); err != nil {
			return err
		}
	}
	if f.audio != nil {
		return w.ws.WriteMessage(websocket.BinaryMessage, f.audio)
	}
	return nil
}
