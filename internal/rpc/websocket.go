package rpc

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const closeGrace = time.Second

type wsTransport struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	frames    chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

// NewWebSocketTransport wraps an established connection. Frames travel as
// binary messages; other message types are ignored.
func NewWebSocketTransport(conn *websocket.Conn, logger *zap.Logger) Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &wsTransport{
		conn:   conn,
		logger: logger,
		frames: make(chan Frame, pipeBuffer),
		done:   make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// DialWebSocket connects to a sandbox host's RPC endpoint
func DialWebSocket(ctx context.Context, url string, header http.Header, logger *zap.Logger) (Transport, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWebSocketTransport(conn, logger), nil
}

func (t *wsTransport) readLoop() {
	defer t.shutdown()

	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		f, err := DecodeFrame(data)
		if err != nil {
			t.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}

		select {
		case t.frames <- f:
		case <-t.done:
			return
		}
	}
}

func (t *wsTransport) Send(ctx context.Context, f Frame) error {
	data, err := EncodeFrame(f)
	if err != nil {
		return err
	}

	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

func (t *wsTransport) Receive(ctx context.Context) (Frame, error) {
	// drain frames that arrived before a close
	select {
	case f := <-t.frames:
		return f, nil
	default:
	}

	select {
	case f := <-t.frames:
		return f, nil
	case <-t.done:
		return Frame{}, ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (t *wsTransport) Close() error {
	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGrace))
	t.writeMu.Unlock()

	t.shutdown()
	return t.conn.Close()
}

func (t *wsTransport) shutdown() {
	t.closeOnce.Do(func() { close(t.done) })
}
