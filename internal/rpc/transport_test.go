package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipe(t *testing.T) {
	a, b := NewPipe()
	ctx := context.Background()

	require.NoError(t, a.Send(ctx, Frame{ID: "call_1", Method: MethodDisconnect}))
	f, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "call_1", f.ID)

	require.NoError(t, b.Send(ctx, Frame{ID: "call_1"}))
	f, err = a.Receive(ctx)
	require.NoError(t, err)
	assert.True(t, f.IsResponse())

	require.NoError(t, a.Close())
	_, err = b.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.Send(ctx, Frame{Event: EventLoaded}), ErrClosed)
	assert.NoError(t, b.Close())
}

func TestPipeReceiveHonorsContext(t *testing.T) {
	a, _ := NewPipe()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := a.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// wsPair returns a client transport connected to a server transport
func wsPair(t *testing.T) (client, server Transport) {
	t.Helper()

	accepted := make(chan Transport, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- NewWebSocketTransport(conn, nil)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := DialWebSocket(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil, nil)
	require.NoError(t, err)

	select {
	case server = <-accepted:
	case <-ctx.Done():
		t.Fatal("server side never accepted")
	}

	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func TestWebSocketTransport(t *testing.T) {
	client, server := wsPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, server.Send(ctx, Frame{Event: EventLoaded}))
	f, err := client.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventLoaded, f.Event)

	body := make([]byte, 256*1024)
	for i := range body {
		body[i] = byte(i)
	}
	require.NoError(t, client.Send(ctx, Frame{ID: "call_1", Method: MethodSetup, Params: mustPayload(t, body)}))

	f, err = server.Receive(ctx)
	require.NoError(t, err)
	var got []byte
	require.NoError(t, unmarshalPayload(f.Params, &got))
	assert.Equal(t, body, got)

	require.NoError(t, client.Close())
	_, err = server.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDialWebSocketFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := DialWebSocket(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func mustPayload(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := marshalPayload(v)
	require.NoError(t, err)
	return raw
}
