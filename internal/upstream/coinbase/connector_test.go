package coinbase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type connRecorder struct {
	client      *WSClient
	connects    atomic.Int32
	disconnects atomic.Int32
}

func (c *connRecorder) Connected(context.Context) error {
	c.connects.Add(1)
	c.client.requests <- []byte(`{"type":"subscribe","product_ids":["BTC-USD"],"channels":["full"]}`)

	return nil
}

func (c *connRecorder) Disconnected() {
	c.disconnects.Add(1)
}

func TestWSClient_ReconnectsAndResubscribes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan string, 4)

	var connections atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, request, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(request)

		n := connections.Add(1)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat","product_id":"BTC-USD","sequence":`+strconv.Itoa(int(n))+`}`))

		if n == 1 {
			// drop the first connection right away
			return
		}

		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	client := NewWSClient("ws"+strings.TrimPrefix(server.URL, "http"), make(chan []byte, 4))
	listener := &connRecorder{client: client}
	client.SetListener(listener)

	ctx, cancel := context.WithCancel(context.Background())
	frames := make(chan []byte, 4)
	done := make(chan error, 2)

	go func() { done <- client.ConnectToServer(ctx, frames) }()
	go func() { done <- client.SendRequests(ctx) }()

	for i := 1; i <= 2; i++ {
		select {
		case frame := <-frames:
			assert.Contains(t, string(frame), `"sequence":`+strconv.Itoa(i))
		case <-time.After(5 * time.Second):
			t.Fatalf("frame %d not received", i)
		}

		select {
		case request := <-received:
			assert.Contains(t, request, `"subscribe"`)
		case <-time.After(5 * time.Second):
			t.Fatalf("subscription %d not sent", i)
		}
	}

	assert.Equal(t, int32(2), listener.connects.Load())
	assert.GreaterOrEqual(t, listener.disconnects.Load(), int32(1))

	cancel()

	for range 2 {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("client did not stop")
		}
	}

	assert.NoError(t, client.CloseConnection())
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, backoff(0))
	assert.Equal(t, 4*time.Second, backoff(2))
	assert.Equal(t, maxDelay, backoff(20))
}
