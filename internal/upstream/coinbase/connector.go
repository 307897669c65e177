package coinbase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ob-sync/internal/metrics"

	"github.com/gorilla/websocket"
)

var errNotConnected = errors.New("websocket not connected")

// ConnectionListener is told about every connection and disconnection of the feed.
type ConnectionListener interface {
	Connected(ctx context.Context) error
	Disconnected()
}

type WSClient struct {
	url      string
	requests chan []byte
	listener ConnectionListener

	mu      sync.RWMutex
	writeMu sync.Mutex
	conn    *websocket.Conn
}

func NewWSClient(url string, requests chan []byte) *WSClient {
	return &WSClient{
		url:      url,
		requests: requests,
	}
}

func (ws *WSClient) SetListener(listener ConnectionListener) {
	ws.listener = listener
}

// ConnectToServer keeps the feed connected until ctx is done, redialling with
// exponential backoff. Every frame read is pushed to bufferedMsgs.
func (ws *WSClient) ConnectToServer(ctx context.Context, bufferedMsgs chan<- []byte) error {
	retryCount := 0

	for ctx.Err() == nil {
		conn, err := ws.dial(ctx)
		if err != nil {
			delay := backoff(retryCount)
			retryCount++

			slog.Warn("Websocket connectivity issue", "url", ws.url, "retry", retryCount, "delay", delay, "Error", err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
				continue
			}
		}

		retryCount = 0

		if ws.listener != nil {
			if err := ws.listener.Connected(ctx); err != nil {
				slog.Error("Error on initialising the connection", "Error", err)
			}
		}

		err = ws.readWSMessages(ctx, conn, bufferedMsgs)
		ws.dropConnection(conn)

		if ws.listener != nil {
			ws.listener.Disconnected()
		}

		if ctx.Err() != nil {
			return nil
		}

		metrics.WSReconnects.Inc()
		slog.Warn("Websocket disconnected, reconnecting", "url", ws.url, "Error", err)
	}

	return nil
}

// SendRequests writes queued subscription requests to the live connection. Requests made
// while disconnected are dropped; the listener resubscribes on the next connection.
func (ws *WSClient) SendRequests(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case request, ok := <-ws.requests:
			if !ok {
				return nil
			}

			slog.Debug("Sending Web Socket Request", "bytes", len(request))

			if err := ws.write(websocket.TextMessage, request); err != nil {
				slog.Error("Error on sending subscription request", "Error", err)
			}
		}
	}
}

func (ws *WSClient) CloseConnection() error {
	err := ws.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil && !errors.Is(err, errNotConnected) {
		slog.Error("Error on writing close request to websocket", "Error", err)

		return err
	}

	return nil
}

func (ws *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	slog.Info("connecting to websocket", "url", ws.url)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, ws.url, nil)
	if err != nil {
		return nil, err
	}

	ws.mu.Lock()
	ws.conn = conn
	ws.mu.Unlock()

	slog.Info("Connected to websocket", "url", ws.url)

	return conn, nil
}

func (ws *WSClient) readWSMessages(ctx context.Context, conn *websocket.Conn, bufferedMsgs chan<- []byte) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		if len(message) == 0 {
			continue
		}

		select {
		case bufferedMsgs <- message:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (ws *WSClient) write(messageType int, data []byte) error {
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()

	ws.mu.RLock()
	defer ws.mu.RUnlock()

	if ws.conn == nil {
		return errNotConnected
	}

	return ws.conn.WriteMessage(messageType, data)
}

func (ws *WSClient) dropConnection(conn *websocket.Conn) {
	ws.mu.Lock()
	if ws.conn == conn {
		ws.conn = nil
	}
	ws.mu.Unlock()

	_ = conn.Close()
}

func backoff(retryCount int) time.Duration {
	delay := baseDelay << min(retryCount, 6)

	return min(delay, maxDelay)
}
