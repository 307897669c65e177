package wsserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

const (
	subscribe, unsubscribe = "SUB", "UNSUB"
)

type Processor interface {
	handleConnection(conn *websocket.Conn)
	bookHandler(w http.ResponseWriter, r *http.Request)
	productsHandler(w http.ResponseWriter, r *http.Request)
	subscribeHandler(w http.ResponseWriter, r *http.Request)
	unsubscribeHandler(w http.ResponseWriter, r *http.Request)
}

type WSServer struct {
	*http.Server
	Processor
}

// NewWSServer serves the websocket feed on /ws, book snapshots on /book/{product}, the
// upstream products on /products and, when metricsHandler is set, Prometheus metrics
// on /metrics.
func NewWSServer(addr string, proc Processor, metricsHandler http.Handler) *WSServer {
	s := &WSServer{
		Processor: proc,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.websocketHandler)
	mux.HandleFunc("GET /book/{product}", s.bookHandler)
	mux.HandleFunc("GET /products", s.productsHandler)
	mux.HandleFunc("PUT /products/{product}", s.subscribeHandler)
	mux.HandleFunc("DELETE /products/{product}", s.unsubscribeHandler)

	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	s.Server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

func (s *WSServer) StartServer() error {
	slog.Info("Websocket Server started", "addr", s.Addr)

	err := s.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Error on websocket Server: ", "Error", err)

		return err
	}

	return nil
}

func (s *WSServer) ShutDown(ctx context.Context) error {
	return s.Shutdown(ctx)
}

func (s *WSServer) websocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Error Upgrading Websocket: ", "Error", err)

		return
	}

	go s.handleConnection(conn)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}
