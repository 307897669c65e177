package downstream

import (
	"context"
	"log/slog"
	"time"
)

const shutdownTimeout = 5 * time.Second

// provides abstraction of the downstream server for the application
type Server interface {
	StartServer() error
	ShutDown(ctx context.Context) error
}

type Handler struct {
	Server
}

func NewHandler(s Server) *Handler {
	return &Handler{
		Server: s,
	}
}

// Run serves until ctx is done, then shuts the server down gracefully.
func (h *Handler) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- h.StartServer()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down downstream server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := h.ShutDown(shutdownCtx); err != nil {
		return err
	}

	return <-errCh
}
