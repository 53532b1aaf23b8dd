package statusapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"llm-trading-dashboard/internal/logger"
)

const shutdownGrace = 3 * time.Second

// Serve listens on addr until ctx is cancelled, then shuts the server down.
func Serve(ctx context.Context, addr string, handler *Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serve(ctx, ln, handler)
}

func serve(ctx context.Context, ln net.Listener, handler *Handler) error {
	srv := &http.Server{
		Handler:           SetupRoutes(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info(ctx, "Status server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
