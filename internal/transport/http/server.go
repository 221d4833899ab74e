// Package httptransport builds and runs the HTTP servers of the binaries.
package httptransport

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ServerConfig contains tunables for the HTTP server.
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// ShutdownGrace bounds how long in-flight requests may finish after the context ends.
	ShutdownGrace time.Duration
}

// DashboardServerConfig leaves room in the write timeout for a full
// dashboard computation bounded by computeTimeout.
func DashboardServerConfig(addr string, computeTimeout time.Duration) ServerConfig {
	write := max(computeTimeout+5*time.Second, 10*time.Second)
	return ServerConfig{
		Address:       addr,
		ReadTimeout:   5 * time.Second,
		WriteTimeout:  write,
		IdleTimeout:   60 * time.Second,
		ShutdownGrace: write,
	}
}

// MetricsServerConfig suits a scrape-only listener.
func MetricsServerConfig(addr string) ServerConfig {
	return ServerConfig{
		Address:       addr,
		ReadTimeout:   5 * time.Second,
		WriteTimeout:  10 * time.Second,
		IdleTimeout:   60 * time.Second,
		ShutdownGrace: 5 * time.Second,
	}
}

func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Serve runs srv until ctx is done, then shuts it down within grace.
// It returns nil after a clean shutdown.
func Serve(ctx context.Context, srv *http.Server, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	if grace <= 0 {
		grace = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
