package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultPath is the scrape path used when none is configured.
const DefaultPath = "/metrics"

// Server exposes the decoder and queue counters while a dump or stats
// run is in progress. It lives only as long as the command.
type Server struct {
	addr string
	path string

	mu     sync.Mutex
	ln     net.Listener
	server *http.Server
}

func NewServer(addr, path string) *Server {
	if path == "" {
		path = DefaultPath
	}
	return &Server{addr: addr, path: path}
}

// Handler serves the registry at the configured path and 404s elsewhere.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.Handler())
	return mux
}

// Start binds the listen address and serves scrapes in the background.
// A second Start is an error.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("pcapstream metrics endpoint already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen for metrics on %q: %w", s.addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.ln, s.server = ln, srv

	slog.Info("metrics endpoint listening", "addr", ln.Addr().String(), "path", s.path)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics endpoint failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop drains in-flight scrapes for up to five seconds. Stop without Start
// is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server, s.ln = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shut down metrics endpoint: %w", err)
	}
	slog.Debug("metrics endpoint closed")
	return nil
}
