package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the registered Prometheus series over HTTP.
type Server struct {
	srv *http.Server
}

// NewServer builds a metrics server bound to host:port. Returns nil when
// port is 0, matching the teacher's disable-by-zero convention.
func NewServer(host string, port int) *Server {
	if port == 0 {
		return nil
	}
	return &Server{
		srv: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", host, port),
			Handler: promhttp.Handler(),
		},
	}
}

// Start serves metrics until shutdown; no-op when disabled.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the metrics server down; no-op when disabled.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
