package health

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server provides the HTTP health check and metrics endpoints
type Server struct {
	server *http.Server
	logger *logrus.Entry
}

// New creates a new health check server. gatherer may be nil to skip /metrics.
func New(addr string, gatherer prometheus.Gatherer, logger *logrus.Entry) *Server {
	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: Handler(gatherer),
		},
		logger: logger,
	}
}

// Handler builds the mux served by Server.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Infof("Health check server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down health check server...")
	return s.server.Shutdown(ctx)
}
