// Package server exposes the HTTP surface of the beepwatch call gateway:
// the call-control webhooks the telephony platform drives the IVR with, the
// websocket endpoint that receives the bridged call audio, and the usual
// operational endpoints (health, readiness, metrics).
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/beepwatch/internal/config"
	"github.com/MrWong99/beepwatch/internal/health"
	"github.com/MrWong99/beepwatch/internal/observe"
	"github.com/MrWong99/beepwatch/internal/registry"
	"github.com/MrWong99/beepwatch/internal/session"
)

const (
	// shutdownTimeout bounds the graceful drain of open HTTP connections.
	shutdownTimeout = 10 * time.Second

	// dtmfTimeoutSec and dtmfMaxDigits parameterise the number-entry IVR
	// prompt.
	dtmfTimeoutSec = 10
	dtmfMaxDigits  = 12

	// streamContentType is the PCM format requested for the bridged audio.
	streamContentType = "audio/l16;rate=16000"
)

// Server wires the webhook handlers, the audio stream endpoint, and the
// operational endpoints into one http.Handler and manages its lifecycle.
type Server struct {
	cfg      config.ServerConfig
	tele     config.TelephonyConfig
	registry *registry.Registry
	sessions *session.Manager
	health   *health.Handler
	metrics  *observe.Metrics
	log      *slog.Logger
}

// New creates a Server. registry and sessions are required; healthH may be
// nil for a checkerless handler, metrics may be nil, and logger defaults to
// [slog.Default].
func New(cfg *config.Config, reg *registry.Registry, sessions *session.Manager, healthH *health.Handler, metrics *observe.Metrics, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server: config must not be nil")
	}
	if reg == nil {
		return nil, fmt.Errorf("server: registry must not be nil")
	}
	if sessions == nil {
		return nil, fmt.Errorf("server: session manager must not be nil")
	}
	if healthH == nil {
		healthH = health.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg.Server,
		tele:     cfg.Telephony,
		registry: reg,
		sessions: sessions,
		health:   healthH,
		metrics:  metrics,
		log:      logger,
	}, nil
}

// Handler builds the route table wrapped in the observability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ncco", s.handleAnswer)
	mux.HandleFunc("POST /ivr", s.handleIVR)
	mux.HandleFunc("POST /event", s.handleEvent)
	mux.HandleFunc("GET /socket", s.handleSocket)
	return observe.Middleware(s.metrics)(mux)
}

// Run serves until ctx is cancelled, then drains connections and waits for
// in-flight clip classifications.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if s.cfg.TLS != nil {
			s.log.Info("listening with TLS", "addr", s.cfg.ListenAddr)
			errCh <- srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
			return
		}
		s.log.Info("listening", "addr", s.cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server: listen on %s: %w", s.cfg.ListenAddr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("graceful shutdown failed, closing", "err", err)
		srv.Close()
	}
	if err := s.sessions.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("classification drain incomplete", "err", err)
	}
	return nil
}

// publicHost returns the externally visible host for URLs embedded in
// call-control documents.
func (s *Server) publicHost(r *http.Request) string {
	if s.cfg.PublicHost != "" {
		return s.cfg.PublicHost
	}
	return r.Host
}

// httpBaseURL returns the scheme://host prefix for webhook URLs. A
// configured public host is assumed to terminate TLS.
func (s *Server) httpBaseURL(r *http.Request) string {
	scheme := "http"
	if s.cfg.PublicHost != "" || r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + s.publicHost(r)
}

// wsBaseURL is the websocket counterpart of httpBaseURL.
func (s *Server) wsBaseURL(r *http.Request) string {
	scheme := "ws"
	if s.cfg.PublicHost != "" || r.TLS != nil {
		scheme = "wss"
	}
	return scheme + "://" + s.publicHost(r)
}

// writeJSON marshals v with the charset header the telephony platform sends
// back verbatim in its examples.
func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", `application/json; charset="utf-8"`)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response failed", "err", err)
	}
}
