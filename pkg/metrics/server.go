// HTTP exposition server for pipeline metrics
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Server serves the simulator metrics over HTTP at /metrics, with /health
// and /ready probes.
type Server struct {
	mm     *MirrorMetrics
	addr   string
	server *http.Server
	mux    *http.ServeMux

	username string
	password string

	mu        sync.RWMutex
	running   bool
	startTime time.Time
}

// ServerConfig configures a metrics Server.
type ServerConfig struct {
	// Address to listen on, e.g. ":9130".
	Address string

	// Basic auth credentials. Both empty disables auth.
	Username string
	Password string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns the default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      ":9130",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// NewServer creates a server for mm on addr.
func NewServer(mm *MirrorMetrics, addr string) *Server {
	cfg := DefaultServerConfig()
	cfg.Address = addr
	return NewServerWithConfig(mm, cfg)
}

// NewServerWithConfig creates a server for mm.
func NewServerWithConfig(mm *MirrorMetrics, cfg ServerConfig) *Server {
	s := &Server{
		mm:       mm,
		addr:     cfg.Address,
		mux:      http.NewServeMux(),
		username: cfg.Username,
		password: cfg.Password,
	}
	s.mux.HandleFunc("/metrics", s.handleMetrics)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/ready", s.handleReady)
	s.mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the server's routes for mounting elsewhere.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// MetricsHandler serves mm in Prometheus text format.
func MetricsHandler(mm *MirrorMetrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMetrics(w, r, mm)
	})
}

// Start listens and serves until Shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	s.running = true
	s.startTime = time.Now()
	s.mu.Unlock()

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// StartAsync runs Start in a goroutine. The channel receives its error, if
// any, and is closed when the server stops.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return s.server.Shutdown(ctx)
}

// IsRunning reports whether Start has been called and Shutdown has not.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.addr
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}
	writeMetrics(w, r, s.mm)
}

func writeMetrics(w http.ResponseWriter, r *http.Request, mm *MirrorMetrics) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	out := mm.Gather()
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.Itoa(len(out)))
		return
	}
	_, _ = w.Write([]byte(out))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("OK\n"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if !s.IsRunning() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Not Ready\n"))
		return
	}
	_, _ = w.Write([]byte("Ready\n"))
}

const rootPage = `<!DOCTYPE html>
<html>
<head><title>mirrorsim metrics</title></head>
<body>
<h1>mirrorsim metrics</h1>
<p><a href="/metrics">/metrics</a> Prometheus metrics</p>
<p><a href="/health">/health</a> health check</p>
<p><a href="/ready">/ready</a> readiness check</p>
</body>
</html>
`

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(rootPage))
}

func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if s.username == "" && s.password == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if ok &&
		subtle.ConstantTimeCompare([]byte(user), []byte(s.username)) == 1 &&
		subtle.ConstantTimeCompare([]byte(pass), []byte(s.password)) == 1 {
		return true
	}
	w.Header().Set("WWW-Authenticate", `Basic realm="mirrorsim"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
	return false
}

// Status returns the server state for diagnostics.
func (s *Server) Status() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := map[string]any{
		"address": s.addr,
		"running": s.running,
	}
	if s.running {
		status["uptime"] = time.Since(s.startTime).Seconds()
	}
	return status
}
