// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package api serves the mirror pipeline as a JSON-RPC 2.0 API over plain
// HTTP and websockets.
//
// Every call is independent: it names a configured mirror, carries its own
// observing geometry (defaulting to the configuration's [observation]) and
// runs against that mirror's Pipeline. Completed runs are announced to all
// websocket clients with a notify_run_complete notification.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"mirrorsim/pkg/config"
	"mirrorsim/pkg/errors"
	"mirrorsim/pkg/log"
	"mirrorsim/pkg/metrics"
	"mirrorsim/pkg/mirror"
	"mirrorsim/pkg/pool"
)

// Version is reported by server.info.
const Version = "mirrorsim-0.1.0"

// Server is the JSON-RPC API server.
type Server struct {
	cfg       *config.MirrorConfig
	pipelines map[string]*mirror.Pipeline
	metrics   *metrics.MirrorMetrics
	history   *RunHistory
	logger    *log.Logger

	// dispatch routes a method call to its handler.
	dispatch func(ctx context.Context, method string, raw json.RawMessage) (any, error)

	// HTTP server
	httpServer *http.Server
	addr       string

	// WebSocket management
	wsUpgrader websocket.Upgrader
	wsClients  map[int64]*WSClient
	wsClientMu sync.RWMutex
	nextWSID   int64

	// Server state
	running   atomic.Bool
	startTime time.Time
}

// Config holds server configuration.
type Config struct {
	// HTTP address to listen on (e.g., ":7130")
	Addr string

	// Mirrors is the loaded pipeline configuration.
	Mirrors *config.MirrorConfig

	// Metrics records requests; a fresh set is created when nil.
	Metrics *metrics.MirrorMetrics

	Logger *log.Logger
}

// New creates a server with one pipeline per configured mirror.
func New(cfg Config) (*Server, error) {
	if cfg.Mirrors == nil || len(cfg.Mirrors.Mirrors) == 0 {
		return nil, errors.ConfigurationError("mirrors", "no mirrors configured")
	}
	s := &Server{
		cfg:       cfg.Mirrors,
		pipelines: make(map[string]*mirror.Pipeline, len(cfg.Mirrors.Mirrors)),
		metrics:   cfg.Metrics,
		history:   NewRunHistory(0),
		logger:    log.OrDiscard(cfg.Logger).WithPrefix("api"),
		addr:      cfg.Addr,
		wsClients: make(map[int64]*WSClient),
		startTime: time.Now(),
	}
	s.dispatch = s.dispatchMethod
	if s.metrics == nil {
		s.metrics = metrics.NewMirrorMetrics()
	}
	for _, sec := range cfg.Mirrors.Mirrors {
		p, err := mirror.NewPipeline(sec, cfg.Mirrors.Workers, cfg.Logger, s.metrics)
		if err != nil {
			return nil, err
		}
		s.pipelines[sec.Name] = p
	}

	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	return s, nil
}

// Handler returns the server's routes wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// JSON-RPC endpoint
	mux.HandleFunc("/jsonrpc", s.handleJSONRPC)

	// WebSocket endpoint
	mux.HandleFunc("/websocket", s.handleWebSocket)

	// REST-style endpoints
	mux.HandleFunc("/server/info", s.handleServerInfo)
	mux.HandleFunc("/mirror/list", s.handleMirrorList)
	mux.HandleFunc("/server/history/list", s.handleHistoryList)
	mux.Handle("/metrics", metrics.MetricsHandler(s.metrics))

	return s.corsMiddleware(mux)
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.running.Store(true)
	s.logger.WithField("address", s.addr).Info("API server starting")

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop closes every websocket client and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.running.Store(false)

	s.wsClientMu.Lock()
	for _, client := range s.wsClients {
		client.Close()
	}
	s.wsClients = make(map[int64]*WSClient)
	s.wsClientMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// JSON-RPC 2.0 structures

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
	ID      any           `json:"id,omitempty"`
}

type jsonRPCNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// handleJSONRPC handles JSON-RPC 2.0 requests.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONRPC(w, jsonRPCResponse{
			JSONRPC: "2.0",
			Error:   &jsonRPCError{Code: codeParseError, Message: "Parse error"},
		})
		return
	}
	s.writeJSONRPC(w, s.call(r.Context(), req))
}

// call dispatches req and builds its response.
func (s *Server) call(ctx context.Context, req jsonRPCRequest) jsonRPCResponse {
	resp := jsonRPCResponse{JSONRPC: "2.0", ID: req.ID}
	result, err := s.dispatch(ctx, req.Method, req.Params)
	if err != nil {
		resp.Error = rpcError(err)
		s.logger.WithFields(log.Fields{"method": req.Method}).WithError(err).Warn("call failed")
		return resp
	}
	resp.Result = result
	return resp
}

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	s.handleREST(w, r, "server.info")
}

func (s *Server) handleMirrorList(w http.ResponseWriter, r *http.Request) {
	s.handleREST(w, r, "mirror.list")
}

// handleREST serves a parameterless method as GET.
func (s *Server) handleREST(w http.ResponseWriter, r *http.Request, method string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	result, err := s.dispatch(r.Context(), method, nil)
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"result": result})
	release(result)
}

// corsMiddleware adds CORS headers and answers preflight requests.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// JSON response helpers

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Warn("write response")
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{"error": rpcError(err)})
}

func (s *Server) writeJSONRPC(w http.ResponseWriter, resp jsonRPCResponse) {
	s.writeJSON(w, resp)
	release(resp.Result)
}

// release returns a pooled result map once it has been encoded.
func release(result any) {
	if m, ok := result.(map[string]any); ok {
		pool.PutResultMap(m)
	}
}

// rpcError converts err to a JSON-RPC error. Pipeline failures carry their
// error code, offending file and context in data.
func rpcError(err error) *jsonRPCError {
	var re *rpcFailure
	if stderrors.As(err, &re) {
		return &jsonRPCError{Code: re.code, Message: re.msg}
	}
	e := &jsonRPCError{Code: codeServerError, Message: err.Error()}
	var me *errors.MirrorError
	if stderrors.As(err, &me) {
		data := map[string]any{"code": string(me.Code)}
		if me.Path != "" {
			data["path"] = me.Path
		}
		for k, v := range me.Context {
			data[k] = v
		}
		e.Data = data
		if me.Code == errors.ErrConfiguration {
			e.Code = codeInvalidParams
		}
	}
	return e
}

// rpcFailure is a protocol-level error such as an unknown method.
type rpcFailure struct {
	code int
	msg  string
}

func (e *rpcFailure) Error() string { return e.msg }
