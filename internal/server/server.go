// Package server is the HTTP surface: health, the subscription endpoint,
// mutation ingestion and a thin JSON table API over tables.Client.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/realtime"
	"github.com/roach88/livedoc/internal/tables"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires handlers to the table DB and the realtime coordinator.
type Server struct {
	db        *tables.DB
	coord     *realtime.Coordinator
	transport http.Handler
	pinger    Pinger
	logger    *zap.SugaredLogger
	http      *http.Server
}

// New builds the server. pinger may be nil.
func New(addr string, db *tables.DB, coord *realtime.Coordinator, transport http.Handler, pinger Pinger, logger *zap.SugaredLogger) *Server {
	s := &Server{
		db:        db,
		coord:     coord,
		transport: transport,
		pinger:    pinger,
		logger:    logger,
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /subscribe", s.transport)
	mux.HandleFunc("POST /mutations", s.handleMutation)
	mux.HandleFunc("POST /api/{table}/{op}", s.handleTable)
	return mux
}

// ListenAndServe blocks until the server stops. http.ErrServerClosed is
// reported as nil.
func (s *Server) ListenAndServe() error {
	s.logger.Infow("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			s.logger.Warnw("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"subscriptions": s.coord.Registry().Len(),
		"pending":       s.coord.Pending(),
	})
}

type mutationRequest struct {
	Table    string            `json:"table"`
	Document docstore.Document `json:"document"`
}

// handleMutation enqueues a mutation event and answers 202 without waiting
// for delivery.
func (s *Server) handleMutation(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := s.db.Table(req.Table); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Document == nil {
		writeError(w, http.StatusBadRequest, errors.New("document is required"))
		return
	}
	seq, ok := s.coord.Publish(req.Table, req.Document)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, errors.New("coordinator stopped"))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"seq": seq})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
