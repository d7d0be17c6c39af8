// Package server is the HTTP transport shell: route wiring, bearer
// authentication, request-size limits, and status mapping around the
// dispatcher. It holds no business logic of its own.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentd/pkg/config"
	"agentd/pkg/dispatch"
	"agentd/pkg/logx"
	"agentd/pkg/proto"
	"agentd/pkg/version"
)

// Server wraps the HTTP listener around a dispatcher.
type Server struct {
	cfg        config.ServerConfig
	dispatcher *dispatch.Dispatcher
	logger     *logx.Logger
	httpServer *http.Server
}

// New creates a transport shell over the dispatcher.
func New(cfg config.ServerConfig, dispatcher *dispatch.Dispatcher) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logx.NewLogger("server"),
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the router. Exposed for httptest.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/agent/*", s.handleAgent)
	})

	return r
}

// ListenAndServe blocks until the listener stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening on %s (version %s)", s.httpServer.Addr, version.Version)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// authenticate enforces the configured bearer token. An empty configured
// token disables authentication.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		supplied := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.cfg.AuthToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	path := "/" + chi.URLParam(r, "*")
	resp, err := s.dispatcher.Dispatch(r.Context(), path, body)
	if err != nil {
		s.writeDispatchError(w, path, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeDispatchError maps dispatcher errors onto transport statuses:
// validation failures are 400, unroutable paths 404, everything else 500.
func (s *Server) writeDispatchError(w http.ResponseWriter, path string, err error) {
	var verr *proto.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Reason)
	case errors.Is(err, dispatch.ErrUnknownHandler):
		writeError(w, http.StatusNotFound, fmt.Sprintf("no agent at %s", path))
	default:
		s.logger.Error("dispatch failed on %s: %v", path, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
