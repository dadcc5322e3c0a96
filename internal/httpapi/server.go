// Package httpapi is the local control API of the gateway.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Controller is what the API drives
type Controller interface {
	Status() any
	SetPolling(enabled bool) bool
}

// PollingRequest is the body of PUT /polling
type PollingRequest struct {
	Enabled *bool `json:"enabled"`
}

// Server serves the control API until its context is cancelled
type Server struct {
	addr    string
	handler http.Handler
	logger  *logrus.Logger
}

// NewServer builds the API for ctrl on addr
func NewServer(addr string, ctrl Controller, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		addr:    addr,
		handler: requestLogger(logger, NewMux(ctrl, logger)),
		logger:  logger,
	}
}

// Handler returns the routed handler, wrapped with request logging
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address and blocks until ctx is done
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("control api listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln and shuts down gracefully when ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.WithField("addr", ln.Addr().String()).Info("Control API listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control api shutdown: %w", err)
	}
	return nil
}

// NewMux registers every route of the control API
func NewMux(ctrl Controller, logger *logrus.Logger) *http.ServeMux {
	h := &handlers{ctrl: ctrl, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /status", h.handleStatus)
	mux.HandleFunc("PUT /polling", h.handlePolling)
	return mux
}

type handlers struct {
	ctrl   Controller
	logger *logrus.Logger
}

func (h *handlers) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handlers) handleStatus(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ctrl.Status())
}

func (h *handlers) handlePolling(w http.ResponseWriter, r *http.Request) {
	var req PollingRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}
	if req.Enabled == nil {
		h.writeError(w, http.StatusBadRequest, `missing "enabled"`)
		return
	}

	changed := h.ctrl.SetPolling(*req.Enabled)
	h.logger.WithFields(logrus.Fields{
		"enabled": *req.Enabled,
		"changed": changed,
	}).Info("Polling toggled via control API")
	h.writeJSON(w, http.StatusOK, h.ctrl.Status())
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Warn("Failed to write response")
	}
}

func (h *handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
