// Package server provides the HTTP handlers and routing for the MCP server.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"edgar-mcp/internal/config"
	"edgar-mcp/internal/identity"
	"edgar-mcp/internal/protocol"
)

const maxBodyBytes = 4 << 20

// Options configures the transport.
type Options struct {
	Transport       string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	TLSCertFile     string
	TLSKeyFile      string
	Identity        identity.Identity
	Logger          *zap.Logger
	// Gatherer backs /metrics; the route is omitted when nil.
	Gatherer prometheus.Gatherer
}

// Server contains the configured router, protocol adapter and session
// manager for the MCP server.
type Server struct {
	opts     Options
	router   *chi.Mux
	adapter  *protocol.Adapter
	sessions *SessionManager
	logger   *zap.Logger
}

// New constructs a Server with middleware and routes configured. The
// adapter's registry must be fully populated; New freezes it.
func New(adapter *protocol.Adapter, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Transport == "" {
		opts.Transport = config.TransportSSE
	}
	adapter.Registry().Freeze()

	s := &Server{
		opts:     opts,
		router:   chi.NewRouter(),
		adapter:  adapter,
		sessions: NewSessionManager(opts.Logger),
		logger:   opts.Logger,
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(opts.RequestTimeout))
	}

	s.router.Get("/health", s.handleHealth)
	if opts.Gatherer != nil {
		s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	s.router.Post("/mcp", s.handleMCP)
	s.router.Get("/mcp", methodNotAllowed)
	s.router.Delete("/mcp", methodNotAllowed)

	return s
}

// Router exposes the root HTTP handler for the server.
func (s *Server) Router() http.Handler { return s.router }

// Sessions exposes the session manager.
func (s *Server) Sessions() *SessionManager { return s.sessions }

// Run listens on addr and serves until ctx ends.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve starts the session manager, serves on ln until ctx ends, then drains
// in-flight requests within the shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger),
	}
	s.sessions.Start()

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.opts.TLSCertFile != "" && s.opts.TLSKeyFile != "" {
			err = srv.ServeTLS(ln, s.opts.TLSCertFile, s.opts.TLSKeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("serving", zap.String("addr", ln.Addr().String()), zap.Bool("tls", s.opts.TLSCertFile != ""))

	select {
	case err := <-errCh:
		_ = s.sessions.Stop(context.Background())
		return err
	case <-ctx.Done():
	}

	shutdownCtx := context.Background()
	if s.opts.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, s.opts.ShutdownTimeout)
		defer cancel()
	}
	s.logger.Info("shutting down")
	return errors.Join(s.sessions.Stop(shutdownCtx), srv.Shutdown(shutdownCtx))
}

type healthResponse struct {
	Status string   `json:"status"`
	Tools  []string `json:"tools"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok", Tools: s.adapter.Registry().Names()})
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	release, ok := s.sessions.Acquire()
	if !ok {
		http.Error(w, "server is not accepting requests", http.StatusServiceUnavailable)
		return
	}
	defer release()

	log := s.logger.With(
		zap.String("session", uuid.NewString()),
		zap.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	req, derr := protocol.Decode(body)
	if derr != nil {
		log.Debug("rejected protocol message", zap.Int("code", derr.Code), zap.String("message", derr.Message))
		s.writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse(req.ID, derr))
		return
	}

	ctx := identity.WithIdentity(r.Context(), s.opts.Identity)
	resp, err := s.adapter.Handle(ctx, req)
	if errors.Is(err, protocol.ErrCanceled) {
		log.Info("client went away before completion", zap.String("method", req.Method))
		return
	}
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if s.opts.Transport == config.TransportSSE && acceptsEventStream(r) {
		s.writeEvent(w, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, resp *protocol.Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("encode response", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

// writeEvent sends the response as a single server-sent event.
func (s *Server) writeEvent(w http.ResponseWriter, resp *protocol.Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("encode response", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "event: message\ndata: ")
	_, _ = w.Write(b)
	_, _ = io.WriteString(w, "\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func acceptsEventStream(r *http.Request) bool {
	for _, v := range r.Header.Values("Accept") {
		for _, part := range strings.Split(v, ",") {
			mt, _, _ := strings.Cut(strings.TrimSpace(part), ";")
			if strings.EqualFold(strings.TrimSpace(mt), "text/event-stream") {
				return true
			}
		}
	}
	return false
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}
