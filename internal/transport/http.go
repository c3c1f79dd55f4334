package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ahmadhassan44/random-walk/internal/logging"
	"github.com/ahmadhassan44/random-walk/pkg/protocol"
	"github.com/go-chi/chi/v5"
)

// maxSignalBytes caps the body accepted on /signal.
const maxSignalBytes = 4 << 10

// Server is the controller side of the HTTP completion channel. Bodies posted
// to /signal are forwarded unvalidated to the coordinator's inbox.
type Server struct {
	inbox   *Local
	status  func() protocol.BarrierStatus
	metrics http.Handler
	logger  *slog.Logger

	srv *http.Server
	ln  net.Listener
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithStatus sets the source for /status.
func WithStatus(fn func() protocol.BarrierStatus) ServerOption {
	return func(s *Server) {
		s.status = fn
	}
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a server with an inbox buffering up to buffer signals.
func NewServer(buffer int, opts ...ServerOption) *Server {
	s := &Server{
		inbox:  NewLocal(buffer),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Component(s.logger, "http-transport")
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)

	r.Post("/signal", s.handleSignal)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// Listen binds addr and starts serving in the background. Use Addr for the
// bound address when addr requests port 0.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("listening for completion signals", "addr", ln.Addr().String())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server stopped", "error", err)
		}
	}()
	return nil
}

// Addr is the bound listen address, empty before Listen.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Receive(ctx context.Context) (protocol.Message, error) {
	return s.inbox.Receive(ctx)
}

// Shutdown stops the listener and closes the inbox.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.inbox.Close()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// handleSignal accepts one completion signal from a walker
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSignalBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read body: %v", err), http.StatusBadRequest)
		return
	}

	msg := protocol.Message{Source: r.RemoteAddr, Body: body}
	if err := s.inbox.Deliver(r.Context(), msg); err != nil {
		http.Error(w, "Controller is not accepting signals", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleHealth provides a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleStatus returns the barrier progress
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var status protocol.BarrierStatus
	if s.status != nil {
		status = s.status()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// loggingMiddleware logs all incoming HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

// Client is the walker side of the HTTP completion channel.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a sender that posts to the controller at addr
// ("host:port" or a full http URL).
func NewClient(addr string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		url:        strings.TrimSuffix(base, "/") + "/signal",
		httpClient: httpClient,
	}
}

func (c *Client) Send(ctx context.Context, sig protocol.CompletionSignal) error {
	payload, err := protocol.Encode(sig)
	if err != nil {
		return fmt.Errorf("failed to encode signal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("controller communication failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("controller returned status %d", resp.StatusCode)
	}
	return nil
}
