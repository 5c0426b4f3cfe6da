// ABOUTME: Lifecycle supervisor for the agent-facing HTTP listener
// ABOUTME: Binds with port fallback, and serializes stop, restart and port changes

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/2389/mcp-feedback/internal/observer"
)

// State is the supervisor lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

const (
	DefaultHost            = "127.0.0.1"
	DefaultRestartDelay    = 2 * time.Second
	DefaultShutdownTimeout = 5 * time.Second

	// Fallback ports are drawn from this range when the desired port is taken.
	FallbackPortMin = 7424
	FallbackPortMax = 9999
)

// ErrHandlerRequired is returned by New without an HTTP handler.
var ErrHandlerRequired = errors.New("handler is required")

// SessionCloser drops every open agent session.
type SessionCloser interface {
	CloseAll()
}

// Publisher receives port-changed events.
type Publisher interface {
	Publish(eventType observer.EventType, data any)
}

// Config holds supervisor configuration.
type Config struct {
	Host      string
	Port      int
	Handler   http.Handler
	Sessions  SessionCloser
	Publisher Publisher
	Logger    *slog.Logger

	RestartDelay    time.Duration
	ShutdownTimeout time.Duration
	AutoRestart     bool

	// Listen and PickPort are replaceable for tests.
	Listen   func(network, address string) (net.Listener, error)
	PickPort func() int
}

// Supervisor owns the listener serving the agent endpoint.
type Supervisor struct {
	host            string
	handler         http.Handler
	sessions        SessionCloser
	publisher       Publisher
	logger          *slog.Logger
	restartDelay    time.Duration
	shutdownTimeout time.Duration
	listen          func(network, address string) (net.Listener, error)
	pickPort        func() int

	// cycleMu serializes Start, Stop, Restart and UpdatePort.
	cycleMu sync.Mutex

	mu          sync.RWMutex
	state       State
	port        int
	autoRestart bool
	server      *http.Server
	done        chan struct{} // closed when the serving goroutine exits

	// stops counts Stop calls; a pending auto-restart is dropped when it moves.
	stops uint64
}

// New creates a stopped supervisor.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Handler == nil {
		return nil, ErrHandlerRequired
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Supervisor{
		host:            cfg.Host,
		handler:         cfg.Handler,
		sessions:        cfg.Sessions,
		publisher:       cfg.Publisher,
		logger:          logger.With("component", "supervisor"),
		restartDelay:    cfg.RestartDelay,
		shutdownTimeout: cfg.ShutdownTimeout,
		listen:          cfg.Listen,
		pickPort:        cfg.PickPort,
		state:           StateStopped,
		port:            cfg.Port,
		autoRestart:     cfg.AutoRestart,
	}
	if s.host == "" {
		s.host = DefaultHost
	}
	if s.restartDelay <= 0 {
		s.restartDelay = DefaultRestartDelay
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = DefaultShutdownTimeout
	}
	if s.listen == nil {
		s.listen = net.Listen
	}
	if s.pickPort == nil {
		s.pickPort = randomFallbackPort
	}

	return s, nil
}

func randomFallbackPort() int {
	return FallbackPortMin + rand.IntN(FallbackPortMax-FallbackPortMin+1)
}

// Port returns the port the endpoint listens on, or will listen on next.
func (s *Supervisor) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// URL returns the agent endpoint URL.
func (s *Supervisor) URL() string {
	return serverURL(s.Port())
}

func serverURL(port int) string {
	return fmt.Sprintf("http://localhost:%d/mcp", port)
}

// SetAutoRestart toggles restarting after an unexpected serve failure.
func (s *Supervisor) SetAutoRestart(enabled bool) {
	s.mu.Lock()
	s.autoRestart = enabled
	s.mu.Unlock()
}

// AutoRestart reports whether auto-restart is enabled.
func (s *Supervisor) AutoRestart() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoRestart
}

// Start binds the port and begins serving. When the port is in use a random
// fallback port is tried until one binds. Starting a running supervisor is
// a no-op.
func (s *Supervisor) Start(ctx context.Context) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	return s.startLocked(ctx)
}

func (s *Supervisor) startLocked(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStarting
	port := s.port
	s.mu.Unlock()

	ln, err := s.bind(ctx, port)
	if err != nil {
		s.setState(StateStopped)
		return err
	}
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	done := make(chan struct{})

	s.mu.Lock()
	s.server = srv
	s.done = done
	s.port = port
	s.state = StateRunning
	s.mu.Unlock()

	go s.serve(srv, ln, done)

	url := serverURL(port)
	s.logger.Info("agent endpoint listening", "port", port, "url", url)
	if s.publisher != nil {
		s.publisher.Publish(observer.EventPortChanged, observer.PortChange{Port: port, ServerURL: url})
	}
	return nil
}

// bind listens on port, falling back to random ports while the address is
// in use. Any other error is returned.
func (s *Supervisor) bind(ctx context.Context, port int) (net.Listener, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ln, err := s.listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listening on port %d: %w", port, err)
		}

		next := s.pickPort()
		s.logger.Warn("port in use, trying fallback", "port", port, "fallback", next)
		port = next
	}
}

func (s *Supervisor) serve(srv *http.Server, ln net.Listener, done chan struct{}) {
	defer close(done)

	err := srv.Serve(ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}

	s.logger.Error("agent endpoint failed", "error", err)

	s.mu.Lock()
	if s.server != srv {
		s.mu.Unlock()
		return
	}
	s.server = nil
	s.state = StateStopped
	auto := s.autoRestart
	stops := s.stops
	s.mu.Unlock()

	if !auto {
		return
	}
	go s.restartAfterFailure(stops)
}

// restartAfterFailure starts the endpoint again after the restart delay,
// unless Stop was called since the failure.
func (s *Supervisor) restartAfterFailure(stops uint64) {
	time.Sleep(s.restartDelay)

	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.mu.RLock()
	stopped := s.stops != stops
	s.mu.RUnlock()
	if stopped {
		s.logger.Info("auto-restart skipped, endpoint was stopped")
		return
	}

	s.logger.Info("restarting agent endpoint after failure")
	if err := s.startLocked(context.Background()); err != nil {
		s.logger.Error("auto-restart failed", "error", err)
	}
}

// Stop closes every agent session and shuts the listener down. On a stopped
// supervisor it only drops a pending auto-restart.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	return s.stopLocked(ctx)
}

func (s *Supervisor) stopLocked(ctx context.Context) error {
	s.mu.Lock()
	s.stops++
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	srv := s.server
	done := s.done
	s.state = StateStopping
	s.mu.Unlock()

	if s.sessions != nil {
		s.sessions.CloseAll()
	}

	var err error
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Warn("graceful shutdown incomplete, closing connections", "error", shutdownErr)
			err = srv.Close()
		}
		cancel()
		<-done
	}

	s.mu.Lock()
	s.server = nil
	s.state = StateStopped
	s.mu.Unlock()

	s.logger.Info("agent endpoint stopped")
	return err
}

// Restart stops the endpoint, waits the restart delay and starts it again.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	return s.restartLocked(ctx)
}

func (s *Supervisor) restartLocked(ctx context.Context) error {
	if err := s.stopLocked(ctx); err != nil {
		return fmt.Errorf("stopping: %w", err)
	}

	select {
	case <-time.After(s.restartDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	return s.startLocked(ctx)
}

// UpdatePort moves the endpoint to a new port. It is a no-op when the port
// is unchanged.
func (s *Supervisor) UpdatePort(ctx context.Context, port int) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.mu.Lock()
	if s.port == port {
		s.mu.Unlock()
		return nil
	}
	s.port = port
	s.mu.Unlock()

	s.logger.Info("moving agent endpoint", "port", port)
	return s.restartLocked(ctx)
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
