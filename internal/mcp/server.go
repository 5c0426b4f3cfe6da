// ABOUTME: Session registry for MCP agents on the Streamable HTTP transport
// ABOUTME: Maps Mcp-Session-Id headers to go-sdk transports and converts failures to JSON-RPC errors

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// SessionHeader carries the session ID on every request after initialize.
const SessionHeader = "Mcp-Session-Id"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// ErrServerRequired is returned by NewServer without an MCP server.
var ErrServerRequired = errors.New("mcp server is required")

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCInternalError  = -32603
	JSONRPCServerError    = -32000
)

// session tracks one connected agent.
type session struct {
	id        string
	transport *sdk.StreamableServerTransport
	conn      *sdk.ServerSession
	createdAt time.Time
}

// sessionStore manages active sessions (in-memory).
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*session)}
}

func (s *sessionStore) add(sess *session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
}

func (s *sessionStore) get(id string) (*session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	return sess, ok
}

func (s *sessionStore) remove(id string) (*session, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	return sess, ok
}

// drain removes and returns every session.
func (s *sessionStore) drain() []*session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		out = append(out, sess)
		delete(s.sessions, id)
	}
	return out
}

func (s *sessionStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Config holds configuration for the session registry.
type Config struct {
	// Server is the MCP server each new session is connected to.
	Server *sdk.Server
	Logger *slog.Logger
}

// Server routes agent HTTP requests to their sessions.
type Server struct {
	mcp      *sdk.Server
	logger   *slog.Logger
	sessions *sessionStore
}

// NewServer creates a new session registry with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Server == nil {
		return nil, ErrServerRequired
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		mcp:      cfg.Server,
		logger:   logger.With("component", "mcp"),
		sessions: newSessionStore(),
	}, nil
}

// RegisterRoutes registers the MCP endpoint on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/mcp", s)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.recoverJSONRPC(s.handleMCP)(w, r)
}

// Count returns the number of open sessions.
func (s *Server) Count() int {
	return s.sessions.count()
}

// CloseAll closes and forgets every open session.
func (s *Server) CloseAll() {
	closed := s.sessions.drain()
	for _, sess := range closed {
		if err := sess.conn.Close(); err != nil {
			s.logger.Debug("closing session", "session_id", sess.id, "error", err)
		}
	}
	if len(closed) > 0 {
		s.logger.Info("closed all MCP sessions", "count", len(closed))
	}
}

// recoverJSONRPC converts a panic in next into a JSON-RPC internal error.
func (s *Server) recoverJSONRPC(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger.Error("panic handling MCP request",
				"method", r.Method,
				"session_id", r.Header.Get(SessionHeader),
				"panic", rec,
			)
			writeJSONRPCError(w, http.StatusInternalServerError, nil, JSONRPCInternalError, "Internal server error")
		}()
		next(w, r)
	}
}

// handleMCP is the single MCP endpoint supporting POST, GET, and DELETE.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet, http.MethodDelete:
		s.handleSessionRequest(w, r)
	default:
		w.Header().Set("Allow", "POST, GET, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handlePost routes a JSON-RPC message to its session, opening one for
// initialize requests.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		writeJSONRPCError(w, http.StatusBadRequest, nil, JSONRPCParseError, "failed to read request body")
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		writeJSONRPCError(w, http.StatusRequestEntityTooLarge, nil, JSONRPCInvalidRequest, "request body too large")
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	sessionID := r.Header.Get(SessionHeader)
	if sessionID != "" {
		if sess, ok := s.sessions.get(sessionID); ok {
			sess.transport.ServeHTTP(w, r)
			return
		}
	} else if isInitializeRequest(body) {
		sess, err := s.openSession(r.Context())
		if err != nil {
			s.logger.Error("failed to open MCP session", "error", err)
			writeJSONRPCError(w, http.StatusInternalServerError, nil, JSONRPCInternalError, "Internal server error")
			return
		}
		w.Header().Set(SessionHeader, sess.id)
		sess.transport.ServeHTTP(w, r)
		return
	}

	s.logger.Debug("rejected MCP request without valid session", "session_id", sessionID)
	writeJSONRPCError(w, http.StatusBadRequest, nil, JSONRPCServerError, "Bad Request: No valid session ID provided")
}

// handleSessionRequest serves GET (notification stream) and DELETE
// (terminate) for an existing session.
func (s *Server) handleSessionRequest(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionHeader)
	sess, ok := s.sessions.get(sessionID)
	if sessionID == "" || !ok {
		http.Error(w, "Invalid or missing session ID", http.StatusBadRequest)
		return
	}

	if r.Method == http.MethodGet {
		sess.transport.ServeHTTP(w, r)
		return
	}

	if _, ok := s.sessions.remove(sessionID); ok {
		if err := sess.conn.Close(); err != nil {
			s.logger.Debug("closing session", "session_id", sessionID, "error", err)
		}
		s.logger.Info("MCP session terminated", "session_id", sessionID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// openSession connects a new transport to the MCP server and registers it.
// The session outlives the initialize request, so its context is detached
// from the request's cancellation.
func (s *Server) openSession(ctx context.Context) (*session, error) {
	id := uuid.New().String()
	transport := &sdk.StreamableServerTransport{SessionID: id}

	conn, err := s.mcp.Connect(context.WithoutCancel(ctx), transport, nil)
	if err != nil {
		return nil, err
	}

	sess := &session{
		id:        id,
		transport: transport,
		conn:      conn,
		createdAt: time.Now(),
	}
	s.sessions.add(sess)
	s.logger.Info("MCP session created", "session_id", id)

	go func() {
		_ = conn.Wait()
		if removed, ok := s.sessions.remove(id); ok {
			s.logger.Info("MCP session closed",
				"session_id", id,
				"duration", time.Since(removed.createdAt).Round(time.Second),
			)
		}
	}()

	return sess, nil
}

// isInitializeRequest reports whether body is an initialize request, alone
// or inside a batch.
func isInitializeRequest(body []byte) bool {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return false
	}

	if body[0] == '[' {
		var batch []JSONRPCRequest
		if err := json.Unmarshal(body, &batch); err != nil {
			return false
		}
		for _, req := range batch {
			if req.Method == "initialize" {
				return true
			}
		}
		return false
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return false
	}
	return req.Method == "initialize"
}

// writeJSONRPCError sends a JSON-RPC error response with the given HTTP status.
func writeJSONRPCError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string) {
	if id == nil {
		id = json.RawMessage("null")
	}
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
