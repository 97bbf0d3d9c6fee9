package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/secondbrain-labs/brainmcp/internal/errors"
	"github.com/secondbrain-labs/brainmcp/internal/index"
	"github.com/secondbrain-labs/brainmcp/internal/service"
)

// DefaultClientID is charged when a client sends no identity.
const DefaultClientID = "local"

// Handler is the service surface the socket server exposes.
type Handler interface {
	Search(ctx context.Context, query string, k int, clientID string) ([]index.Result, error)
	TriggerResync(fullRebuild bool, clientID string) error
	Stats(ctx context.Context, clientID string) (*service.Stats, error)
}

// Server listens on a Unix socket and serves RPC requests. One request
// per connection, newline-delimited JSON both ways.
type Server struct {
	cfg     Config
	handler Handler
	started time.Time

	listener net.Listener
	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a socket server over the given handler.
func NewServer(cfg Config, handler Handler) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	return &Server{cfg: cfg, handler: handler}, nil
}

// ListenAndServe starts the server and blocks until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// A previous crash can leave a stale socket behind.
	_ = os.Remove(s.cfg.SocketPath)

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.SocketPath, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.cfg.SocketPath)
	}()

	slog.Info("socket_server_listening", slog.String("socket", s.cfg.SocketPath))

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			slog.Error("socket_accept_error", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownGracePeriod):
		slog.Warn("socket_shutdown_grace_expired")
	}

	return ctx.Err()
}

// Close stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.cfg.Timeout)); err != nil {
		slog.Warn("socket_deadline_failed", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	_ = encoder.Encode(s.handleRequest(ctx, req))
}

func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})
	case MethodStatus:
		return s.handleStatus(ctx, req)
	case MethodSearch:
		return s.handleSearch(ctx, req)
	case MethodResync:
		return s.handleResync(req)
	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleSearch(ctx context.Context, req Request) Response {
	var params SearchParams
	if resp, ok := decodeParams(req, &params); !ok {
		return resp
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	results, err := s.handler.Search(ctx, params.Query, params.K, clientID(params.ClientID))
	if err != nil {
		return NewErrorResponse(req.ID, mapErrorCode(err), err.Error())
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResult{
			ID:           r.Chunk.ID,
			Path:         r.Chunk.Path,
			Title:        r.Chunk.Title,
			Content:      r.Chunk.Content,
			Kind:         string(r.Chunk.Kind),
			Score:        r.Score,
			MatchedTerms: r.MatchedTerms,
			StartLine:    r.Chunk.StartLine,
			EndLine:      r.Chunk.EndLine,
		})
	}
	return NewSuccessResponse(req.ID, out)
}

func (s *Server) handleResync(req Request) Response {
	var params ResyncParams
	if resp, ok := decodeParams(req, &params); !ok {
		return resp
	}

	if err := s.handler.TriggerResync(params.Full, clientID(params.ClientID)); err != nil {
		return NewErrorResponse(req.ID, mapErrorCode(err), err.Error())
	}
	return NewSuccessResponse(req.ID, ResyncResult{Queued: true})
}

func (s *Server) handleStatus(ctx context.Context, req Request) Response {
	var params StatusParams
	if resp, ok := decodeParams(req, &params); !ok {
		return resp
	}

	stats, err := s.handler.Stats(ctx, clientID(params.ClientID))
	if err != nil {
		return NewErrorResponse(req.ID, mapErrorCode(err), err.Error())
	}

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	return NewSuccessResponse(req.ID, StatusResult{
		Running: true,
		PID:     os.Getpid(),
		Uptime:  time.Since(started).Round(time.Second).String(),
		Stats:   stats,
	})
}

// decodeParams re-marshals the loosely-typed params into the target.
// Returns (errorResponse, false) when decoding fails.
func decodeParams(req Request, target any) (Response, bool) {
	if req.Params == nil {
		return Response{}, true
	}
	data, err := json.Marshal(req.Params)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to encode params"), false
	}
	if err := json.Unmarshal(data, target); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params"), false
	}
	return Response{}, true
}

func clientID(id string) string {
	if id == "" {
		return DefaultClientID
	}
	return id
}

func mapErrorCode(err error) int {
	switch {
	case errors.IsRateLimited(err):
		return ErrCodeRateLimited
	case errors.IsIndexUnavailable(err):
		return ErrCodeIndexUnavailable
	default:
		return ErrCodeSearchFailed
	}
}
