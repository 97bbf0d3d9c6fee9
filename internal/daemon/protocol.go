package daemon

import (
	"fmt"

	"github.com/secondbrain-labs/brainmcp/internal/service"
)

// JSON-RPC 2.0 method names.
const (
	MethodPing   = "ping"
	MethodStatus = "status"
	MethodSearch = "search"
	MethodResync = "resync"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Custom error codes for daemon-specific errors.
const (
	ErrCodeIndexUnavailable = -32001
	ErrCodeRateLimited      = -32002
	ErrCodeSearchFailed     = -32003
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      string `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	return Response{JSONRPC: "2.0", Result: result, ID: id}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	}
}

// SearchParams are the parameters for the search method. ClientID is
// the admission identity charged for the call; each CLI invocation
// passes its own so the rate limiter sees real per-client budgets.
type SearchParams struct {
	Query    string `json:"query"`
	K        int    `json:"k,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// Validate checks that required fields are present.
func (p *SearchParams) Validate() error {
	if p.Query == "" {
		return fmt.Errorf("query is required")
	}
	if p.K < 0 {
		p.K = 0
	}
	return nil
}

// ResyncParams are the parameters for the resync method.
type ResyncParams struct {
	Full     bool   `json:"full,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// StatusParams are the parameters for the status method.
type StatusParams struct {
	ClientID string `json:"client_id,omitempty"`
}

// SearchResult is one search hit on the wire.
type SearchResult struct {
	ID           string   `json:"id"`
	Path         string   `json:"path"`
	Title        string   `json:"title,omitempty"`
	Content      string   `json:"content"`
	Kind         string   `json:"kind"`
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
	StartLine    int      `json:"start_line,omitempty"`
	EndLine      int      `json:"end_line,omitempty"`
}

// StatusResult reports the serving process and subsystem health.
type StatusResult struct {
	Running bool           `json:"running"`
	PID     int            `json:"pid"`
	Uptime  string         `json:"uptime"`
	Stats   *service.Stats `json:"stats,omitempty"`
}

// ResyncResult acknowledges a queued resync.
type ResyncResult struct {
	Queued bool `json:"queued"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}
