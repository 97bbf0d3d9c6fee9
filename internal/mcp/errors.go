// Package mcp implements the Model Context Protocol server exposing
// the document index to AI clients over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"

	brainerrors "github.com/secondbrain-labs/brainmcp/internal/errors"
)

// Custom MCP error codes, in the implementation-defined JSON-RPC range.
const (
	// ErrCodeIndexUnavailable indicates no index has been built yet.
	ErrCodeIndexUnavailable = -32001

	// ErrCodeRateLimited indicates the caller's admission budget is spent.
	ErrCodeRateLimited = -32002

	// ErrCodeGenerationFailed indicates the chat model call failed.
	ErrCodeGenerationFailed = -32003

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors. Structured errors
// keep their message and suggestion; anything unknown becomes an
// internal error without leaking details to the client.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var be *brainerrors.BrainError
	if errors.As(err, &be) {
		return mapBrainError(err, be)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

func mapBrainError(err error, be *brainerrors.BrainError) *MCPError {
	message := be.Message
	if be.Suggestion != "" {
		message = fmt.Sprintf("%s %s", be.Message, be.Suggestion)
	}

	// The stable signals first; the cache wraps compute failures around
	// their cause, so probe the whole chain, not just the outer error.
	switch {
	case brainerrors.IsRateLimited(err):
		return &MCPError{Code: ErrCodeRateLimited, Message: message}
	case brainerrors.IsIndexUnavailable(err):
		return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
	}

	switch be.Category {
	case brainerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case brainerrors.CategoryNetwork:
		if brainerrors.HasCode(err, brainerrors.ErrCodeGenerationFailed) {
			return &MCPError{Code: ErrCodeGenerationFailed, Message: message}
		}
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
