// Package mcp exposes the matcher as Model Context Protocol tools over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"

	nocerrors "github.com/Aman-CERP/nocmatch/internal/errors"
)

// Custom MCP error codes for nocmatch.
const (
	// ErrCodeNotReady indicates no taxonomy snapshot is loaded.
	ErrCodeNotReady = -32001

	// ErrCodeRetrievalUnavailable indicates the embedding service failed.
	ErrCodeRetrievalUnavailable = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeDataUnavailable indicates the taxonomy file is missing or empty.
	ErrCodeDataUnavailable = -32004

	// ErrCodeRebuildLocked indicates another process is rebuilding the index.
	ErrCodeRebuildLocked = -32005

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams  = -32602
	ErrCodeMethodNotFound = -32601
	ErrCodeInternalError  = -32603
)

// MCPError is a protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var me *nocerrors.MatchError
	if errors.As(err, &me) {
		return mapMatchError(me)
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

// NewMethodNotFoundError creates an error for an unknown tool.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

func mapMatchError(me *nocerrors.MatchError) *MCPError {
	message := me.Message
	if me.Suggestion != "" {
		message = fmt.Sprintf("%s %s", me.Message, me.Suggestion)
	}

	switch me.Code {
	case nocerrors.ErrCodeNotReady:
		return &MCPError{Code: ErrCodeNotReady, Message: message}
	case nocerrors.ErrCodeDataUnavailable, nocerrors.ErrCodeFileNotFound:
		return &MCPError{Code: ErrCodeDataUnavailable, Message: message}
	case nocerrors.ErrCodeRebuildLocked:
		return &MCPError{Code: ErrCodeRebuildLocked, Message: message}
	case nocerrors.ErrCodeRetrievalUnavailable:
		return &MCPError{Code: ErrCodeRetrievalUnavailable, Message: message}
	}

	switch me.Category {
	case nocerrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	case nocerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
