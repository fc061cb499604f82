// Package mcp exposes kbqa retrieval over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	kberrors "github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/errors"
)

// Custom MCP error codes for kbqa.
const (
	// ErrCodeIndexNotFound indicates no usable index exists.
	ErrCodeIndexNotFound = -32001

	// ErrCodeEmbeddingFailed indicates embedding generation failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out or an engine was unreachable.
	ErrCodeTimeout = -32003

	// ErrCodeDocumentNotFound indicates an unknown document id.
	ErrCodeDocumentNotFound = -32004

	// Standard JSON-RPC error codes.
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

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var kbErr *kberrors.KBError
	if errors.As(err, &kbErr) {
		return mapKBError(kbErr)
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

// NewDocumentNotFoundError creates an error for an unknown document.
func NewDocumentNotFoundError(id string) *MCPError {
	return &MCPError{
		Code:    ErrCodeDocumentNotFound,
		Message: fmt.Sprintf("Document '%s' not found.", id),
	}
}

func mapKBError(ke *kberrors.KBError) *MCPError {
	message := ke.Message
	if ke.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ke.Message, ke.Suggestion)
	}

	switch ke.Code {
	case kberrors.ErrCodeCorruptIndex, kberrors.ErrCodeStorageUnreachable:
		return &MCPError{Code: ErrCodeIndexNotFound, Message: message}
	case kberrors.ErrCodeEmbeddingFailed:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	}

	switch ke.Category {
	case kberrors.CategoryEngine:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	case kberrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
