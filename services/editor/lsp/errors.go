// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"errors"
	"fmt"
)

// Sentinel errors for the language server client.
var (
	// ErrNotReady indicates the connection has not completed the initialize handshake.
	ErrNotReady = errors.New("language server not ready")

	// ErrServerNotFound indicates no launch candidate could be spawned.
	ErrServerNotFound = errors.New("language server not found")

	// ErrSpawnTimeout indicates the process did not start within the spawn timeout.
	ErrSpawnTimeout = errors.New("language server spawn timeout")

	// ErrParse indicates a framed body was not valid JSON.
	ErrParse = errors.New("lsp parse error")

	// ErrClientClosed indicates the client loop has been shut down.
	ErrClientClosed = errors.New("lsp client closed")
)

// NotReadyMessage is the error message handed to request handlers when the
// connection is not ready.
const NotReadyMessage = "Language server is not ready."

// JSON-RPC and LSP error codes.
const (
	CodeParseError           = -32700
	CodeInvalidRequest       = -32600
	CodeMethodNotFound       = -32601
	CodeInvalidParams        = -32602
	CodeInternalError        = -32603
	CodeServerNotInitialized = -32002
	CodeUnknownErrorCode     = -32001
	CodeRequestCancelled     = -32800
	CodeContentModified      = -32801
)

// ResponseError is a JSON-RPC error object returned by the language server.
//
// A nil *ResponseError passed to a ResponseHandler means the request succeeded.
type ResponseError struct {
	// Code is the JSON-RPC error code.
	Code int `json:"code"`

	// Message is the short description supplied by the server.
	Message string `json:"message"`

	// Data is optional additional information.
	Data interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("LSP error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("LSP error %d: %s", e.Code, e.Message)
}

// IsMethodNotFound returns true if the method is not supported by the server.
func (e *ResponseError) IsMethodNotFound() bool {
	return e.Code == CodeMethodNotFound
}

// IsRequestCancelled returns true if the request was cancelled.
func (e *ResponseError) IsRequestCancelled() bool {
	return e.Code == CodeRequestCancelled
}

// IsServerNotInitialized returns true if the server is not initialized.
func (e *ResponseError) IsServerNotInitialized() bool {
	return e.Code == CodeServerNotInitialized
}

// Is reports a server-not-initialized error as ErrNotReady.
func (e *ResponseError) Is(target error) bool {
	return target == ErrNotReady && e.IsServerNotInitialized()
}

// notReadyError is the error delivered to handlers of requests issued before
// the handshake completed.
func notReadyError() *ResponseError {
	return &ResponseError{Code: CodeServerNotInitialized, Message: NotReadyMessage}
}
