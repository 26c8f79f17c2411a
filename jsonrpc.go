// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package taskwire

// JSONRPCMessage is the base structure for all JSON-RPC 2.0 messages.
type JSONRPCMessage struct {
	// JSONRPC version, always "2.0".
	JSONRPC string `json:"jsonrpc"`
	// ID is a unique identifier for request/response correlation.
	ID any `json:"id,omitempty"` // string, number, or null
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPCMessage
	// Method identifies the operation to perform.
	Method string `json:"method"`
	// Params contains parameters for the method.
	Params any `json:"params,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	// Code is the error code.
	Code int `json:"code"`
	// Message is a short description of the error.
	Message string `json:"message"`
	// Data contains optional additional error details.
	Data any `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *JSONRPCError) Error() string {
	return e.Message
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPCMessage
	// Result contains the successful result data (can be null).
	// Mutually exclusive with Error.
	Result any `json:"result,omitempty"`
	// Error contains an error object if the request failed.
	// Mutually exclusive with Result.
	Error *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCVersion is the protocol version carried by every message.
const JSONRPCVersion = "2.0"

// NewJSONRPCResponse creates a success response correlated to the given
// request id.
func NewJSONRPCResponse(id any, result any) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion, ID: id},
		Result:         result,
	}
}

// NewJSONRPCErrorResponse creates an error response correlated to the
// given request id.
func NewJSONRPCErrorResponse(id any, rpcErr *JSONRPCError) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion, ID: id},
		Error:          rpcErr,
	}
}

// NewJSONParseError creates the error object for an invalid JSON payload.
func NewJSONParseError() *JSONRPCError {
	return &JSONRPCError{
		Code:    ErrorCodeJSONParse,
		Message: "Invalid JSON payload",
	}
}

// NewInvalidRequestError creates the error object for a request payload
// validation failure.
func NewInvalidRequestError() *JSONRPCError {
	return &JSONRPCError{
		Code:    ErrorCodeInvalidRequest,
		Message: "Request payload validation error",
	}
}

// NewMethodNotFoundError creates the error object for an unknown method.
func NewMethodNotFoundError() *JSONRPCError {
	return &JSONRPCError{
		Code:    ErrorCodeMethodNotFound,
		Message: "Method not found",
	}
}
