// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package handler exposes a TaskManager over JSON-RPC 2.0 on a single
// HTTP POST endpoint. Streaming methods answer with Server-Sent Events,
// every frame a JSON-RPC response wrapping one task event.
package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskwire/taskwire"
	"github.com/taskwire/taskwire/server"
)

// JSON-RPC method names of the task exchange surface.
const (
	MethodSendTask            = "tasks/send"
	MethodSendTaskSubscribe   = "tasks/sendSubscribe"
	MethodGetTask             = "tasks/get"
	MethodCancelTask          = "tasks/cancel"
	MethodSetPushNotification = "tasks/pushNotification/set"
	MethodGetPushNotification = "tasks/pushNotification/get"
	MethodResubscribe         = "tasks/resubscribe"
)

// maxRequestBody caps the accepted request payload at 4 MiB.
const maxRequestBody = 4 << 20

// rpcRequest mirrors taskwire.JSONRPCRequest but defers params decoding
// until the method is known.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Handler is the JSON-RPC HTTP front of a TaskManager.
type Handler struct {
	manager server.TaskManager
	logger  *slog.Logger
	tracer  trace.Tracer
}

var _ http.Handler = (*Handler)(nil)

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// WithTracer sets the tracer used to span each request.
func WithTracer(tracer trace.Tracer) HandlerOption {
	return func(h *Handler) { h.tracer = tracer }
}

// NewHandler creates a Handler serving the given TaskManager.
func NewHandler(manager server.TaskManager, opts ...HandlerOption) *Handler {
	h := &Handler{
		manager: manager,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.tracer == nil {
		h.tracer = otel.Tracer("taskwire/server/handler")
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		h.writeError(w, nil, taskwire.NewJSONParseError())
		return
	}

	var req rpcRequest
	if err := sonic.ConfigDefault.Unmarshal(body, &req); err != nil {
		h.writeError(w, nil, taskwire.NewJSONParseError())
		return
	}
	if req.JSONRPC != taskwire.JSONRPCVersion || req.Method == "" {
		h.writeError(w, req.ID, taskwire.NewInvalidRequestError())
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "taskwire.handler."+req.Method,
		trace.WithAttributes(attribute.String("rpc.method", req.Method)))
	defer span.End()
	r = r.WithContext(ctx)

	switch req.Method {
	case MethodSendTask:
		h.handleSendTask(w, r, req)
	case MethodSendTaskSubscribe:
		h.handleSendTaskSubscribe(w, r, req)
	case MethodGetTask:
		h.handleGetTask(w, r, req)
	case MethodCancelTask:
		h.handleCancelTask(w, r, req)
	case MethodSetPushNotification:
		h.handleSetPushNotification(w, r, req)
	case MethodGetPushNotification:
		h.handleGetPushNotification(w, r, req)
	case MethodResubscribe:
		h.handleResubscribe(w, r, req)
	default:
		h.writeError(w, req.ID, taskwire.NewMethodNotFoundError())
	}
}

func (h *Handler) handleSendTask(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	var params taskwire.SendTaskParams
	if !h.decodeParams(w, req, &params) {
		return
	}

	task, err := h.manager.OnSendTask(r.Context(), params)
	if err != nil {
		h.writeError(w, req.ID, taskwire.WireError(err))
		return
	}
	h.writeResult(w, req.ID, task)
}

func (h *Handler) handleSendTaskSubscribe(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	var params taskwire.SendTaskParams
	if !h.decodeParams(w, req, &params) {
		return
	}

	events, err := h.manager.OnSendTaskSubscribe(r.Context(), params)
	if err != nil {
		h.writeError(w, req.ID, taskwire.WireError(err))
		return
	}
	h.streamEvents(w, r, req.ID, events)
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	var params taskwire.TaskQueryParams
	if !h.decodeParams(w, req, &params) {
		return
	}

	task, err := h.manager.OnGetTask(r.Context(), params)
	if err != nil {
		h.writeError(w, req.ID, taskwire.WireError(err))
		return
	}
	h.writeResult(w, req.ID, task)
}

func (h *Handler) handleCancelTask(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	var params taskwire.TaskIDParams
	if !h.decodeParams(w, req, &params) {
		return
	}

	task, err := h.manager.OnCancelTask(r.Context(), params)
	if err != nil {
		h.writeError(w, req.ID, taskwire.WireError(err))
		return
	}
	h.writeResult(w, req.ID, task)
}

func (h *Handler) handleSetPushNotification(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	var config taskwire.TaskPushNotificationConfig
	if !h.decodeParams(w, req, &config) {
		return
	}

	stored, err := h.manager.OnSetTaskPushNotification(r.Context(), config)
	if err != nil {
		h.writeError(w, req.ID, taskwire.WireError(err))
		return
	}
	h.writeResult(w, req.ID, stored)
}

func (h *Handler) handleGetPushNotification(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	var params taskwire.TaskIDParams
	if !h.decodeParams(w, req, &params) {
		return
	}

	config, err := h.manager.OnGetTaskPushNotification(r.Context(), params)
	if err != nil {
		h.writeError(w, req.ID, taskwire.WireError(err))
		return
	}
	h.writeResult(w, req.ID, config)
}

func (h *Handler) handleResubscribe(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	var params taskwire.TaskQueryParams
	if !h.decodeParams(w, req, &params) {
		return
	}

	events, err := h.manager.OnResubscribeToTask(r.Context(), params)
	if err != nil {
		h.writeError(w, req.ID, taskwire.WireError(err))
		return
	}
	h.streamEvents(w, r, req.ID, events)
}

// decodeParams unmarshals the raw params into dst, answering an invalid
// params error on failure. Reports whether decoding succeeded.
func (h *Handler) decodeParams(w http.ResponseWriter, req rpcRequest, dst any) bool {
	if len(req.Params) == 0 {
		h.writeError(w, req.ID, taskwire.WireError(taskwire.NewInvalidParamsError("missing params")))
		return false
	}
	if err := sonic.ConfigDefault.Unmarshal(req.Params, dst); err != nil {
		h.writeError(w, req.ID, taskwire.WireError(taskwire.NewInvalidParamsError(err.Error())))
		return false
	}
	return true
}

func (h *Handler) writeResult(w http.ResponseWriter, id any, result any) {
	h.writeResponse(w, taskwire.NewJSONRPCResponse(id, result))
}

func (h *Handler) writeError(w http.ResponseWriter, id any, rpcErr *taskwire.JSONRPCError) {
	h.writeResponse(w, taskwire.NewJSONRPCErrorResponse(id, rpcErr))
}

func (h *Handler) writeResponse(w http.ResponseWriter, resp *taskwire.JSONRPCResponse) {
	payload, err := sonic.ConfigDefault.Marshal(resp)
	if err != nil {
		h.logger.Warn("failed to encode response", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(payload); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}
