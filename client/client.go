// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package client implements the JSON-RPC client side of the task
// exchange protocol: synchronous task calls plus SSE-backed streaming
// subscriptions.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/taskwire/taskwire"
)

const defaultUserAgent = "taskwire-client/0.1"

// Client talks to one task exchange endpoint.
type Client struct {
	httpClient   *http.Client
	url          string
	userAgent    string
	interceptors []Interceptor
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client. The default client
// carries no timeout so streaming subscriptions can stay open.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) { c.userAgent = userAgent }
}

// WithInterceptor appends a request interceptor. Interceptors run in
// registration order around every HTTP exchange.
func WithInterceptor(interceptors ...Interceptor) ClientOption {
	return func(c *Client) { c.interceptors = append(c.interceptors, interceptors...) }
}

// New creates a Client for the endpoint at url.
func New(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:       url,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c
}

// SendTask submits a task and waits for its final state.
func (c *Client) SendTask(ctx context.Context, params taskwire.SendTaskParams) (*taskwire.Task, error) {
	var task taskwire.Task
	if err := c.call(ctx, "tasks/send", params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTask retrieves the current state of a task.
func (c *Client) GetTask(ctx context.Context, params taskwire.TaskQueryParams) (*taskwire.Task, error) {
	var task taskwire.Task
	if err := c.call(ctx, "tasks/get", params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CancelTask requests cooperative cancellation of a running task.
func (c *Client) CancelTask(ctx context.Context, params taskwire.TaskIDParams) (*taskwire.Task, error) {
	var task taskwire.Task
	if err := c.call(ctx, "tasks/cancel", params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// SetTaskPushNotification registers a webhook for a task's terminal
// status updates.
func (c *Client) SetTaskPushNotification(ctx context.Context, config taskwire.TaskPushNotificationConfig) (*taskwire.TaskPushNotificationConfig, error) {
	var stored taskwire.TaskPushNotificationConfig
	if err := c.call(ctx, "tasks/pushNotification/set", config, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetTaskPushNotification retrieves the webhook registered for a task.
func (c *Client) GetTaskPushNotification(ctx context.Context, params taskwire.TaskIDParams) (*taskwire.TaskPushNotificationConfig, error) {
	var config taskwire.TaskPushNotificationConfig
	if err := c.call(ctx, "tasks/pushNotification/get", params, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// call performs one JSON-RPC exchange, decoding a successful result
// into result. A JSON-RPC error object is returned as *JSONRPCError.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	body, err := c.post(ctx, method, params, "application/json")
	if err != nil {
		return err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var resp struct {
		JSONRPC string                 `json:"jsonrpc"`
		Result  json.RawMessage        `json:"result,omitempty"`
		Error   *taskwire.JSONRPCError `json:"error,omitempty"`
	}
	if err := sonic.ConfigDefault.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && len(resp.Result) > 0 {
		if err := sonic.ConfigDefault.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("failed to decode result: %w", err)
		}
	}
	return nil
}

// post sends one JSON-RPC request and returns the response body when
// the HTTP exchange itself succeeded.
func (c *Client) post(ctx context.Context, method string, params any, accept string) (io.ReadCloser, error) {
	req := taskwire.JSONRPCRequest{
		JSONRPCMessage: taskwire.JSONRPCMessage{
			JSONRPC: taskwire.JSONRPCVersion,
			ID:      uuid.NewString(),
		},
		Method: method,
		Params: params,
	}
	payload, err := sonic.ConfigDefault.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("User-Agent", c.userAgent)

	invoke := func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return c.httpClient.Do(req)
	}
	resp, err := chainInterceptors(c.interceptors, invoke)(ctx, httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
