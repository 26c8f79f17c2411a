// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/taskwire/taskwire"
	"github.com/taskwire/taskwire/server/storage"
)

// NotificationTokenHeader carries the client-supplied opaque token on
// webhook deliveries so the receiver can correlate them.
const NotificationTokenHeader = "X-Taskwire-Notification-Token"

// NotificationHandler manages webhook configurations and delivers task
// snapshots to them on status changes.
type NotificationHandler interface {
	// SetConfig registers or replaces the webhook for a task.
	SetConfig(ctx context.Context, taskID string, config *taskwire.PushNotificationConfig) error

	// GetConfig retrieves the webhook registered for a task.
	// Returns taskwire.TaskNotFoundError if none is registered.
	GetConfig(ctx context.Context, taskID string) (*taskwire.PushNotificationConfig, error)

	// HasConfig reports whether a webhook is registered for the task.
	HasConfig(ctx context.Context, taskID string) bool

	// Notify delivers the task snapshot to its registered webhook.
	// A missing configuration is not an error.
	Notify(ctx context.Context, task *taskwire.Task) error
}

// HTTPNotifier delivers task snapshots over HTTP POST. When a signing
// key is configured, each delivery carries a JWT binding the request
// body hash and issue time, so receivers can authenticate the sender
// and reject replays.
type HTTPNotifier struct {
	configs    storage.PushConfigStore
	client     *http.Client
	signingKey []byte
	logger     *slog.Logger
}

var _ NotificationHandler = (*HTTPNotifier)(nil)

// NotifierOption configures an HTTPNotifier.
type NotifierOption func(*HTTPNotifier)

// WithNotifierClient sets the HTTP client used for deliveries.
func WithNotifierClient(client *http.Client) NotifierOption {
	return func(n *HTTPNotifier) {
		n.client = client
	}
}

// WithSigningKey enables JWT signing (HS256) of webhook deliveries with
// the given shared secret.
func WithSigningKey(key []byte) NotifierOption {
	return func(n *HTTPNotifier) {
		n.signingKey = key
	}
}

// WithNotifierLogger sets the logger for delivery failures.
func WithNotifierLogger(logger *slog.Logger) NotifierOption {
	return func(n *HTTPNotifier) {
		n.logger = logger
	}
}

// NewHTTPNotifier creates an HTTPNotifier backed by the given config
// store.
func NewHTTPNotifier(configs storage.PushConfigStore, opts ...NotifierOption) *HTTPNotifier {
	n := &HTTPNotifier{
		configs: configs,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SetConfig registers or replaces the webhook for a task.
func (n *HTTPNotifier) SetConfig(ctx context.Context, taskID string, config *taskwire.PushNotificationConfig) error {
	return n.configs.SaveConfig(ctx, taskID, config)
}

// GetConfig retrieves the webhook registered for a task.
func (n *HTTPNotifier) GetConfig(ctx context.Context, taskID string) (*taskwire.PushNotificationConfig, error) {
	return n.configs.GetConfig(ctx, taskID)
}

// HasConfig reports whether a webhook is registered for the task.
func (n *HTTPNotifier) HasConfig(ctx context.Context, taskID string) bool {
	_, err := n.configs.GetConfig(ctx, taskID)
	return err == nil
}

// Notify delivers the task snapshot to its registered webhook.
func (n *HTTPNotifier) Notify(ctx context.Context, task *taskwire.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	config, err := n.configs.GetConfig(ctx, task.ID)
	if err != nil {
		var notFound taskwire.TaskNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to load push notification config: %w", err)
	}

	body, err := sonic.ConfigDefault.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if config.Token != "" {
		req.Header.Set(NotificationTokenHeader, config.Token)
	}

	if len(n.signingKey) > 0 {
		token, err := n.signRequest(body)
		if err != nil {
			return fmt.Errorf("failed to sign notification: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification failed with status code: %d", resp.StatusCode)
	}

	n.logger.InfoContext(ctx, "push notification delivered",
		"task_id", task.ID, "state", task.Status.State, "url", config.URL)
	return nil
}

// signRequest builds a JWT binding the request body hash and issue
// time.
func (n *HTTPNotifier) signRequest(body []byte) (string, error) {
	sum := sha256.Sum256(body)

	tok, err := jwt.NewBuilder().
		IssuedAt(time.Now()).
		Claim("request_body_sha256", hex.EncodeToString(sum[:])).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256(), n.signingKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), nil
}
