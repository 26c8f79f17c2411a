// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/taskwire/taskwire/server/event"
	"github.com/taskwire/taskwire/server/storage"
)

// Option configures a DefaultTaskManager.
type Option func(*DefaultTaskManager)

// WithStorage sets the task storage backend.
func WithStorage(s storage.TaskStorage) Option {
	return func(m *DefaultTaskManager) {
		m.storage = s
	}
}

// WithHistoryProvider sets the session history backend.
func WithHistoryProvider(h storage.HistoryProvider) Option {
	return func(m *DefaultTaskManager) {
		m.history = h
	}
}

// WithProcessor sets the response processor.
func WithProcessor(p ResponseProcessor) Option {
	return func(m *DefaultTaskManager) {
		m.processor = p
	}
}

// WithNotifier sets the push notification handler.
func WithNotifier(n NotificationHandler) Option {
	return func(m *DefaultTaskManager) {
		m.notifier = n
	}
}

// WithBroker sets the stream event broker.
func WithBroker(b *event.Broker) Option {
	return func(m *DefaultTaskManager) {
		m.broker = b
	}
}

// WithQueueSize sets the per-subscriber event buffer size used when the
// default broker is built.
func WithQueueSize(size int) Option {
	return func(m *DefaultTaskManager) {
		m.queueSize = size
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *DefaultTaskManager) {
		m.logger = logger
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *DefaultTaskManager) {
		m.tracer = tracer
	}
}
