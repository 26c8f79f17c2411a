// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

// Command taskwired runs a task exchange server around a built-in echo
// agent. It is the reference wiring of the handler, task manager and
// storage layers; real deployments swap the agent for their own.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/taskwire/taskwire"
	"github.com/taskwire/taskwire/server"
	"github.com/taskwire/taskwire/server/handler"
	"github.com/taskwire/taskwire/server/storage"
)

// Config is read from TASKWIRE_-prefixed environment variables.
type Config struct {
	// Addr is the listen address of the JSON-RPC endpoint.
	Addr string `env:"ADDR" envDefault:":8080"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"info"`
	// QueueSize bounds each task's event queue.
	QueueSize int `env:"QUEUE_SIZE" envDefault:"1024"`
	// SigningKey, when set, enables HS256-signed webhook deliveries.
	SigningKey string `env:"SIGNING_KEY"`
	// ShutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "TASKWIRE_"})
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	managerOpts := []server.Option{
		server.WithLogger(logger),
		server.WithQueueSize(cfg.QueueSize),
	}
	if cfg.SigningKey != "" {
		notifier := server.NewHTTPNotifier(storage.NewInMemoryPushConfigStore(),
			server.WithSigningKey([]byte(cfg.SigningKey)),
			server.WithNotifierLogger(logger))
		managerOpts = append(managerOpts, server.WithNotifier(notifier))
	}

	manager, err := server.NewDefaultTaskManager(echoAgent(), managerOpts...)
	if err != nil {
		return fmt.Errorf("failed to create task manager: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", handler.NewHandler(manager, handler.WithLogger(logger)))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// echoAgent answers every query with its own text, streamed word by
// word in streaming mode.
func echoAgent() server.Agent {
	return &server.AgentFuncs{
		InvokeFunc: func(ctx context.Context, query, sessionID string, history []*taskwire.Message) (any, error) {
			return query, nil
		},
		StreamFunc: func(ctx context.Context, query, sessionID string, history []*taskwire.Message) (<-chan server.StreamChunk, error) {
			out := make(chan server.StreamChunk)
			go func() {
				defer close(out)
				for _, word := range strings.SplitAfter(query, " ") {
					select {
					case out <- server.StreamChunk{Value: word}:
					case <-ctx.Done():
						return
					}
				}
			}()
			return out, nil
		},
	}
}
