// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"net/http"
)

// Invoker performs one HTTP exchange.
type Invoker func(ctx context.Context, req *http.Request) (*http.Response, error)

// Interceptor wraps an Invoker, typically to add headers, tracing or
// retries around every request the client sends.
type Interceptor func(next Invoker) Invoker

// chainInterceptors composes interceptors so the first registered one
// is the outermost wrapper.
func chainInterceptors(interceptors []Interceptor, invoke Invoker) Invoker {
	for i := len(interceptors) - 1; i >= 0; i-- {
		invoke = interceptors[i](invoke)
	}
	return invoke
}

// HeaderInterceptor returns an interceptor setting a fixed header on
// every request, e.g. an authorization token.
func HeaderInterceptor(key, value string) Interceptor {
	return func(next Invoker) Invoker {
		return func(ctx context.Context, req *http.Request) (*http.Response, error) {
			req.Header.Set(key, value)
			return next(ctx, req)
		}
	}
}
