// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package taskwire provides the protocol data model for agent-to-agent
// task exchange. A client submits a task (a user message plus optional
// prior session context) and receives either a single completed result
// or an incrementally streamed sequence of partial results terminated
// by a final event.
//
// The package contains the wire types shared by clients and servers:
// tasks, task statuses, messages and their part variants, artifacts,
// streaming update events, push notification configuration, the
// JSON-RPC framing types, and the protocol error taxonomy. The task
// orchestration runtime lives in the server package.
package taskwire
