// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runconfig threads the per-invocation runtime configuration
// through the context, so that internal packages can read it without a
// dependency on the public agent package.
package runconfig

import (
	"context"
	"sync/atomic"
)

// StreamingMode mirrors agent.StreamingMode.
type StreamingMode string

const (
	StreamingModeNone StreamingMode = "none"
	StreamingModeSSE  StreamingMode = "sse"
)

// DefaultMaxLLMCalls bounds the model calls of one agent invocation when
// the caller does not set a limit.
const DefaultMaxLLMCalls = 20

// RunConfig is the internal mirror of agent.RunConfig. It also carries
// the invocation's model-call budget, shared across agent transfers.
type RunConfig struct {
	StreamingMode StreamingMode
	MaxLLMCalls   int

	calls atomic.Int64
}

// ConsumeLLMCall takes one model call from the invocation budget and
// reports whether it was still available.
func (c *RunConfig) ConsumeLLMCall() bool {
	return c.calls.Add(1) <= int64(c.MaxLLMCallsOrDefault())
}

// MaxLLMCallsOrDefault returns the configured bound, or
// DefaultMaxLLMCalls when unset.
func (c *RunConfig) MaxLLMCallsOrDefault() int {
	if c == nil || c.MaxLLMCalls <= 0 {
		return DefaultMaxLLMCalls
	}
	return c.MaxLLMCalls
}

type ctxKey int

const runConfigCtxKey ctxKey = 0

// ToContext stores cfg in the context.
func ToContext(ctx context.Context, cfg *RunConfig) context.Context {
	return context.WithValue(ctx, runConfigCtxKey, cfg)
}

// FromContext returns the invocation's run config. A missing config
// behaves like the zero value.
func FromContext(ctx context.Context) *RunConfig {
	cfg, ok := ctx.Value(runConfigCtxKey).(*RunConfig)
	if !ok {
		return &RunConfig{}
	}
	return cfg
}
