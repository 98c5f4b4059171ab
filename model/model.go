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

// Package model defines the interface between agents and language models.
//
// An LLM implementation adapts a concrete provider SDK to the request and
// response types the flow understands. Providers are expected to be
// stateless: all conversation context travels in the LLMRequest.
package model

import (
	"context"
	"iter"

	"google.golang.org/genai"
)

// LLM is the interface implemented by language model providers.
type LLM interface {
	// Name returns the model identifier, e.g. "gemini-2.5-flash".
	Name() string

	// GenerateContent requests a model turn. When stream is true the
	// returned sequence yields partial responses followed by the complete
	// one; otherwise it yields exactly one response. The sequence stops
	// early if the consumer stops iterating or ctx is canceled.
	GenerateContent(ctx context.Context, req *LLMRequest, stream bool) iter.Seq2[*LLMResponse, error]
}

// LLMRequest carries everything a model needs to produce the next turn.
type LLMRequest struct {
	// Model optionally overrides the provider's default model name.
	Model string

	// Contents is the conversation history, ordered oldest first.
	Contents []*genai.Content

	// Config holds generation settings, the system instruction and the
	// declared tools.
	Config *genai.GenerateContentConfig

	// Tools indexes the tools declared in Config by name, so that the
	// flow can dispatch function calls without re-scanning declarations.
	Tools map[string]any
}

// LLMResponse is a single model response, possibly one chunk of a stream.
type LLMResponse struct {
	// Content is the response payload. Nil when the model returned an
	// error instead of content.
	Content *genai.Content

	// Partial reports whether this is an intermediate streaming chunk.
	// Partial responses are never persisted to the session.
	Partial bool

	// TurnComplete reports whether the model finished its turn. Only
	// meaningful in streaming mode.
	TurnComplete bool

	// Interrupted reports whether generation was cut off, e.g. by a
	// canceled bidi stream.
	Interrupted bool

	// ErrorCode and ErrorMessage carry a model-side failure (safety
	// block, recitation, prompt feedback). A response with an ErrorCode
	// has no usable Content.
	ErrorCode    string
	ErrorMessage string

	FinishReason      genai.FinishReason
	UsageMetadata     *genai.GenerateContentResponseUsageMetadata
	GroundingMetadata *genai.GroundingMetadata
	CitationMetadata  *genai.CitationMetadata
	AvgLogprobs       float64
	LogprobsResult    *genai.LogprobsResult

	// CustomMetadata is a free-form bag for plugin- or provider-specific
	// annotations. It is carried on events but never sent to the model.
	CustomMetadata map[string]any
}
