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

// Package testutil holds test doubles and harnesses shared by the
// package tests: a scripted model and a runner wired to in-memory
// services.
package testutil

import (
	"context"
	"errors"
	"iter"
	"sync"

	"google.golang.org/genai"

	"github.com/quartet-ai/maestro/internal/llminternal"
	"github.com/quartet-ai/maestro/model"
)

// MockModel is a scripted model.LLM. Each call consumes the next entry
// of Responses; a streaming call consumes StreamResponsesCount entries
// and yields them as partial chunks followed by the aggregate. When the
// script runs out the model returns an error.
type MockModel struct {
	Responses            []*genai.Content
	StreamResponsesCount int

	// Requests records every request the model received, in order.
	Requests []*model.LLMRequest

	mu   sync.Mutex
	next int
}

var _ model.LLM = (*MockModel)(nil)

func (m *MockModel) Name() string { return "mock-model" }

func (m *MockModel) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	if stream {
		return m.GenerateStream(ctx, req)
	}
	return func(yield func(*model.LLMResponse, error) bool) {
		contents, err := m.take(req, 1)
		if err != nil {
			yield(nil, err)
			return
		}
		yield(&model.LLMResponse{Content: contents[0], TurnComplete: true}, nil)
	}
}

// GenerateStream replays the next StreamResponsesCount scripted
// responses as the chunks of a single model stream.
func (m *MockModel) GenerateStream(ctx context.Context, req *model.LLMRequest) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		n := m.StreamResponsesCount
		if n <= 0 {
			n = 1
		}
		chunks, err := m.take(req, n)
		if err != nil {
			yield(nil, err)
			return
		}
		aggregator := llminternal.NewStreamingResponseAggregator()
		for _, c := range chunks {
			genResp := &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{Content: c}},
			}
			for resp, err := range aggregator.ProcessResponse(ctx, genResp) {
				if !yield(resp, err) {
					return
				}
			}
		}
		if final := aggregator.Close(); final != nil {
			yield(final, nil)
		}
	}
}

// take records the request and removes up to n responses from the
// script, fewer if the script is nearly exhausted.
func (m *MockModel) take(req *model.LLMRequest, n int) ([]*genai.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if m.next >= len(m.Responses) {
		return nil, errors.New("no data")
	}
	if rest := len(m.Responses) - m.next; n > rest {
		n = rest
	}
	contents := m.Responses[m.next : m.next+n]
	m.next += n
	return contents, nil
}
