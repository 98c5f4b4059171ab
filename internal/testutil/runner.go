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

package testutil

import (
	"errors"
	"iter"
	"testing"

	"google.golang.org/genai"

	"github.com/quartet-ai/maestro/agent"
	"github.com/quartet-ai/maestro/artifact"
	"github.com/quartet-ai/maestro/runner"
	"github.com/quartet-ai/maestro/session"
)

const (
	testAppName = "test-app"
	testUserID  = "test-user"
)

// AgentRunner drives an agent under test against in-memory services.
type AgentRunner struct {
	Runner   *runner.Runner
	Sessions session.Service
}

// NewTestAgentRunner returns a runner for a, wired to in-memory session
// and artifact services.
func NewTestAgentRunner(t *testing.T, a agent.Agent) *AgentRunner {
	t.Helper()
	return NewTestAgentRunnerWithPluginManager(t, a, runner.PluginConfig{})
}

// NewTestAgentRunnerWithPluginManager is NewTestAgentRunner with a
// plugin configuration.
func NewTestAgentRunnerWithPluginManager(t *testing.T, a agent.Agent, plugins runner.PluginConfig) *AgentRunner {
	t.Helper()
	sessions := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:         testAppName,
		Agent:           a,
		SessionService:  sessions,
		ArtifactService: artifact.InMemoryService(),
		PluginConfig:    plugins,
	})
	if err != nil {
		t.Fatalf("failed to create runner: %v", err)
	}
	return &AgentRunner{Runner: r, Sessions: sessions}
}

// Run sends text as a user message in the given session, creating the
// session on first use. Empty text runs the agent without a new message.
func (r *AgentRunner) Run(t *testing.T, sessionID, text string) iter.Seq2[*session.Event, error] {
	t.Helper()
	var msg *genai.Content
	if text != "" {
		msg = genai.NewContentFromText(text, genai.RoleUser)
	}
	return r.RunContent(t, sessionID, msg)
}

// RunContent is Run for arbitrary user content, e.g. a function
// response completing a long-running tool call.
func (r *AgentRunner) RunContent(t *testing.T, sessionID string, msg *genai.Content) iter.Seq2[*session.Event, error] {
	t.Helper()
	ctx := t.Context()
	_, err := r.Sessions.Get(ctx, &session.GetRequest{
		AppName:   testAppName,
		UserID:    testUserID,
		SessionID: sessionID,
	})
	if errors.Is(err, session.ErrSessionNotFound) {
		_, err = r.Sessions.Create(ctx, &session.CreateRequest{
			AppName:   testAppName,
			UserID:    testUserID,
			SessionID: sessionID,
		})
	}
	if err != nil {
		t.Fatalf("failed to prepare session %q: %v", sessionID, err)
	}
	return r.Runner.Run(ctx, testUserID, sessionID, msg, agent.RunConfig{})
}

// CollectEvents drains the stream, returning the yielded events and the
// error that ended it, if any.
func CollectEvents(stream iter.Seq2[*session.Event, error]) ([]*session.Event, error) {
	var events []*session.Event
	for ev, err := range stream {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// CollectParts drains the stream and returns the content parts of every
// yielded event, in order.
func CollectParts(stream iter.Seq2[*session.Event, error]) ([]*genai.Part, error) {
	var parts []*genai.Part
	for ev, err := range stream {
		if err != nil {
			return parts, err
		}
		if ev.Content == nil {
			continue
		}
		parts = append(parts, ev.Content.Parts...)
	}
	return parts, nil
}

// CollectTextParts drains the stream and returns the text of every text
// part, in order.
func CollectTextParts(stream iter.Seq2[*session.Event, error]) ([]string, error) {
	parts, err := CollectParts(stream)
	var texts []string
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return texts, err
}