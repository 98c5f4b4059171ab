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

package runner_test

import (
	"testing"

	"google.golang.org/genai"

	"github.com/quartet-ai/maestro/agent"
	"github.com/quartet-ai/maestro/agent/llmagent"
	"github.com/quartet-ai/maestro/internal/testutil"
	"github.com/quartet-ai/maestro/session"
)

func TestRunner_CommitsEventsToSession(t *testing.T) {
	mockModel := &testutil.MockModel{
		Responses: []*genai.Content{
			genai.NewContentFromText("echo", genai.RoleModel),
		},
	}
	a, err := llmagent.New(llmagent.Config{
		Name:  "echo_agent",
		Model: mockModel,
	})
	if err != nil {
		t.Fatalf("llmagent.New failed: %v", err)
	}

	r := testutil.NewTestAgentRunner(t, a)
	events, err := testutil.CollectEvents(r.Run(t, "s1", "hello"))
	if err != nil {
		t.Fatalf("stream ended with error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	// The session holds the user message and the model response; both
	// were committed before the stream finished.
	resp, err := r.Sessions.Get(t.Context(), &session.GetRequest{
		AppName:   "test-app",
		UserID:    "test-user",
		SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	stored := resp.Session.Events()
	if stored.Len() != 2 {
		t.Fatalf("session has %d events, want 2", stored.Len())
	}
	if got := stored.At(0).Author; got != "user" {
		t.Errorf("events[0].Author = %q, want user", got)
	}
	if got := stored.At(1).Author; got != "echo_agent" {
		t.Errorf("events[1].Author = %q, want echo_agent", got)
	}
}

func TestRunner_TransferTargetMissing(t *testing.T) {
	// The model names an agent that does not exist anywhere in the tree.
	// The runner reports it as an error event instead of failing the
	// stream.
	mockModel := &testutil.MockModel{
		Responses: []*genai.Content{
			genai.NewContentFromFunctionCall("transfer_to_agent",
				map[string]any{"agent_name": "ghost"}, genai.RoleModel),
		},
	}

	sub, err := llmagent.New(llmagent.Config{Name: "sub_agent", Model: mockModel})
	if err != nil {
		t.Fatalf("llmagent.New failed: %v", err)
	}
	root, err := llmagent.New(llmagent.Config{
		Name:      "root_agent",
		Model:     mockModel,
		SubAgents: []agent.Agent{sub},
	})
	if err != nil {
		t.Fatalf("llmagent.New failed: %v", err)
	}

	r := testutil.NewTestAgentRunner(t, root)
	events, err := testutil.CollectEvents(r.Run(t, "s1", "go"))
	if err != nil {
		t.Fatalf("stream ended with error: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("no events yielded")
	}
	last := events[len(events)-1]
	if last.ErrorCode != "transfer_target_missing" {
		t.Errorf("last event ErrorCode = %q, want transfer_target_missing", last.ErrorCode)
	}
	if last.Author != "root_agent" {
		t.Errorf("last event Author = %q, want root_agent", last.Author)
	}
}
