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

package runner

import (
	"iter"
	"testing"

	"google.golang.org/genai"

	"github.com/quartet-ai/maestro/agent"
	"github.com/quartet-ai/maestro/agent/llmagent"
	"github.com/quartet-ai/maestro/internal/agent/parentmap"
	"github.com/quartet-ai/maestro/model"
	"github.com/quartet-ai/maestro/session"
)

func TestRunner_findAgentToRun(t *testing.T) {
	t.Parallel()

	tree := newAgentTree(t)

	tests := []struct {
		name      string
		authors   []string
		msg       *genai.Content
		wantAgent agent.Agent
	}{
		{
			name:      "last event from agent allowing transfer",
			authors:   []string{"allows_transfer_agent", "user"},
			wantAgent: tree.allowsTransferAgent,
		},
		{
			name:      "last event from agent not allowing transfer",
			authors:   []string{"no_transfer_agent", "user"},
			wantAgent: tree.root,
		},
		{
			name:      "no events from agents, call root",
			authors:   []string{"user"},
			wantAgent: tree.root,
		},
		{
			name:      "empty session, call root",
			wantAgent: tree.root,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRunner(t, tree.root)
			gotAgent, err := r.findAgentToRun(sessionWithAuthors(t, r, tt.authors...), tt.msg)
			if err != nil {
				t.Fatalf("Runner.findAgentToRun() error = %v", err)
			}
			if tt.wantAgent != gotAgent {
				t.Errorf("Runner.findAgentToRun() = %q, want %q", gotAgent.Name(), tt.wantAgent.Name())
			}
		})
	}
}

func TestRunner_findAgentToRun_FunctionResponse(t *testing.T) {
	t.Parallel()

	// A function response from the user goes back to the agent that made
	// the call, even when that agent is otherwise not resumable.
	tree := newAgentTree(t)
	r := newTestRunner(t, tree.root)

	s := sessionWithAuthors(t, r)
	call := session.NewEvent("inv")
	call.Author = "no_transfer_agent"
	call.LLMResponse = model.LLMResponse{
		Content: &genai.Content{
			Role: genai.RoleModel,
			Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{
				ID:   "call-1",
				Name: "ask_user",
			}}},
		},
	}
	if err := r.sessionService.AppendEvent(t.Context(), s, call); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	msg := &genai.Content{
		Role: genai.RoleUser,
		Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
			ID:       "call-1",
			Name:     "ask_user",
			Response: map[string]any{"answer": "yes"},
		}}},
	}

	gotAgent, err := r.findAgentToRun(s, msg)
	if err != nil {
		t.Fatalf("Runner.findAgentToRun() error = %v", err)
	}
	if gotAgent != tree.noTransferAgent {
		t.Errorf("Runner.findAgentToRun() = %q, want %q", gotAgent.Name(), tree.noTransferAgent.Name())
	}
}

func Test_findAgent(t *testing.T) {
	t.Parallel()

	tree := newAgentTree(t)
	oneAgent := mustAgent(t, "solo")

	tests := []struct {
		name      string
		root      agent.Agent
		target    string
		wantAgent agent.Agent
	}{
		{
			name:      "ok",
			root:      tree.root,
			target:    tree.allowsTransferAgent.Name(),
			wantAgent: tree.allowsTransferAgent,
		},
		{
			name:      "finds in one node tree",
			root:      oneAgent,
			target:    oneAgent.Name(),
			wantAgent: oneAgent,
		},
		{
			name:      "doesn't fail if agent is missing in the tree",
			root:      tree.root,
			target:    "random",
			wantAgent: nil,
		},
		{
			name:      "doesn't fail on the empty tree",
			root:      nil,
			target:    "random",
			wantAgent: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if gotAgent := findAgent(tt.root, tt.target); gotAgent != tt.wantAgent {
				t.Errorf("findAgent() = %v, want %v", gotAgent, tt.wantAgent)
			}
		})
	}
}

func Test_isTransferableAcrossAgentTree(t *testing.T) {
	t.Parallel()

	noTransfer, err := llmagent.New(llmagent.Config{
		Name:                     "test",
		DisallowTransferToParent: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	custom, err := agent.New(agent.Config{
		Name: "custom",
		Run: func(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
			return func(yield func(*session.Event, error) bool) {}
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		agent agent.Agent
		want  bool
	}{
		{
			name:  "disallow for agent with DisallowTransferToParent",
			agent: noTransfer,
			want:  false,
		},
		{
			name:  "disallow for non-LLM agent",
			agent: custom,
			want:  false,
		},
		{
			name:  "allow for the default LLM agent",
			agent: mustAgent(t, "test"),
			want:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRunner(t, tt.agent)
			if got := r.isTransferableAcrossAgentTree(tt.agent); got != tt.want {
				t.Errorf("isTransferableAcrossAgentTree() = %v, want %v", got, tt.want)
			}
		})
	}
}

// newAgentTree builds a small tree and returns references to its agents.
func newAgentTree(t *testing.T) agentTree {
	t.Helper()

	sub1, err := llmagent.New(llmagent.Config{
		Name:                     "no_transfer_agent",
		DisallowTransferToParent: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	sub2 := mustAgent(t, "allows_transfer_agent")

	root, err := llmagent.New(llmagent.Config{
		Name:      "root",
		SubAgents: []agent.Agent{sub1, sub2},
	})
	if err != nil {
		t.Fatal(err)
	}

	return agentTree{
		root:                root,
		noTransferAgent:     sub1,
		allowsTransferAgent: sub2,
	}
}

type agentTree struct {
	root, noTransferAgent, allowsTransferAgent agent.Agent
}

func mustAgent(t *testing.T, name string) agent.Agent {
	t.Helper()
	a, err := llmagent.New(llmagent.Config{Name: name})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func newTestRunner(t *testing.T, root agent.Agent) *Runner {
	t.Helper()
	parents, err := parentmap.New(root)
	if err != nil {
		t.Fatalf("parentmap.New failed: %v", err)
	}
	return &Runner{
		appName:        "test-app",
		rootAgent:      root,
		sessionService: session.InMemoryService(),
		parents:        parents,
	}
}

func sessionWithAuthors(t *testing.T, r *Runner, authors ...string) session.Session {
	t.Helper()
	resp, err := r.sessionService.Create(t.Context(), &session.CreateRequest{
		AppName:   "test-app",
		UserID:    "test-user",
		SessionID: "s",
	})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	for _, a := range authors {
		ev := session.NewEvent("inv")
		ev.Author = a
		if err := r.sessionService.AppendEvent(t.Context(), resp.Session, ev); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}
	return resp.Session
}
