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

package llminternal

import (
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"

	"github.com/quartet-ai/maestro/agent"
	"github.com/quartet-ai/maestro/internal/utils"
	"github.com/quartet-ai/maestro/model"
	"github.com/quartet-ai/maestro/session"
)

// IncludeContentsNone makes an agent see only the current user content,
// not the conversation history.
const IncludeContentsNone = "none"

// ContentsRequestProcessor projects the committed session history into
// the request contents. Events from other branches are excluded; events
// authored by other agents are rewritten as contextual user messages so
// the model does not mistake them for its own turns.
func ContentsRequestProcessor(ctx agent.InvocationContext, req *model.LLMRequest, f *Flow) iter.Seq2[*session.Event, error] {
	return func(yield func(*session.Event, error) bool) {
		llmAgent := asLLMAgent(ctx.Agent())
		if llmAgent != nil && llmAgent.internal().IncludeContents == IncludeContentsNone {
			if uc := ctx.UserContent(); uc != nil {
				req.Contents = append(req.Contents, copyContent(uc))
			}
			return
		}

		if ctx.Session() == nil {
			return
		}
		for ev := range ctx.Session().Events().All() {
			c := utils.Content(ev)
			if c == nil || len(c.Parts) == 0 {
				continue
			}
			if !branchVisible(ctx.Branch(), ev.Branch) {
				continue
			}
			if isForeignEvent(ev, ctx.Agent().Name()) {
				req.Contents = append(req.Contents, convertForeignEvent(ev))
				continue
			}
			c = copyContent(c)
			utils.RemoveClientFunctionCallID(c)
			req.Contents = append(req.Contents, c)
		}
	}
}

// branchVisible reports whether an event recorded on eventBranch is
// visible to the current branch. Branches are dot-separated paths, and
// an agent sees its ancestors' events but not its siblings'.
func branchVisible(currentBranch, eventBranch string) bool {
	if eventBranch == "" || eventBranch == currentBranch {
		return true
	}
	return strings.HasPrefix(currentBranch, eventBranch+".")
}

// isForeignEvent reports whether ev belongs to another agent's turn.
func isForeignEvent(ev *session.Event, agentName string) bool {
	return ev.Author != "" && ev.Author != "user" && ev.Author != agentName
}

// convertForeignEvent rewrites another agent's event as a user message
// carrying context, mirroring how a human would relay it.
func convertForeignEvent(ev *session.Event) *genai.Content {
	parts := []*genai.Part{genai.NewPartFromText("For context:")}
	for _, p := range ev.Content.Parts {
		switch {
		case p.Text != "":
			parts = append(parts, genai.NewPartFromText(fmt.Sprintf("[%s] said: %s", ev.Author, p.Text)))
		case p.FunctionCall != nil:
			parts = append(parts, genai.NewPartFromText(fmt.Sprintf(
				"[%s] called tool %q with parameters: %v", ev.Author, p.FunctionCall.Name, p.FunctionCall.Args)))
		case p.FunctionResponse != nil:
			parts = append(parts, genai.NewPartFromText(fmt.Sprintf(
				"[%s] tool %q returned result: %v", ev.Author, p.FunctionResponse.Name, p.FunctionResponse.Response)))
		}
	}
	return &genai.Content{Role: genai.RoleUser, Parts: parts}
}

// copyContent clones c deeply enough that mutating function call ids on
// the copy does not touch the stored event.
func copyContent(c *genai.Content) *genai.Content {
	out := &genai.Content{Role: c.Role, Parts: make([]*genai.Part, len(c.Parts))}
	for i, p := range c.Parts {
		pc := *p
		if p.FunctionCall != nil {
			fc := *p.FunctionCall
			pc.FunctionCall = &fc
		}
		if p.FunctionResponse != nil {
			fr := *p.FunctionResponse
			pc.FunctionResponse = &fr
		}
		out.Parts[i] = &pc
	}
	return out
}
