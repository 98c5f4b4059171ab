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

	"google.golang.org/genai"

	"github.com/quartet-ai/maestro/agent"
	"github.com/quartet-ai/maestro/internal/utils"
	"github.com/quartet-ai/maestro/model"
	"github.com/quartet-ai/maestro/session"
)

// basicRequestProcessor seeds the request with the agent's model name
// and generation config.
func basicRequestProcessor(ctx agent.InvocationContext, req *model.LLMRequest, f *Flow) iter.Seq2[*session.Event, error] {
	return func(yield func(*session.Event, error) bool) {
		llmAgent := asLLMAgent(ctx.Agent())
		if llmAgent == nil {
			return
		}
		state := llmAgent.internal()

		if state.Model != nil {
			req.Model = state.Model.Name()
		}
		if state.GenerateContentConfig != nil {
			// Copy so per-request mutations don't leak into the agent.
			cfg := *state.GenerateContentConfig
			req.Config = &cfg
		}

		// When the model can combine a response schema with tool
		// declarations, structured output goes directly on the request.
		// Otherwise outputSchemaRequestProcessor routes it through the
		// set_model_response tool.
		if state.OutputSchema != nil && !needOutputSchemaProcessor(state) {
			if req.Config == nil {
				req.Config = &genai.GenerateContentConfig{}
			}
			req.Config.ResponseSchema = state.OutputSchema
			req.Config.ResponseMIMEType = "application/json"
		}
	}
}

// identityRequestProcessor tells the model who it is.
func identityRequestProcessor(ctx agent.InvocationContext, req *model.LLMRequest, f *Flow) iter.Seq2[*session.Event, error] {
	return func(yield func(*session.Event, error) bool) {
		instructions := []string{fmt.Sprintf("You are an agent. Your internal name is %q.", ctx.Agent().Name())}
		if description := ctx.Agent().Description(); description != "" {
			instructions = append(instructions, fmt.Sprintf("The description about you is %q.", description))
		}
		utils.AppendInstructions(req, instructions...)
	}
}
