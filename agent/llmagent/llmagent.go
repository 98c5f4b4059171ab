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

// Package llmagent provides the agent driven by a language model: it
// calls the model in a loop, executes the tools the model requests, and
// finishes when the model produces a final response.
package llmagent

import (
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/quartet-ai/maestro/agent"
	agentinternal "github.com/quartet-ai/maestro/internal/agent"
	icontext "github.com/quartet-ai/maestro/internal/context"
	"github.com/quartet-ai/maestro/internal/llminternal"
	"github.com/quartet-ai/maestro/model"
	"github.com/quartet-ai/maestro/session"
	"github.com/quartet-ai/maestro/tool"
)

// BeforeModelCallback runs right before a request is sent to the model.
// The first callback that returns a non-nil response or error makes the
// agent skip the model call and use the callback result instead. This is
// the place to inspect or rewrite the request, or to serve a cached
// response.
type BeforeModelCallback func(ctx agent.CallbackContext, llmRequest *model.LLMRequest) (*model.LLMResponse, error)

// AfterModelCallback runs right after a response is received from the
// model. The first callback that returns a non-nil response or error
// replaces the model result and stops the remaining callbacks.
type AfterModelCallback func(ctx agent.CallbackContext, llmResponse *model.LLMResponse, llmResponseError error) (*model.LLMResponse, error)

// OnModelErrorCallback runs when the model call fails. A callback may
// recover by returning a replacement response; returning nil, nil lets
// the error propagate.
type OnModelErrorCallback func(ctx agent.CallbackContext, llmRequest *model.LLMRequest, llmResponseError error) (*model.LLMResponse, error)

// BeforeToolCallback runs before a tool call. The first callback that
// returns a non-nil map short-circuits the tool and uses the map as its
// result.
type BeforeToolCallback func(ctx tool.Context, tool tool.Tool, args map[string]any) (map[string]any, error)

// AfterToolCallback runs after a tool call. The first callback that
// returns a non-nil map replaces the tool result.
type AfterToolCallback func(ctx tool.Context, tool tool.Tool, args, result map[string]any, err error) (map[string]any, error)

// OnToolErrorCallback runs when a tool returns an error. A callback may
// recover by returning a result map; returning nil, nil lets the error
// propagate.
type OnToolErrorCallback func(ctx tool.Context, tool tool.Tool, args map[string]any, err error) (map[string]any, error)

// InstructionProvider builds an instruction dynamically per request.
type InstructionProvider func(ctx agent.ReadonlyContext) (string, error)

// Config is the input to New.
type Config struct {
	// Name must be a non-empty string, unique within the agent tree.
	Name string
	// Description of the agent's capability. The model uses it to decide
	// whether to transfer to this agent; one line is enough.
	Description string
	// SubAgents this agent can delegate to.
	SubAgents []agent.Agent

	Model model.LLM

	// GenerateContentConfig customizes generation, e.g. temperature.
	// Tool declarations and system instruction are managed by the agent
	// and must not be set here.
	GenerateContentConfig *genai.GenerateContentConfig

	// Instruction guides the model's behavior for this agent. Templates
	// like {key}, {key?} and {artifact.name} are resolved against
	// session state and artifacts before the request is sent.
	Instruction string
	// InstructionProvider computes the instruction per request. Mutually
	// exclusive with Instruction; provider output is used verbatim,
	// without template resolution.
	InstructionProvider InstructionProvider
	// GlobalInstruction applies to every agent in the tree and is only
	// honored on the root agent.
	GlobalInstruction         string
	GlobalInstructionProvider InstructionProvider

	Tools    []tool.Tool
	Toolsets []tool.Toolset

	BeforeAgentCallbacks []agent.BeforeAgentCallback
	AfterAgentCallbacks  []agent.AfterAgentCallback

	BeforeModelCallbacks  []BeforeModelCallback
	AfterModelCallbacks   []AfterModelCallback
	OnModelErrorCallbacks []OnModelErrorCallback

	BeforeToolCallbacks  []BeforeToolCallback
	AfterToolCallbacks   []AfterToolCallback
	OnToolErrorCallbacks []OnToolErrorCallback

	// DisallowTransferToParent and DisallowTransferToPeers limit where
	// this agent may transfer the conversation. Transfers to sub-agents
	// are always allowed.
	DisallowTransferToParent bool
	DisallowTransferToPeers  bool

	// IncludeContents set to "none" hides the conversation history from
	// the model; only the current user content is sent.
	IncludeContents string

	// InputSchema declares the expected input when this agent is used as
	// a tool.
	InputSchema *genai.Schema
	// OutputSchema constrains the agent's final reply to a structured
	// format. On models that cannot combine a response schema with tools
	// the reply is routed through an internal set_model_response tool.
	OutputSchema *genai.Schema

	// OutputKey stores the agent's final response text into session
	// state under this key.
	OutputKey string
}

// New creates an LLM agent.
func New(cfg Config) (agent.Agent, error) {
	if cfg.Instruction != "" && cfg.InstructionProvider != nil {
		return nil, fmt.Errorf("agent %q: Instruction and InstructionProvider are mutually exclusive", cfg.Name)
	}
	if cfg.GlobalInstruction != "" && cfg.GlobalInstructionProvider != nil {
		return nil, fmt.Errorf("agent %q: GlobalInstruction and GlobalInstructionProvider are mutually exclusive", cfg.Name)
	}

	a := &llmAgent{
		State: llminternal.State{
			Model:                     cfg.Model,
			Tools:                     cfg.Tools,
			Toolsets:                  cfg.Toolsets,
			IncludeContents:           cfg.IncludeContents,
			GenerateContentConfig:     cfg.GenerateContentConfig,
			Instruction:               cfg.Instruction,
			InstructionProvider:       llminternal.InstructionProvider(cfg.InstructionProvider),
			GlobalInstruction:         cfg.GlobalInstruction,
			GlobalInstructionProvider: llminternal.InstructionProvider(cfg.GlobalInstructionProvider),
			DisallowTransferToParent:  cfg.DisallowTransferToParent,
			DisallowTransferToPeers:   cfg.DisallowTransferToPeers,
			InputSchema:               cfg.InputSchema,
			OutputSchema:              cfg.OutputSchema,
			OutputKey:                 cfg.OutputKey,
		},
	}
	for _, c := range cfg.BeforeModelCallbacks {
		a.beforeModel = append(a.beforeModel, llminternal.BeforeModelCallback(c))
	}
	for _, c := range cfg.AfterModelCallbacks {
		a.afterModel = append(a.afterModel, llminternal.AfterModelCallback(c))
	}
	for _, c := range cfg.OnModelErrorCallbacks {
		a.onModelError = append(a.onModelError, llminternal.OnModelErrorCallback(c))
	}
	for _, c := range cfg.BeforeToolCallbacks {
		a.beforeTool = append(a.beforeTool, llminternal.BeforeToolCallback(c))
	}
	for _, c := range cfg.AfterToolCallbacks {
		a.afterTool = append(a.afterTool, llminternal.AfterToolCallback(c))
	}
	for _, c := range cfg.OnToolErrorCallbacks {
		a.onToolError = append(a.onToolError, llminternal.OnToolErrorCallback(c))
	}

	baseAgent, err := agent.New(agent.Config{
		Name:                 cfg.Name,
		Description:          cfg.Description,
		SubAgents:            cfg.SubAgents,
		BeforeAgentCallbacks: cfg.BeforeAgentCallbacks,
		Run:                  a.run,
		AfterAgentCallbacks:  cfg.AfterAgentCallbacks,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	a.Agent = baseAgent
	a.AgentType = agentinternal.TypeLLMAgent

	return a, nil
}

type llmAgent struct {
	agent.Agent
	llminternal.State
	agentState

	beforeModel  []llminternal.BeforeModelCallback
	afterModel   []llminternal.AfterModelCallback
	onModelError []llminternal.OnModelErrorCallback
	beforeTool   []llminternal.BeforeToolCallback
	afterTool    []llminternal.AfterToolCallback
	onToolError  []llminternal.OnToolErrorCallback
}

type agentState = agentinternal.State

func (a *llmAgent) run(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
	// Rebind the context to this agent so flow processors can reveal the
	// LLM configuration.
	ctx = icontext.NewInvocationContext(ctx, icontext.InvocationContextParams{
		Artifacts:     ctx.Artifacts(),
		Memory:        ctx.Memory(),
		Session:       ctx.Session(),
		Branch:        ctx.Branch(),
		Agent:         a,
		UserContent:   ctx.UserContent(),
		RunConfig:     ctx.RunConfig(),
		EndInvocation: ctx.Ended(),
		InvocationID:  ctx.InvocationID(),
	})

	f := &llminternal.Flow{
		Model:                 a.State.Model,
		RequestProcessors:     llminternal.DefaultRequestProcessors,
		ResponseProcessors:    llminternal.DefaultResponseProcessors,
		BeforeModelCallbacks:  a.beforeModel,
		AfterModelCallbacks:   a.afterModel,
		OnModelErrorCallbacks: a.onModelError,
		BeforeToolCallbacks:   a.beforeTool,
		AfterToolCallbacks:    a.afterTool,
		OnToolErrorCallbacks:  a.onToolError,
	}

	return f.Run(ctx)
}
