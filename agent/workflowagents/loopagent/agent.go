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

// Package loopagent provides an agent that runs its sub-agents in rounds.
package loopagent

import (
	"fmt"
	"iter"

	"github.com/quartet-ai/maestro/agent"
	agentinternal "github.com/quartet-ai/maestro/internal/agent"
	"github.com/quartet-ai/maestro/session"
)

// Config defines the configuration for a LoopAgent.
type Config struct {
	// Basic agent setup.
	AgentConfig agent.Config

	// MaxIterations bounds the number of rounds over the sub-agents.
	// Zero means no bound; the loop then runs until a sub-agent
	// escalates.
	MaxIterations uint
}

// New creates a LoopAgent.
//
// LoopAgent executes its sub-agents in order, repeatedly, until
// MaxIterations rounds have completed or a sub-agent escalates, e.g.
// via the exit_loop tool.
func New(cfg Config) (agent.Agent, error) {
	if cfg.AgentConfig.Run != nil {
		return nil, fmt.Errorf("LoopAgent doesn't allow custom Run implementations")
	}

	cfg.AgentConfig.Run = runFunc(cfg.MaxIterations)

	loopAgent, err := agent.New(cfg.AgentConfig)
	if err != nil {
		return nil, err
	}

	internalAgent, ok := loopAgent.(agentinternal.Agent)
	if !ok {
		return nil, fmt.Errorf("internal error: failed to convert to internal agent")
	}
	state := agentinternal.Reveal(internalAgent)
	state.AgentType = agentinternal.TypeLoopAgent
	state.Config = cfg

	return loopAgent, nil
}

func runFunc(maxIterations uint) func(agent.InvocationContext) iter.Seq2[*session.Event, error] {
	return func(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
		return func(yield func(*session.Event, error) bool) {
			for i := uint(0); maxIterations == 0 || i < maxIterations; i++ {
				for _, subAgent := range ctx.Agent().SubAgents() {
					for event, err := range subAgent.Run(ctx) {
						if !yield(event, err) {
							return
						}
						if err != nil {
							return
						}
						if event.Actions.Escalate {
							return
						}
					}
					if ctx.Ended() {
						return
					}
				}
			}
		}
	}
}