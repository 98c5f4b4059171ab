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

// Package agent holds cross-package agent internals: the tagged variant
// every agent constructor stamps on the agents it builds. The public
// agent interface stays minimal; framework packages that need to know an
// agent's kind (or its kind-specific configuration) reveal this state
// instead of widening the public surface.
package agent

// Type enumerates the fixed agent kinds built into the runtime.
type Type int

const (
	TypeCustomAgent Type = iota
	TypeLLMAgent
	TypeSequentialAgent
	TypeParallelAgent
	TypeLoopAgent
)

// State is embedded by agent implementations. Config carries
// kind-specific configuration, e.g. the llm agent's flow state.
type State struct {
	AgentType Type
	Config    any
}

func (s *State) internalState() *State {
	return s
}

// Agent is implemented by any agent embedding State.
type Agent interface {
	internalState() *State
}

// Reveal returns the internal state of an agent.
func Reveal(a Agent) *State {
	return a.internalState()
}
