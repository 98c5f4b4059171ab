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

// Package exitlooptool provides the exit_loop tool, which lets a model
// break out of an enclosing loop agent.
package exitlooptool

import (
	"github.com/quartet-ai/maestro/tool"
	"github.com/quartet-ai/maestro/tool/functiontool"
)

type exitLoopArgs struct{}

// New creates the exit_loop tool. Calling it escalates out of the
// current agent, which stops an enclosing loop agent's iteration.
func New() (tool.Tool, error) {
	return functiontool.New(functiontool.Config{
		Name:        "exit_loop",
		Description: "Exits the loop. Call this function only when you are instructed to do so.",
	}, exitLoop)
}

func exitLoop(ctx tool.Context, _ exitLoopArgs) (map[string]any, error) {
	ctx.Actions().Escalate = true
	return map[string]any{}, nil
}