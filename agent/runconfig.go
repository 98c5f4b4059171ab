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

package agent

// StreamingMode selects how model responses are delivered within a turn.
type StreamingMode string

const (
	// StreamingModeNone yields one complete response per model call.
	StreamingModeNone StreamingMode = "none"

	// StreamingModeSSE yields partial events while the model streams,
	// followed by the aggregated complete event. Partial events are never
	// persisted.
	StreamingModeSSE StreamingMode = "sse"
)

// RunConfig carries the per-invocation runtime knobs. The zero value is a
// valid configuration.
type RunConfig struct {
	// StreamingMode of this invocation. Defaults to StreamingModeNone.
	StreamingMode StreamingMode

	// MaxLLMCalls bounds the number of model calls a single agent may
	// make within one invocation. Zero means the default bound of 20.
	// Exceeding the bound produces an error event and ends the agent's
	// turn.
	MaxLLMCalls int

	// SaveInputBlobsAsArtifacts stores the binary parts of the user
	// message as artifacts named "artifact_<invocation_id>_<index>" so
	// tools can reference them later.
	SaveInputBlobsAsArtifacts bool
}
