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

package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/quartet-ai/maestro/model"
	"github.com/quartet-ai/maestro/tool/toolconfirmation"
)

// Event is a single entry in a session's log: a user message, a model
// response, a tool result or a synthetic framework notification. Events
// become immutable once appended; only the session service stamps
// Timestamp.
type Event struct {
	// LLMResponse carries the event payload: content, partial flag,
	// error code and the model metadata, promoted onto the event.
	model.LLMResponse

	// ID is unique within a session.
	ID string

	// InvocationID ties the event to the Runner.Run call that produced it.
	InvocationID string

	// Author is the name of the agent that produced the event, or "user".
	Author string

	// Actions carries the event's side effects, applied by the session
	// service at append time.
	Actions EventActions

	// LongRunningToolIDs lists the ids of long-running function calls in
	// this event's content. Their responses arrive out-of-band in a later
	// user message.
	LongRunningToolIDs []string

	// Branch distinguishes concurrent sub-agent traces within one
	// invocation. Empty for the main trace.
	Branch string

	// Timestamp is stamped by the session service at append time and is
	// non-decreasing within a session.
	Timestamp time.Time
}

// EventActions carries the requested side effects of an event.
// All fields default to empty / false.
type EventActions struct {
	// StateDelta maps state keys to new values, interpreted by scope
	// prefix at append time.
	StateDelta map[string]any

	// ArtifactDelta maps filenames to the artifact versions saved during
	// this event.
	ArtifactDelta map[string]int64

	// TransferToAgent names the agent that should take over the
	// conversation. The runner resolves it against the agent tree.
	TransferToAgent string

	// Escalate stops the current agent (and a containing loop agent).
	Escalate bool

	// SkipSummarization suppresses the model call that would summarize a
	// function response; the function response becomes the final answer.
	SkipSummarization bool

	// RequestedToolConfirmations holds pending human-in-the-loop
	// confirmations, keyed by function call id.
	RequestedToolConfirmations map[string]toolconfirmation.ToolConfirmation
}

// NewEvent returns an event with a fresh id for the given invocation.
func NewEvent(invocationID string) *Event {
	return &Event{
		ID:           uuid.NewString(),
		InvocationID: invocationID,
		Timestamp:    time.Now(),
	}
}

// IsFinalResponse reports whether the event terminates its agent's turn:
// either summarization is skipped, or a long-running tool is pending, or
// the event is a complete response with no function calls or responses
// left to process.
func (e *Event) IsFinalResponse() bool {
	if e.Actions.SkipSummarization || len(e.LongRunningToolIDs) > 0 {
		return true
	}
	if e.Partial {
		return false
	}
	if c := e.Content; c != nil {
		for _, p := range c.Parts {
			if p.FunctionCall != nil || p.FunctionResponse != nil {
				return false
			}
		}
	}
	return true
}
