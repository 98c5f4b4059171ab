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
	"log"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/quartet-ai/maestro/agent"
	"github.com/quartet-ai/maestro/internal/telemetry"
	"github.com/quartet-ai/maestro/internal/toolinternal"
	"github.com/quartet-ai/maestro/internal/utils"
	"github.com/quartet-ai/maestro/model"
	"github.com/quartet-ai/maestro/session"
	"github.com/quartet-ai/maestro/tool"
	"github.com/quartet-ai/maestro/tool/toolconfirmation"
)

// functionCallResult holds the outcome of a single function call. part
// is nil when a long-running tool has not produced a response yet.
type functionCallResult struct {
	part    *genai.Part
	actions *session.EventActions
	pending bool
}

// handleFunctionCalls executes every function call in resp concurrently
// and merges the results into one function response event. Responses
// keep the order of the calls regardless of completion order. Returns
// nil when resp contains no function calls or none of them produced a
// response.
func (f *Flow) handleFunctionCalls(
	ctx agent.InvocationContext,
	tools map[string]tool.Tool,
	resp *model.LLMResponse,
	confirmations map[string]*toolconfirmation.ToolConfirmation,
) (*session.Event, error) {
	calls := utils.FunctionCalls(resp.Content)
	if len(calls) == 0 {
		return nil, nil
	}

	results := make([]*functionCallResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			result, err := f.executeFunctionCall(ctx.WithContext(gctx), tools, call, confirmations[call.ID])
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeFunctionResults(ctx, calls, results), nil
}

func (f *Flow) executeFunctionCall(
	ctx agent.InvocationContext,
	tools map[string]tool.Tool,
	call *genai.FunctionCall,
	confirmation *toolconfirmation.ToolConfirmation,
) (*functionCallResult, error) {
	spanCtx, span := telemetry.StartExecuteToolSpan(ctx, telemetry.StartExecuteToolSpanParams{
		ToolName: call.Name,
		Args:     call.Args,
	})
	defer span.End()
	ctx = ctx.WithContext(spanCtx)

	actions := &session.EventActions{StateDelta: make(map[string]any)}
	toolCtx := toolinternal.NewToolContext(ctx, call.ID, actions, confirmation)

	t, ok := tools[call.Name]
	if !ok {
		// An unknown tool is the model's mistake, not the caller's. Feed
		// the error back so the model can correct itself.
		result := map[string]any{
			"error": fmt.Sprintf("tool %q is not available to agent %q", call.Name, ctx.Agent().Name()),
		}
		r := &functionCallResult{part: functionResponsePart(call, result), actions: actions}
		telemetry.TraceToolResult(span, telemetry.TraceToolResultParams{})
		return r, nil
	}

	functionTool, ok := t.(toolinternal.FunctionTool)
	if !ok {
		err := fmt.Errorf("tool %q is not invocable", call.Name)
		telemetry.TraceToolResult(span, telemetry.TraceToolResultParams{Description: t.Description(), Error: err})
		return nil, err
	}

	result, err := f.callTool(toolCtx, functionTool, call.Args)
	if err != nil {
		err = fmt.Errorf("tool %q: %w", call.Name, err)
		telemetry.TraceToolResult(span, telemetry.TraceToolResultParams{Description: t.Description(), Error: err})
		return nil, err
	}

	if result == nil && t.IsLongRunning() {
		// The tool went asynchronous. Its response arrives out-of-band in
		// a later user message, so there is no response part to merge.
		telemetry.TraceToolResult(span, telemetry.TraceToolResultParams{Description: t.Description()})
		return &functionCallResult{actions: actions, pending: true}, nil
	}
	if result == nil {
		result = map[string]any{}
	}

	r := &functionCallResult{part: functionResponsePart(call, result), actions: actions}
	telemetry.TraceToolResult(span, telemetry.TraceToolResultParams{
		Description: t.Description(),
		ResponseEvent: &session.Event{
			LLMResponse: model.LLMResponse{Content: &genai.Content{Parts: []*genai.Part{r.part}}},
		},
	})
	return r, nil
}

// callTool runs the before/after/on-error callback chains around the
// tool itself. Plugins run before the flow's own callbacks and the
// first non-nil result short-circuits the rest.
func (f *Flow) callTool(toolCtx tool.Context, t toolinternal.FunctionTool, args map[string]any) (map[string]any, error) {
	pluginManager := pluginManagerFromContext(toolCtx)

	if pluginManager != nil {
		result, err := pluginManager.RunBeforeToolCallback(toolCtx, t, args)
		if result != nil || err != nil {
			return result, err
		}
	}
	for _, callback := range f.BeforeToolCallbacks {
		result, err := callback(toolCtx, t, args)
		if result != nil || err != nil {
			return result, err
		}
	}

	result, err := t.Run(toolCtx, args)
	if err != nil {
		if pluginManager != nil {
			recovered, cbErr := pluginManager.RunOnToolErrorCallback(toolCtx, t, args, err)
			if recovered != nil || cbErr != nil {
				return recovered, cbErr
			}
		}
		for _, callback := range f.OnToolErrorCallbacks {
			recovered, cbErr := callback(toolCtx, t, args, err)
			if recovered != nil || cbErr != nil {
				return recovered, cbErr
			}
		}
		// An unrecovered tool failure is fed back to the model as an
		// error payload; only callback errors abort the turn.
		return map[string]any{"error": err.Error()}, nil
	}

	if pluginManager != nil {
		replaced, cbErr := pluginManager.RunAfterToolCallback(toolCtx, t, args, result, nil)
		if replaced != nil || cbErr != nil {
			return replaced, cbErr
		}
	}
	for _, callback := range f.AfterToolCallbacks {
		replaced, cbErr := callback(toolCtx, t, args, result, nil)
		if replaced != nil || cbErr != nil {
			return replaced, cbErr
		}
	}
	return result, nil
}

func functionResponsePart(call *genai.FunctionCall, result map[string]any) *genai.Part {
	return &genai.Part{FunctionResponse: &genai.FunctionResponse{
		ID:       call.ID,
		Name:     call.Name,
		Response: result,
	}}
}

// mergeFunctionResults combines per-call results into one event, in the
// order of the original function calls. Returns nil when nothing was
// produced, e.g. every call went long-running without side effects.
func mergeFunctionResults(ctx agent.InvocationContext, calls []*genai.FunctionCall, results []*functionCallResult) *session.Event {
	ev := session.NewEvent(ctx.InvocationID())
	ev.Author = ctx.Agent().Name()
	ev.Branch = ctx.Branch()
	merged := &ev.Actions
	merged.StateDelta = make(map[string]any)

	var parts []*genai.Part
	stateWriter := make(map[string]string)
	for i, r := range results {
		if r == nil {
			continue
		}
		if r.part != nil {
			parts = append(parts, r.part)
		}
		if r.pending && calls[i].ID != "" {
			ev.LongRunningToolIDs = append(ev.LongRunningToolIDs, calls[i].ID)
		}
		mergeCallActions(merged, r.actions, calls[i].Name, stateWriter)
	}

	if len(parts) == 0 && actionsEmpty(merged) {
		return nil
	}
	if len(parts) > 0 {
		ev.LLMResponse.Content = &genai.Content{Role: genai.RoleUser, Parts: parts}
	}
	return ev
}

// mergeCallActions folds the actions of one call into merged. Calls are
// folded in call order, so on key conflicts the later call wins.
func mergeCallActions(merged, actions *session.EventActions, toolName string, stateWriter map[string]string) {
	if actions == nil {
		return
	}
	for k, v := range actions.StateDelta {
		if prev, ok := stateWriter[k]; ok {
			log.Printf("state key %q written by tools %q and %q in one parallel round; keeping the later value", k, prev, toolName)
		}
		stateWriter[k] = toolName
		merged.StateDelta[k] = v
	}
	for name, version := range actions.ArtifactDelta {
		if merged.ArtifactDelta == nil {
			merged.ArtifactDelta = make(map[string]int64)
		}
		merged.ArtifactDelta[name] = version
	}
	if actions.TransferToAgent != "" {
		if merged.TransferToAgent == "" {
			merged.TransferToAgent = actions.TransferToAgent
		} else if merged.TransferToAgent != actions.TransferToAgent {
			log.Printf("conflicting transfer targets %q and %q in one parallel round; keeping %q",
				merged.TransferToAgent, actions.TransferToAgent, merged.TransferToAgent)
		}
	}
	merged.Escalate = merged.Escalate || actions.Escalate
	merged.SkipSummarization = merged.SkipSummarization || actions.SkipSummarization
	for id, c := range actions.RequestedToolConfirmations {
		if merged.RequestedToolConfirmations == nil {
			merged.RequestedToolConfirmations = make(map[string]toolconfirmation.ToolConfirmation)
		}
		merged.RequestedToolConfirmations[id] = c
	}
}

func actionsEmpty(a *session.EventActions) bool {
	return len(a.StateDelta) == 0 &&
		len(a.ArtifactDelta) == 0 &&
		a.TransferToAgent == "" &&
		!a.Escalate &&
		!a.SkipSummarization &&
		len(a.RequestedToolConfirmations) == 0
}

// generateRequestConfirmationEvent creates the maestro_request_confirmation
// function call event for any confirmations the tool round requested.
// The model never sees this call; the client answers it with a function
// response in a later user message.
func generateRequestConfirmationEvent(
	invocationContext agent.InvocationContext,
	functionCallEvent *session.Event,
	functionResponseEvent *session.Event,
) *session.Event {
	if functionResponseEvent == nil || len(functionResponseEvent.Actions.RequestedToolConfirmations) == 0 {
		return nil
	}
	if functionCallEvent == nil || functionCallEvent.Content == nil {
		return nil
	}

	parts := []*genai.Part{}
	longRunningToolIDs := []string{}
	functionCalls := make(map[string]*genai.FunctionCall, len(functionCallEvent.Content.Parts))
	for _, call := range utils.FunctionCalls(functionCallEvent.Content) {
		functionCalls[call.ID] = call
	}

	for funcID, confirmation := range functionResponseEvent.Actions.RequestedToolConfirmations {
		originalFunctionCall, ok := functionCalls[funcID]
		if !ok || originalFunctionCall == nil {
			continue
		}

		requestConfirmationFC := &genai.FunctionCall{
			ID:   utils.GenerateFunctionCallID(),
			Name: toolconfirmation.FunctionCallName,
			Args: map[string]any{
				"originalFunctionCall": originalFunctionCall,
				"toolConfirmation":     confirmation,
			},
		}

		parts = append(parts, &genai.Part{
			FunctionCall: requestConfirmationFC,
		})
		longRunningToolIDs = append(longRunningToolIDs, requestConfirmationFC.ID)
	}

	if len(parts) == 0 {
		return nil
	}

	return &session.Event{
		InvocationID: invocationContext.InvocationID(),
		Author:       invocationContext.Agent().Name(),
		Branch:       invocationContext.Branch(),
		LLMResponse: model.LLMResponse{
			Content: &genai.Content{
				Parts: parts,
				Role:  genai.RoleModel,
			},
		},
		Timestamp:          time.Now(),
		LongRunningToolIDs: longRunningToolIDs,
		Actions:            session.EventActions{},
	}
}
