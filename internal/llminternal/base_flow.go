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
	"context"
	"errors"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/quartet-ai/maestro/agent"
	"github.com/quartet-ai/maestro/internal/agent/runconfig"
	icontext "github.com/quartet-ai/maestro/internal/context"
	"github.com/quartet-ai/maestro/internal/llminternal/googlellm"
	"github.com/quartet-ai/maestro/internal/plugininternal/plugincontext"
	"github.com/quartet-ai/maestro/internal/telemetry"
	"github.com/quartet-ai/maestro/internal/toolinternal"
	"github.com/quartet-ai/maestro/internal/utils"
	"github.com/quartet-ai/maestro/model"
	"github.com/quartet-ai/maestro/session"
	"github.com/quartet-ai/maestro/tool"
)

var ErrModelNotConfigured = errors.New("model not configured; ensure Model is set in llmagent.Config")

// Error codes carried on error events yielded by the flow.
const (
	ErrorCodeIterationLimit = "iteration_limit"
	ErrorCodeModelError     = "model_error"
)

type BeforeModelCallback func(ctx agent.CallbackContext, llmRequest *model.LLMRequest) (*model.LLMResponse, error)

type AfterModelCallback func(ctx agent.CallbackContext, llmResponse *model.LLMResponse, llmResponseError error) (*model.LLMResponse, error)

type OnModelErrorCallback func(ctx agent.CallbackContext, llmRequest *model.LLMRequest, llmResponseError error) (*model.LLMResponse, error)

type BeforeToolCallback func(ctx tool.Context, tool tool.Tool, args map[string]any) (map[string]any, error)

type AfterToolCallback func(ctx tool.Context, tool tool.Tool, args, result map[string]any, err error) (map[string]any, error)

type OnToolErrorCallback func(ctx tool.Context, tool tool.Tool, args map[string]any, err error) (map[string]any, error)

// Flow drives one LLM agent: it alternates model calls and tool rounds
// until the agent produces a final response, requests a transfer, or
// escalates. The flow never touches the session; the runner commits the
// events it yields.
type Flow struct {
	Model model.LLM

	Tools                 []tool.Tool
	RequestProcessors     []func(ctx agent.InvocationContext, req *model.LLMRequest, f *Flow) iter.Seq2[*session.Event, error]
	ResponseProcessors    []func(ctx agent.InvocationContext, req *model.LLMRequest, resp *model.LLMResponse) error
	BeforeModelCallbacks  []BeforeModelCallback
	AfterModelCallbacks   []AfterModelCallback
	OnModelErrorCallbacks []OnModelErrorCallback
	BeforeToolCallbacks   []BeforeToolCallback
	AfterToolCallbacks    []AfterToolCallback
	OnToolErrorCallbacks  []OnToolErrorCallback
}

var (
	DefaultRequestProcessors = []func(ctx agent.InvocationContext, req *model.LLMRequest, f *Flow) iter.Seq2[*session.Event, error]{
		basicRequestProcessor,
		toolProcessor,
		RequestConfirmationRequestProcessor,
		instructionsRequestProcessor,
		identityRequestProcessor,
		ContentsRequestProcessor,
		outputSchemaRequestProcessor,
		AgentTransferRequestProcessor,
		removeDisplayNameIfExists,
	}
	DefaultResponseProcessors []func(ctx agent.InvocationContext, req *model.LLMRequest, resp *model.LLMResponse) error
)

func (f *Flow) Run(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
	return func(yield func(*session.Event, error) bool) {
		cfg := runconfig.FromContext(ctx)
		for {
			if !cfg.ConsumeLLMCall() {
				yield(newErrorEvent(ctx, ErrorCodeIterationLimit,
					fmt.Sprintf("exceeded %d model calls in one invocation", cfg.MaxLLMCallsOrDefault())), nil)
				return
			}

			var lastEvent *session.Event
			for ev, err := range f.runOneStep(ctx) {
				if err != nil {
					// Framework and callback failures abort the stream;
					// model-side failures arrive as error events instead.
					yield(nil, err)
					return
				}
				// forward the event first.
				if !yield(ev, nil) {
					return
				}
				lastEvent = ev
			}
			if lastEvent == nil || lastEvent.IsFinalResponse() {
				return
			}
			if lastEvent.ErrorCode != "" {
				return
			}
			// The runner resolves the transfer target and re-enters the
			// target agent; this agent's contribution is over. Escalation
			// likewise ends the flow and is handled by the enclosing agent.
			if lastEvent.Actions.TransferToAgent != "" || lastEvent.Actions.Escalate {
				return
			}
			if lastEvent.LLMResponse.Partial {
				// The model stream was cut off mid-response, e.g. by the
				// token limit. There is nothing sensible to feed back.
				yield(nil, fmt.Errorf("model stream ended on a partial response"))
				return
			}
		}
	}
}

// runOneStep performs one model call and, when the response requests
// tools, one tool round.
func (f *Flow) runOneStep(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
	return func(yield func(*session.Event, error) bool) {
		if f.Model == nil {
			yield(nil, fmt.Errorf("agent %q: %w", ctx.Agent().Name(), ErrModelNotConfigured))
			return
		}

		req := &model.LLMRequest{
			Model: f.Model.Name(),
		}

		for ev, err := range f.preprocess(ctx, req) {
			if err != nil {
				yield(nil, err)
				return
			}
			if ev != nil {
				if !yield(ev, nil) {
					return
				}
			}
		}
		if ctx.Ended() {
			return
		}

		// Callbacks around the model call buffer their state writes here;
		// the delta rides on the model response event.
		stateDelta := make(map[string]any)
		for resp, err := range f.callLLM(ctx, req, stateDelta) {
			if err != nil {
				yield(nil, err)
				return
			}
			if err := f.postprocess(ctx, req, resp); err != nil {
				yield(nil, err)
				return
			}
			// A response with no content, no error and no interruption
			// carries nothing to act on (e.g. a usage-only stream chunk).
			if resp.Content == nil && resp.ErrorCode == "" && !resp.Interrupted {
				continue
			}

			tools := make(map[string]tool.Tool, len(req.Tools))
			for name, v := range req.Tools {
				t, ok := v.(tool.Tool)
				if !ok {
					yield(nil, fmt.Errorf("unexpected tool type %T for tool %q", v, name))
					return
				}
				tools[name] = t
			}

			modelResponseEvent := f.finalizeModelResponseEvent(ctx, resp, tools, stateDelta)
			if !yield(modelResponseEvent, nil) {
				return
			}

			ev, err := f.handleFunctionCalls(ctx, tools, resp, nil)
			if err != nil {
				yield(nil, err)
				return
			}
			if ev == nil {
				continue
			}

			if confirmationEvent := generateRequestConfirmationEvent(ctx, modelResponseEvent, ev); confirmationEvent != nil {
				if !yield(confirmationEvent, nil) {
					return
				}
			}

			if !yield(ev, nil) {
				return
			}

			// When the agent is configured for structured output, the
			// set_model_response result becomes the final text event.
			outputSchemaResponse, err := retrieveStructuredModelResponse(ev)
			if err != nil {
				yield(nil, err)
				return
			}
			if outputSchemaResponse != "" {
				if !yield(createFinalModelResponseEvent(ctx, outputSchemaResponse), nil) {
					return
				}
			}
		}
	}
}

func (f *Flow) preprocess(ctx agent.InvocationContext, req *model.LLMRequest) iter.Seq2[*session.Event, error] {
	return func(yield func(*session.Event, error) bool) {
		for _, processor := range f.RequestProcessors {
			for ev, err := range processor(ctx, req, f) {
				if err != nil {
					yield(nil, err)
					return
				}
				if ev != nil {
					yield(ev, nil)
				}
			}
		}

		if f.Tools != nil {
			if err := toolPreprocess(ctx, req, f.Tools); err != nil {
				yield(nil, err)
			}
		}
	}
}

// toolPreprocess lets every tool contribute its declaration (and any
// request mutations) to the outgoing request.
func toolPreprocess(ctx agent.InvocationContext, req *model.LLMRequest, tools []tool.Tool) error {
	for _, t := range tools {
		requestProcessor, ok := t.(toolinternal.RequestProcessor)
		if !ok {
			return fmt.Errorf("tool %q does not implement RequestProcessor", t.Name())
		}
		toolCtx := toolinternal.NewToolContext(ctx, "", &session.EventActions{}, nil)
		if err := requestProcessor.ProcessRequest(toolCtx, req); err != nil {
			return err
		}
	}
	return nil
}

func (f *Flow) callLLM(ctx agent.InvocationContext, req *model.LLMRequest, stateDelta map[string]any) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		pluginManager := pluginManagerFromContext(ctx)
		if pluginManager != nil {
			cctx := icontext.NewCallbackContextWithDelta(ctx, stateDelta)
			callbackResponse, callbackErr := pluginManager.RunBeforeModelCallback(cctx, req)
			if callbackResponse != nil || callbackErr != nil {
				yield(callbackResponse, callbackErr)
				return
			}
		}

		for _, callback := range f.BeforeModelCallbacks {
			cctx := icontext.NewCallbackContextWithDelta(ctx, stateDelta)
			callbackResponse, callbackErr := callback(cctx, req)
			if callbackResponse != nil || callbackErr != nil {
				yield(callbackResponse, callbackErr)
				return
			}
		}

		useStream := runconfig.FromContext(ctx).StreamingMode == runconfig.StreamingModeSSE

		for resp, err := range generateContent(ctx, f.Model, req, useStream) {
			if err != nil {
				cbResp, cbErr := f.runOnModelErrorCallbacks(ctx, req, stateDelta, err)
				if cbErr != nil {
					yield(nil, cbErr)
					return
				}
				if cbResp == nil {
					// Unrecovered model failures become error-coded
					// responses, so consumers see them as error events in
					// stream order rather than as an aborted stream.
					yield(&model.LLMResponse{
						ErrorCode:    ErrorCodeModelError,
						ErrorMessage: err.Error(),
						TurnComplete: true,
					}, nil)
					return
				}
				resp = cbResp
				err = nil
			}
			// The function call id is optional in the genai API and some
			// models leave it empty, but response matching needs it.
			utils.PopulateClientFunctionCallID(resp.Content)

			callbackResp, callbackErr := f.runAfterModelCallbacks(ctx, resp, stateDelta, err)
			if callbackErr != nil {
				yield(nil, callbackErr)
				return
			}
			if callbackResp != nil {
				if !yield(callbackResp, nil) {
					return
				}
				continue
			}

			if !yield(resp, nil) {
				return
			}
		}
	}
}

// generateContent wraps the LLM call with tracing and logging. The
// generate_content span covers only the model call; plugins and
// callbacks run outside of it.
func generateContent(ctx agent.InvocationContext, m model.LLM, req *model.LLMRequest, useStream bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		spanCtx, span := telemetry.StartGenerateContentSpan(ctx, telemetry.StartGenerateContentSpanParams{
			ModelName: m.Name(),
		})
		ctx = ctx.WithContext(spanCtx)
		backend := googlellm.GetGoogleLLMVariant(m)
		telemetry.LogRequest(ctx, req, backend)

		var lastResponse *model.LLMResponse
		var lastErr error
		spanEnded := false
		endSpanAndTrackResult := func() {
			if spanEnded {
				return
			}
			telemetry.TraceGenerateContentResult(span, telemetry.TraceGenerateContentResultParams{
				Response: lastResponse,
				Error:    lastErr,
			})
			span.End()
			spanEnded = true
		}
		defer endSpanAndTrackResult()
		for resp, err := range m.GenerateContent(ctx, req, useStream) {
			lastResponse = resp
			lastErr = err
			// Complete the span immediately so it does not include the
			// consumer's processing time.
			if err != nil {
				endSpanAndTrackResult()
			} else if !resp.Partial {
				telemetry.LogResponse(ctx, resp, backend)
				endSpanAndTrackResult()
			}
			if !yield(resp, err) {
				return
			}
		}
	}
}

func (f *Flow) runAfterModelCallbacks(ctx agent.InvocationContext, llmResp *model.LLMResponse, stateDelta map[string]any, llmErr error) (*model.LLMResponse, error) {
	pluginManager := pluginManagerFromContext(ctx)
	if pluginManager != nil {
		cctx := icontext.NewCallbackContextWithDelta(ctx, stateDelta)
		callbackResponse, callbackErr := pluginManager.RunAfterModelCallback(cctx, llmResp, llmErr)
		if callbackResponse != nil || callbackErr != nil {
			return callbackResponse, callbackErr
		}
	}

	for _, callback := range f.AfterModelCallbacks {
		cctx := icontext.NewCallbackContextWithDelta(ctx, stateDelta)
		callbackResponse, callbackErr := callback(cctx, llmResp, llmErr)
		if callbackResponse != nil || callbackErr != nil {
			return callbackResponse, callbackErr
		}
	}

	return nil, nil
}

func (f *Flow) runOnModelErrorCallbacks(ctx agent.InvocationContext, llmReq *model.LLMRequest, stateDelta map[string]any, llmErr error) (*model.LLMResponse, error) {
	pluginManager := pluginManagerFromContext(ctx)
	if pluginManager != nil {
		cctx := icontext.NewCallbackContextWithDelta(ctx, stateDelta)
		callbackResponse, callbackErr := pluginManager.RunOnModelErrorCallback(cctx, llmReq, llmErr)
		if callbackResponse != nil || callbackErr != nil {
			return callbackResponse, callbackErr
		}
	}

	for _, callback := range f.OnModelErrorCallbacks {
		cctx := icontext.NewCallbackContextWithDelta(ctx, stateDelta)
		callbackResponse, callbackErr := callback(cctx, llmReq, llmErr)
		if callbackResponse != nil || callbackErr != nil {
			return callbackResponse, callbackErr
		}
	}

	return nil, nil
}

func (f *Flow) postprocess(ctx agent.InvocationContext, req *model.LLMRequest, resp *model.LLMResponse) error {
	for _, processor := range f.ResponseProcessors {
		if err := processor(ctx, req, resp); err != nil {
			return err
		}
	}
	return nil
}

// finalizeModelResponseEvent turns a model response into the event the
// flow yields for it.
func (f *Flow) finalizeModelResponseEvent(ctx agent.InvocationContext, resp *model.LLMResponse, tools map[string]tool.Tool, stateDelta map[string]any) *session.Event {
	utils.PopulateClientFunctionCallID(resp.Content)

	ev := session.NewEvent(ctx.InvocationID())
	ev.Author = ctx.Agent().Name()
	ev.Branch = ctx.Branch()
	ev.LLMResponse = *resp
	ev.Actions.StateDelta = stateDelta
	ev.LongRunningToolIDs = findLongRunningFunctionCallIDs(resp.Content, tools)

	// An OutputKey agent stores its final text into session state; the
	// session service applies the delta at commit.
	if key := f.outputKey(ctx); key != "" && !resp.Partial && ev.IsFinalResponse() {
		if texts := utils.TextParts(resp.Content); len(texts) > 0 {
			ev.Actions.StateDelta[key] = joinText(texts)
		}
	}

	return ev
}

func (f *Flow) outputKey(ctx agent.InvocationContext) string {
	llmAgent := asLLMAgent(ctx.Agent())
	if llmAgent == nil {
		return ""
	}
	return llmAgent.internal().OutputKey
}

func joinText(texts []string) string {
	if len(texts) == 1 {
		return texts[0]
	}
	joined := texts[0]
	for _, t := range texts[1:] {
		joined += "\n" + t
	}
	return joined
}

// newErrorEvent materializes an in-flow failure as an event, so that
// consumers of the stream observe it in order.
func newErrorEvent(ctx agent.InvocationContext, code, message string) *session.Event {
	ev := session.NewEvent(ctx.InvocationID())
	ev.Author = ctx.Agent().Name()
	ev.Branch = ctx.Branch()
	ev.ErrorCode = code
	ev.ErrorMessage = message
	return ev
}

// findLongRunningFunctionCallIDs returns the ids of function calls in c
// that target long-running tools, in call order.
func findLongRunningFunctionCallIDs(c *genai.Content, tools map[string]tool.Tool) []string {
	var ids []string
	for _, fc := range utils.FunctionCalls(c) {
		if t, ok := tools[fc.Name]; ok && fc.ID != "" && t.IsLongRunning() {
			ids = append(ids, fc.ID)
		}
	}
	return ids
}

func pluginManagerFromContext(ctx context.Context) pluginManager {
	m, ok := ctx.Value(plugincontext.PluginManagerCtxKey).(pluginManager)
	if !ok {
		return nil
	}
	return m
}

type pluginManager interface {
	RunBeforeModelCallback(cctx agent.CallbackContext, llmRequest *model.LLMRequest) (*model.LLMResponse, error)
	RunAfterModelCallback(cctx agent.CallbackContext, llmResponse *model.LLMResponse, llmResponseError error) (*model.LLMResponse, error)
	RunOnModelErrorCallback(ctx agent.CallbackContext, llmRequest *model.LLMRequest, llmResponseError error) (*model.LLMResponse, error)
	RunBeforeToolCallback(ctx tool.Context, t tool.Tool, args map[string]any) (map[string]any, error)
	RunAfterToolCallback(ctx tool.Context, t tool.Tool, args, result map[string]any, err error) (map[string]any, error)
	RunOnToolErrorCallback(ctx tool.Context, t tool.Tool, args map[string]any, err error) (map[string]any, error)
}
