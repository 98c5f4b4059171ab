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

// Package functiontool provides a tool that wraps a Go function.
package functiontool

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"

	"github.com/quartet-ai/maestro/internal/toolinternal/toolutils"
	"github.com/quartet-ai/maestro/internal/typeutil"
	"github.com/quartet-ai/maestro/model"
	"github.com/quartet-ai/maestro/tool"
)

// FunctionTool: borrow implementation from MCP go.

// Config is the input to the NewFunctionTool function.
type Config struct {
	// The name of this tool.
	Name string
	// A human-readable description of the tool.
	Description string
	// An optional JSON schema object defining the expected parameters for the tool.
	// If it is nil, FunctionTool tries to infer the schema based on the handler type.
	InputSchema *jsonschema.Schema
	// An optional JSON schema object defining the structure of the tool's output.
	// If it is nil, FunctionTool tries to infer the schema based on the handler type.
	OutputSchema *jsonschema.Schema
	// IsLongRunning makes a FunctionTool a long-running operation.
	IsLongRunning bool

	// RequireConfirmation flags whether this tool must always ask for user confirmation
	// before execution. If set to true, the runtime will automatically initiate
	// a Human-in-the-Loop (HITL) confirmation request when this tool is invoked.
	RequireConfirmation bool

	// RequireConfirmationProvider allows for dynamic determination of whether
	// user confirmation is needed. This field is a function called at runtime to decide if
	// a confirmation request should be sent. The function takes the tool's input parameters as arguments.
	// This provider offers more flexibility than the static RequireConfirmation flag,
	// enabling conditional confirmation based on the invocation details.
	// If set, this often takes precedence over the RequireConfirmation flag.
	//
	// Required signature for a provider function:
	// func(toolInput ToolArgs) (bool)
	// where ToolArgs is the input type of your go function
	// Returning true means confirmation is required.
	RequireConfirmationProvider any
}

// Func represents a Go function that can be wrapped in a tool.
// It takes a tool.Context and a generic argument type, and returns a generic result type.
type Func[TArgs, TResults any] func(tool.Context, TArgs) (TResults, error)

// ErrInvalidArgument indicates the input parameter type is invalid.
var ErrInvalidArgument = errors.New("invalid argument")

// New creates a new tool with a name, description, and the provided handler.
// Input schema is automatically inferred from the input and output types.
func New[TArgs, TResults any](cfg Config, handler Func[TArgs, TResults]) (tool.Tool, error) {
	// TODO: How can we improve UX for functions that does not require an argument, returns a simple type value, or returns a no result?
	// https://github.com/modelcontextprotocol/go-sdk/discussions/37

	var zeroArgs TArgs
	argsType := reflect.TypeOf(zeroArgs)
	for argsType != nil && argsType.Kind() == reflect.Ptr {
		argsType = argsType.Elem()
	}
	if argsType == nil || (argsType.Kind() != reflect.Struct && argsType.Kind() != reflect.Map) {
		return nil, fmt.Errorf("input must be a struct or a map or a pointer to those types, but received: %v: %w", argsType, ErrInvalidArgument)
	}

	ischema, err := resolvedSchema[TArgs](cfg.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to infer input schema: %w", err)
	}
	oschema, err := resolvedSchema[TResults](cfg.OutputSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to infer output schema: %w", err)
	}

	var confirmWrapper func(TArgs) bool

	if cfg.RequireConfirmationProvider != nil {
		// Attempt to cast the interface directly to the function signature
		fn, ok := cfg.RequireConfirmationProvider.(func(TArgs) bool)
		if !ok {
			return nil, fmt.Errorf("error RequireConfirmationProvider must be a function with signature func(%T) bool", *new(TArgs))
		}
		confirmWrapper = fn
	}

	return &functionTool[TArgs, TResults]{
		cfg:                         cfg,
		inputSchema:                 ischema,
		outputSchema:                oschema,
		handler:                     handler,
		requireConfirmation:         cfg.RequireConfirmation,
		requireConfirmationProvider: confirmWrapper,
	}, nil
}

// functionTool wraps a Go function.
type functionTool[TArgs, TResults any] struct {
	cfg Config

	// A JSON Schema object defining the expected parameters for the tool.
	inputSchema *jsonschema.Resolved
	// A JSON Schema object defining the result of the tool.
	outputSchema *jsonschema.Resolved

	// handler is the Go function.
	handler Func[TArgs, TResults]

	requireConfirmation bool

	requireConfirmationProvider func(TArgs) bool
}

// Description implements tool.Tool.
func (f *functionTool[TArgs, TResults]) Description() string {
	return f.cfg.Description
}

// Name implements tool.Tool.
func (f *functionTool[TArgs, TResults]) Name() string {
	return f.cfg.Name
}

// IsLongRunning implements tool.Tool.
func (f *functionTool[TArgs, TResults]) IsLongRunning() bool {
	return f.cfg.IsLongRunning
}

// ProcessRequest packs the function tool's declaration into the LLM request.
func (f *functionTool[TArgs, TResults]) ProcessRequest(ctx tool.Context, req *model.LLMRequest) error {
	return toolutils.PackTool(req, f)
}

// FunctionDeclaration implements interfaces.FunctionTool.
func (f *functionTool[TArgs, TResults]) Declaration() *genai.FunctionDeclaration {
	decl := &genai.FunctionDeclaration{
		Name:        f.Name(),
		Description: f.Description(),
	}
	if f.inputSchema != nil {
		decl.ParametersJsonSchema = f.inputSchema.Schema()
	}
	if f.outputSchema != nil {
		decl.ResponseJsonSchema = f.outputSchema.Schema()
	}

	if f.cfg.IsLongRunning {
		instruction := "NOTE: This is a long-running operation. Do not call this tool again if it has already returned some intermediate or pending status."
		if decl.Description != "" {
			decl.Description += "\n\n" + instruction
		} else {
			decl.Description = instruction
		}
	}

	return decl
}

// Run executes the tool with the provided context and yields events.
func (f *functionTool[TArgs, TResults]) Run(ctx tool.Context, args any) (result map[string]any, err error) {
	// TODO: Handle function call request from tc.InvocationContext.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in tool %q: %v\nstack: %s", f.Name(), r, debug.Stack())
		}
	}()

	m, ok := args.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected args type, got: %T", args)
	}
	input, err := typeutil.ConvertToWithJSONSchema[map[string]any, TArgs](m, f.inputSchema)
	if err != nil {
		return nil, err
	}

	if confirmation := ctx.ToolConfirmation(); confirmation != nil {
		if !confirmation.Confirmed {
			return nil, fmt.Errorf("error tool %q call is rejected", f.Name())
		}
	} else {
		requireConfirmation := f.requireConfirmation

		// Only run the potentially expensive provider if the static flag didn't already trigger it
		// Provider takes precedence/overrides:
		if f.requireConfirmationProvider != nil {
			requireConfirmation = f.requireConfirmationProvider(input)
		}

		if requireConfirmation {
			err := ctx.RequestConfirmation(
				fmt.Sprintf("Please approve or reject the tool call %s() by responding with a FunctionResponse with an expected ToolConfirmation payload.",
					f.Name()), nil)
			if err != nil {
				return nil, err
			}
			ctx.Actions().SkipSummarization = true
			return nil, fmt.Errorf("error tool %q requires confirmation, please approve or reject", f.Name())
		}
	}

	output, err := f.handler(ctx, input)
	if err != nil {
		return nil, err
	}
	resp, err := typeutil.ConvertToWithJSONSchema[TResults, map[string]any](output, f.outputSchema)
	if err == nil { // all good
		return resp, nil
	}

	// A function response part carries a map. Results of basic types are
	// wrapped under a "result" key instead of being rejected.
	if f.outputSchema != nil {
		if err1 := f.outputSchema.Validate(output); err1 != nil {
			return resp, err // if it fails propagate original err.
		}
	}
	wrappedOutput := map[string]any{"result": output}
	return wrappedOutput, nil
}

// The handler shape deliberately differs from the MCP SDK's
// ToolHandlerFor [1]: the handler returns only TResults plus an error,
// and the tool context stays out of the user-visible signature. A
// handler that wants to report a domain failure includes it in its
// result type.
//
//	[1] https://pkg.go.dev/github.com/modelcontextprotocol/go-sdk/mcp#ToolHandler

func resolvedSchema[T any](override *jsonschema.Schema) (*jsonschema.Resolved, error) {
	// TODO: check if override schema is compatible with T.
	if override != nil {
		return override.Resolve(nil)
	}
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, err
	}
	return schema.Resolve(nil)
}
