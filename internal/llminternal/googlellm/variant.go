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

// Package googlellm detects which Google backend a model talks to.
// The Gemini API and Vertex AI accept slightly different requests, so a
// few request processors and the telemetry logger branch on the variant.
package googlellm

import (
	"regexp"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/quartet-ai/maestro/model"
)

// GoogleLLM is implemented by models backed by a Google genai client.
type GoogleLLM interface {
	model.LLM

	// GetGoogleLLMVariant returns the backend the underlying client is
	// configured for.
	GetGoogleLLMVariant() genai.Backend
}

// GetGoogleLLMVariant returns m's backend, or BackendUnspecified for
// models that are not Google-backed.
func GetGoogleLLMVariant(m model.LLM) genai.Backend {
	if g, ok := m.(GoogleLLM); ok {
		return g.GetGoogleLLMVariant()
	}
	return genai.BackendUnspecified
}

// IsGeminiAPIVariant reports whether m talks to the Gemini API (AI
// Studio) backend rather than Vertex AI.
func IsGeminiAPIVariant(m model.LLM) bool {
	return GetGoogleLLMVariant(m) == genai.BackendGeminiAPI
}

var geminiModelVersionRegex = regexp.MustCompile(`^gemini-(\d+(\.\d+)?)`)

// IsGeminiModel reports whether the model name is a Gemini model.
func IsGeminiModel(name string) bool {
	return strings.HasPrefix(extractModelName(name), "gemini-")
}

// IsGemini2OrAbove reports whether the model is Gemini 2.0 or newer.
func IsGemini2OrAbove(name string) bool {
	matches := geminiModelVersionRegex.FindStringSubmatch(extractModelName(name))
	if len(matches) < 2 {
		return false
	}
	version, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return false
	}
	return version >= 2.0
}

// NeedsOutputSchemaProcessor reports whether the model cannot combine a
// response schema with tool declarations in one request, so structured
// output must go through the set_model_response tool instead. Vertex AI
// supports the combination on Gemini 2.x+; everything else does not.
func NeedsOutputSchemaProcessor(m model.LLM) bool {
	if m == nil {
		return false
	}
	if GetGoogleLLMVariant(m) == genai.BackendVertexAI && IsGemini2OrAbove(m.Name()) {
		return false
	}
	return true
}

// extractModelName strips a publisher path prefix, e.g.
// "projects/p/locations/l/publishers/google/models/gemini-2.5-flash".
func extractModelName(name string) string {
	return name[strings.LastIndex(name, "/")+1:]
}
