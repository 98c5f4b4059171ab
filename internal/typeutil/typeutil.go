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

// Package typeutil converts between maps and typed values at the tool
// boundary, where arguments and results cross between JSON shapes and Go
// types.
package typeutil

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/mitchellh/mapstructure"
)

// ConvertTo converts a value to the target type using its json tags.
// Numbers are converted weakly, since JSON decoding produces float64 for
// every numeric argument.
func ConvertTo[F, T any](value F) (T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := decoder.Decode(value); err != nil {
		return out, fmt.Errorf("failed to convert %T to %T: %w", value, out, err)
	}
	return out, nil
}

// ConvertToWithJSONSchema validates value against the resolved schema,
// then converts it to the target type. A nil schema skips validation.
func ConvertToWithJSONSchema[F, T any](value F, schema *jsonschema.Resolved) (T, error) {
	if schema != nil {
		if err := schema.Validate(value); err != nil {
			var out T
			return out, fmt.Errorf("value does not match schema: %w", err)
		}
	}
	return ConvertTo[F, T](value)
}

// FromMapStructure decodes a JSON-shaped map into a freshly allocated T.
// Decoding is strict: a value of the wrong type is an error, not a
// candidate for coercion.
func FromMapStructure[T any](m map[string]any) (*T, error) {
	out := new(T)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "json",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := decoder.Decode(m); err != nil {
		return nil, fmt.Errorf("failed to decode map into %T: %w", *out, err)
	}
	return out, nil
}
