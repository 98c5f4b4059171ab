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

package utils

import (
	"fmt"
	"reflect"

	"google.golang.org/genai"
)

// ValidateMapOnSchema checks m against a genai schema, as declared for a
// function call. When allowExtraFields is false, properties the schema
// does not declare are rejected.
func ValidateMapOnSchema(m map[string]any, schema *genai.Schema, allowExtraFields bool) error {
	return validateValue(m, schema, "$", allowExtraFields)
}

func validateValue(value any, schema *genai.Schema, path string, allowExtraFields bool) error {
	if schema == nil {
		return nil
	}
	if value == nil {
		if schema.Nullable != nil && *schema.Nullable {
			return nil
		}
		return fmt.Errorf("%s: null is not allowed", path)
	}

	switch schema.Type {
	case genai.TypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: expected object, got %T", path, value)
		}
		for _, required := range schema.Required {
			if _, ok := obj[required]; !ok {
				return fmt.Errorf("%s: missing required property %q", path, required)
			}
		}
		for name, v := range obj {
			propSchema, ok := schema.Properties[name]
			if !ok {
				if !allowExtraFields && len(schema.Properties) > 0 {
					return fmt.Errorf("%s: unexpected property %q", path, name)
				}
				continue
			}
			if err := validateValue(v, propSchema, path+"."+name, allowExtraFields); err != nil {
				return err
			}
		}
	case genai.TypeArray:
		arr, ok := value.([]any)
		if !ok {
			return fmt.Errorf("%s: expected array, got %T", path, value)
		}
		for i, item := range arr {
			if err := validateValue(item, schema.Items, fmt.Sprintf("%s[%d]", path, i), allowExtraFields); err != nil {
				return err
			}
		}
	case genai.TypeString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%s: expected string, got %T", path, value)
		}
		if len(schema.Enum) > 0 {
			found := false
			for _, e := range schema.Enum {
				if s == e {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("%s: value %q is not in enum %v", path, s, schema.Enum)
			}
		}
	case genai.TypeNumber:
		if !isNumeric(value) {
			return fmt.Errorf("%s: expected number, got %T", path, value)
		}
	case genai.TypeInteger:
		if !isInteger(value) {
			return fmt.Errorf("%s: expected integer, got %T", path, value)
		}
	case genai.TypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s: expected boolean, got %T", path, value)
		}
	}
	return nil
}

func isNumeric(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Float32, reflect.Float64,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case float32:
		return n == float32(int64(n))
	case float64:
		return n == float64(int64(n))
	}
	return isNumeric(v)
}
