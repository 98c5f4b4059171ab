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
	"maps"
	"strings"
)

// State key prefixes. Keys without a prefix are session-scoped.
const (
	// StateAppPrefix marks keys shared across all users of an app.
	StateAppPrefix = "app:"

	// StateUserPrefix marks keys shared across all sessions of one user.
	StateUserPrefix = "user:"

	// StateTempPrefix marks keys that live only for the current
	// invocation and are never persisted.
	StateTempPrefix = "temp:"
)

// Scope identifies the store a state key belongs to.
type Scope int

const (
	ScopeSession Scope = iota
	ScopeApp
	ScopeUser
	ScopeTemp
)

// KeyScope returns the scope of a state key by prefix match.
func KeyScope(key string) Scope {
	switch {
	case strings.HasPrefix(key, StateAppPrefix):
		return ScopeApp
	case strings.HasPrefix(key, StateUserPrefix):
		return ScopeUser
	case strings.HasPrefix(key, StateTempPrefix):
		return ScopeTemp
	default:
		return ScopeSession
	}
}

// ExtractDeltas splits a state delta into per-scope slices. App and user
// keys are returned with their prefixes stripped; temp keys are
// discarded; everything else lands in the session slice unchanged.
func ExtractDeltas(delta map[string]any) (app, user, sess map[string]any) {
	app = make(map[string]any)
	user = make(map[string]any)
	sess = make(map[string]any)
	for key, value := range delta {
		switch KeyScope(key) {
		case ScopeApp:
			app[strings.TrimPrefix(key, StateAppPrefix)] = value
		case ScopeUser:
			user[strings.TrimPrefix(key, StateUserPrefix)] = value
		case ScopeTemp:
			// Never persisted.
		default:
			sess[key] = value
		}
	}
	return app, user, sess
}

// MergeStates assembles the merged state view from per-scope slices,
// reattaching the app and user prefixes. Session keys pass through.
func MergeStates(app, user, sess map[string]any) map[string]any {
	merged := make(map[string]any, len(app)+len(user)+len(sess))
	for key, value := range app {
		merged[StateAppPrefix+key] = value
	}
	for key, value := range user {
		merged[StateUserPrefix+key] = value
	}
	maps.Copy(merged, sess)
	return merged
}

// TrimTempDelta returns a copy of delta without temp-scoped keys.
// Returns nil if delta is nil.
func TrimTempDelta(delta map[string]any) map[string]any {
	if delta == nil {
		return nil
	}
	trimmed := make(map[string]any, len(delta))
	for key, value := range delta {
		if KeyScope(key) != ScopeTemp {
			trimmed[key] = value
		}
	}
	return trimmed
}
