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

// Package plugincontext holds the context key under which the runner
// places the plugin manager. It is a separate package so that both the
// agent and flow packages can look the manager up without importing the
// manager implementation (which imports them back).
package plugincontext

type ctxKey int

// PluginManagerCtxKey is the context key for the invocation's plugin
// manager.
const PluginManagerCtxKey ctxKey = 0
