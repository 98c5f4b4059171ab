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

// Package memory defines the long-term memory service: a store of past
// session contents that agents and tools query across sessions of the
// same user.
package memory

import (
	"context"
	"time"

	"google.golang.org/genai"

	"github.com/quartet-ai/maestro/session"
)

// Service is the interface for memory backends. Implementations must be
// safe for concurrent use.
type Service interface {
	// AddSession ingests a session's events into memory. Ingesting the
	// same session again replaces its earlier contribution.
	AddSession(ctx context.Context, session session.Session) error

	// Search returns the memory entries of (app name, user id) relevant
	// to the query.
	Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error)
}

// SearchRequest is the argument to Service.Search.
type SearchRequest struct {
	AppName string
	UserID  string
	Query   string
}

// SearchResponse is the result of Service.Search.
type SearchResponse struct {
	Memories []Entry
}

// Entry is one memory hit.
type Entry struct {
	// Content of the remembered event.
	Content *genai.Content

	// Author of the remembered event, if known.
	Author string

	// Timestamp of the remembered event, if known.
	Timestamp time.Time
}
