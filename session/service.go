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
	"context"
	"time"
)

// Service manages the creation, retrieval and updates of sessions.
// Implementations must be safe for concurrent use; writes serialize per
// service instance and reads observe any completed write.
type Service interface {
	// Create creates a new session. Fails with ErrSessionAlreadyExists
	// when the key is taken.
	Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error)

	// Get returns an existing session, or ErrSessionNotFound.
	Get(ctx context.Context, req *GetRequest) (*GetResponse, error)

	// List returns the sessions of a user. Event logs are not populated.
	List(ctx context.Context, req *ListRequest) (*ListResponse, error)

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, req *DeleteRequest) error

	// AppendEvent applies the event's state delta to the scope stores and
	// appends the event, trimmed of temp keys, to the session's log. The
	// service stamps the event's Timestamp. Partial events are ignored.
	// Append is atomic: the deltas and the event land together or not at
	// all.
	AppendEvent(ctx context.Context, sess Session, event *Event) error
}

// CreateRequest is the argument to Service.Create.
type CreateRequest struct {
	AppName string
	UserID  string

	// SessionID is optional; the service generates one when empty.
	SessionID string

	// State seeds the session's state. Keys are split by scope prefix
	// exactly like an event's state delta; temp keys are discarded.
	State map[string]any
}

// CreateResponse is the result of Service.Create.
type CreateResponse struct {
	Session Session
}

// GetRequest is the argument to Service.Get.
type GetRequest struct {
	AppName   string
	UserID    string
	SessionID string

	// NumRecentEvents limits the returned event log to the last N events
	// (applied after the After filter). Zero means no limit.
	NumRecentEvents int

	// After filters the returned event log to events with a timestamp
	// strictly later than this instant. Zero value means no filter.
	After time.Time
}

// GetResponse is the result of Service.Get.
type GetResponse struct {
	Session Session
}

// ListRequest is the argument to Service.List.
type ListRequest struct {
	AppName string
	UserID  string
}

// ListResponse is the result of Service.List.
type ListResponse struct {
	Sessions []Session
}

// DeleteRequest is the argument to Service.Delete.
type DeleteRequest struct {
	AppName   string
	UserID    string
	SessionID string
}
