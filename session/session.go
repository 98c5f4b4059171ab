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

// Package session defines sessions, events and the session service.
//
// A session is the unit of conversation persistence: an ordered event log
// plus a state map assembled from three scopes (app, user, session) that
// are keyed by prefix. The session service is the single stateful
// authority; everything else in the runtime holds snapshots or buffers
// deltas that the service applies at append time.
package session

import (
	"errors"
	"iter"
	"time"
)

var (
	// ErrSessionNotFound is returned when the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionAlreadyExists is returned by Create when the
	// (app name, user id, session id) key is already taken.
	ErrSessionAlreadyExists = errors.New("session already exists")

	// ErrStateKeyNotExist is returned by State.Get for missing keys.
	ErrStateKeyNotExist = errors.New("state key does not exist")
)

// Session is a series of interactions between a user and agents.
// Implementations are not required to be safe for concurrent use.
type Session interface {
	// ID returns the session identifier, unique within (app name, user id).
	ID() string

	// AppName returns the name of the app this session belongs to.
	AppName() string

	// UserID returns the id of the user owning this session.
	UserID() string

	// State returns the merged state view: app-scope, user-scope and
	// session-scope keys with prefixes attached. Temp-scope keys never
	// appear in the merged view.
	State() State

	// Events returns the event log, ordered by append time.
	Events() Events

	// LastUpdateTime returns the time of the last append.
	LastUpdateTime() time.Time
}

// ReadonlyState is a read-only view over state.
type ReadonlyState interface {
	// Get returns the value for key, or ErrStateKeyNotExist.
	Get(key string) (any, error)

	// All iterates over all visible key/value pairs.
	All() iter.Seq2[string, any]
}

// State is a mutable view over state.
type State interface {
	ReadonlyState

	// Set stores the value for key.
	Set(key string, value any) error
}

// Events is an ordered, indexable sequence of events.
type Events interface {
	// All iterates over the events in order.
	All() iter.Seq[*Event]

	// Len returns the number of events.
	Len() int

	// At returns the i-th event.
	At(i int) *Event
}

// EventList is a slice-backed Events implementation.
type EventList []*Event

func (l EventList) All() iter.Seq[*Event] {
	return func(yield func(*Event) bool) {
		for _, e := range l {
			if !yield(e) {
				return
			}
		}
	}
}

func (l EventList) Len() int { return len(l) }

func (l EventList) At(i int) *Event { return l[i] }
