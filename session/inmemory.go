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
	"fmt"
	"iter"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryService returns a new in-memory implementation of the session
// service. Thread-safe. Intended for tests and single-process apps; state
// does not survive a restart.
func InMemoryService() Service {
	return &inMemoryService{
		appStates:  make(map[string]map[string]any),
		userStates: make(map[userKey]map[string]any),
		sessions:   make(map[sessionKey]*sessionRecord),
	}
}

type userKey struct {
	appName, userID string
}

type sessionKey struct {
	appName, userID, sessionID string
}

type sessionRecord struct {
	state  map[string]any
	temp   map[string]any
	events []*Event

	lastUpdate time.Time
	// lastTimestamp is the timestamp of the newest appended event, kept
	// so stamping stays non-decreasing even if the wall clock steps back.
	lastTimestamp time.Time
}

type inMemoryService struct {
	mu         sync.RWMutex
	appStates  map[string]map[string]any
	userStates map[userKey]map[string]any
	sessions   map[sessionKey]*sessionRecord
}

func (s *inMemoryService) Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error) {
	if req.AppName == "" || req.UserID == "" {
		return nil, fmt.Errorf("app_name and user_id are required, got app_name: %q, user_id: %q", req.AppName, req.UserID)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := sessionKey{req.AppName, req.UserID, sessionID}
	if _, ok := s.sessions[k]; ok {
		return nil, fmt.Errorf("create session %q: %w", sessionID, ErrSessionAlreadyExists)
	}

	rec := &sessionRecord{
		state:      make(map[string]any),
		temp:       make(map[string]any),
		lastUpdate: time.Now(),
	}
	app, user, sess := ExtractDeltas(req.State)
	s.mergeScopesLocked(k, app, user)
	maps.Copy(rec.state, sess)
	s.sessions[k] = rec

	return &CreateResponse{Session: s.view(k)}, nil
}

func (s *inMemoryService) Get(ctx context.Context, req *GetRequest) (*GetResponse, error) {
	k := sessionKey{req.AppName, req.UserID, req.SessionID}

	s.mu.RLock()
	_, ok := s.sessions[k]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("get session %q: %w", req.SessionID, ErrSessionNotFound)
	}

	v := s.view(k)
	v.numRecentEvents = req.NumRecentEvents
	v.after = req.After
	return &GetResponse{Session: v}, nil
}

func (s *inMemoryService) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := &ListResponse{}
	for k := range s.sessions {
		if k.appName != req.AppName || k.userID != req.UserID {
			continue
		}
		v := s.view(k)
		v.withoutEvents = true
		resp.Sessions = append(resp.Sessions, v)
	}
	return resp, nil
}

func (s *inMemoryService) Delete(ctx context.Context, req *DeleteRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionKey{req.AppName, req.UserID, req.SessionID})
	return nil
}

func (s *inMemoryService) AppendEvent(ctx context.Context, sess Session, event *Event) error {
	if event.Partial {
		return nil
	}

	k := sessionKey{sess.AppName(), sess.UserID(), sess.ID()}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[k]
	if !ok {
		return fmt.Errorf("append event to session %q: %w", sess.ID(), ErrSessionNotFound)
	}

	// Stamp here, under the lock, so timestamps never decrease within a
	// session regardless of the caller's clock.
	ts := time.Now()
	if !ts.After(rec.lastTimestamp) {
		ts = rec.lastTimestamp.Add(time.Nanosecond)
	}
	event.Timestamp = ts
	rec.lastTimestamp = ts

	app, user, sessDelta := ExtractDeltas(event.Actions.StateDelta)
	s.mergeScopesLocked(k, app, user)
	maps.Copy(rec.state, sessDelta)

	event.Actions.StateDelta = TrimTempDelta(event.Actions.StateDelta)
	rec.events = append(rec.events, event)
	rec.lastUpdate = ts
	return nil
}

// mergeScopesLocked folds the stripped app and user deltas into the
// corresponding scope stores. Callers must hold mu.
func (s *inMemoryService) mergeScopesLocked(k sessionKey, app, user map[string]any) {
	if len(app) > 0 {
		st, ok := s.appStates[k.appName]
		if !ok {
			st = make(map[string]any)
			s.appStates[k.appName] = st
		}
		maps.Copy(st, app)
	}
	if len(user) > 0 {
		uk := userKey{k.appName, k.userID}
		st, ok := s.userStates[uk]
		if !ok {
			st = make(map[string]any)
			s.userStates[uk] = st
		}
		maps.Copy(st, user)
	}
}

func (s *inMemoryService) view(k sessionKey) *storedSession {
	return &storedSession{svc: s, key: k}
}

// storedSession is a live view over a session record. Reads go through
// the service's lock, so a view observes every completed append.
type storedSession struct {
	svc *inMemoryService
	key sessionKey

	numRecentEvents int
	after           time.Time
	withoutEvents   bool
}

func (v *storedSession) ID() string      { return v.key.sessionID }
func (v *storedSession) AppName() string { return v.key.appName }
func (v *storedSession) UserID() string  { return v.key.userID }

func (v *storedSession) State() State { return &storedState{view: v} }

func (v *storedSession) Events() Events {
	if v.withoutEvents {
		return EventList(nil)
	}

	v.svc.mu.RLock()
	defer v.svc.mu.RUnlock()

	rec, ok := v.svc.sessions[v.key]
	if !ok {
		return EventList(nil)
	}

	events := rec.events
	if !v.after.IsZero() {
		i := 0
		for i < len(events) && !events[i].Timestamp.After(v.after) {
			i++
		}
		events = events[i:]
	}
	if v.numRecentEvents > 0 && len(events) > v.numRecentEvents {
		events = events[len(events)-v.numRecentEvents:]
	}
	out := make(EventList, len(events))
	copy(out, events)
	return out
}

func (v *storedSession) LastUpdateTime() time.Time {
	v.svc.mu.RLock()
	defer v.svc.mu.RUnlock()

	if rec, ok := v.svc.sessions[v.key]; ok {
		return rec.lastUpdate
	}
	return time.Time{}
}

// storedState routes reads and writes by key scope: app and user keys go
// to the shared scope stores, temp keys to a per-session transient map,
// everything else to the session's own state.
type storedState struct {
	view *storedSession
}

func (st *storedState) Get(key string) (any, error) {
	svc := st.view.svc
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	m := st.scopeMapLocked(key)
	value, ok := m[st.stripScope(key)]
	if !ok {
		return nil, ErrStateKeyNotExist
	}
	return value, nil
}

func (st *storedState) Set(key string, value any) error {
	svc := st.view.svc
	svc.mu.Lock()
	defer svc.mu.Unlock()

	k := st.view.key
	switch KeyScope(key) {
	case ScopeApp:
		svc.mergeScopesLocked(k, map[string]any{st.stripScope(key): value}, nil)
	case ScopeUser:
		svc.mergeScopesLocked(k, nil, map[string]any{st.stripScope(key): value})
	case ScopeTemp:
		if rec, ok := svc.sessions[k]; ok {
			rec.temp[st.stripScope(key)] = value
		}
	default:
		if rec, ok := svc.sessions[k]; ok {
			rec.state[key] = value
		}
	}
	return nil
}

// All iterates the merged view: app, user and session scopes with
// prefixes attached. Temp keys never appear.
func (st *storedState) All() iter.Seq2[string, any] {
	svc := st.view.svc
	k := st.view.key

	svc.mu.RLock()
	merged := MergeStates(svc.appStates[k.appName], svc.userStates[userKey{k.appName, k.userID}], nil)
	if rec, ok := svc.sessions[k]; ok {
		maps.Copy(merged, rec.state)
	}
	svc.mu.RUnlock()

	return maps.All(merged)
}

// scopeMapLocked returns the map holding key's scope. Callers must hold
// at least a read lock.
func (st *storedState) scopeMapLocked(key string) map[string]any {
	svc := st.view.svc
	k := st.view.key
	switch KeyScope(key) {
	case ScopeApp:
		return svc.appStates[k.appName]
	case ScopeUser:
		return svc.userStates[userKey{k.appName, k.userID}]
	case ScopeTemp:
		if rec, ok := svc.sessions[k]; ok {
			return rec.temp
		}
		return nil
	default:
		if rec, ok := svc.sessions[k]; ok {
			return rec.state
		}
		return nil
	}
}

func (st *storedState) stripScope(key string) string {
	switch KeyScope(key) {
	case ScopeApp:
		return key[len(StateAppPrefix):]
	case ScopeUser:
		return key[len(StateUserPrefix):]
	case ScopeTemp:
		return key[len(StateTempPrefix):]
	default:
		return key
	}
}
