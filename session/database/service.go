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

// Package database implements the session service on a SQL database via
// gorm. Sessions, events and the app/user scope stores live in separate
// tables; events and state values are stored JSON-encoded. Temp-scope
// state is held in memory and never reaches the database.
//
// Values round-trip through JSON, so numeric state reads back as
// float64. The in-memory service does not have this limitation.
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quartet-ai/maestro/session"
)

// Config is the input to New.
type Config struct {
	// Dialector selects the database, e.g. sqlite.Open("file:x.db").
	Dialector gorm.Dialector

	// Gorm customizes the gorm session. Optional.
	Gorm *gorm.Config
}

// New opens the database, migrates the schema and returns the service.
func New(cfg Config) (session.Service, error) {
	if cfg.Dialector == nil {
		return nil, fmt.Errorf("database dialector is required")
	}
	gormCfg := cfg.Gorm
	if gormCfg == nil {
		gormCfg = &gorm.Config{}
	}
	db, err := gorm.Open(cfg.Dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&sessionModel{}, &eventModel{}, &appStateModel{}, &userStateModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate session schema: %w", err)
	}
	return &service{
		db:    db,
		temps: make(map[sessionKey]map[string]any),
	}, nil
}

type sessionKey struct {
	appName, userID, sessionID string
}

type service struct {
	db *gorm.DB

	// mu serializes appends so event timestamps stay non-decreasing.
	mu sync.Mutex

	// temps holds temp-scope state per session.
	tempMu sync.RWMutex
	temps  map[sessionKey]map[string]any
}

func (s *service) Create(ctx context.Context, req *session.CreateRequest) (*session.CreateResponse, error) {
	if req.AppName == "" || req.UserID == "" {
		return nil, fmt.Errorf("app_name and user_id are required, got app_name: %q, user_id: %q", req.AppName, req.UserID)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	k := sessionKey{req.AppName, req.UserID, sessionID}

	app, user, sess := session.ExtractDeltas(req.State)
	stateJSON, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session state: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := sessionQuery(tx, k).Model(&sessionModel{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("create session %q: %w", sessionID, session.ErrSessionAlreadyExists)
		}
		if err := tx.Create(&sessionModel{
			AppName:   k.appName,
			UserID:    k.userID,
			SessionID: k.sessionID,
			State:     stateJSON,
		}).Error; err != nil {
			return err
		}
		return mergeScopes(tx, k, app, user)
	})
	if err != nil {
		return nil, err
	}
	return &session.CreateResponse{Session: s.view(k)}, nil
}

func (s *service) Get(ctx context.Context, req *session.GetRequest) (*session.GetResponse, error) {
	k := sessionKey{req.AppName, req.UserID, req.SessionID}

	var count int64
	if err := sessionQuery(s.db.WithContext(ctx), k).Model(&sessionModel{}).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("get session %q: %w", req.SessionID, session.ErrSessionNotFound)
	}

	v := s.view(k)
	v.numRecentEvents = req.NumRecentEvents
	v.after = req.After
	return &session.GetResponse{Session: v}, nil
}

func (s *service) List(ctx context.Context, req *session.ListRequest) (*session.ListResponse, error) {
	var rows []sessionModel
	err := s.db.WithContext(ctx).
		Where("app_name = ? AND user_id = ?", req.AppName, req.UserID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	resp := &session.ListResponse{}
	for _, row := range rows {
		v := s.view(sessionKey{row.AppName, row.UserID, row.SessionID})
		v.withoutEvents = true
		resp.Sessions = append(resp.Sessions, v)
	}
	return resp, nil
}

func (s *service) Delete(ctx context.Context, req *session.DeleteRequest) error {
	k := sessionKey{req.AppName, req.UserID, req.SessionID}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := sessionQuery(tx, k).Delete(&sessionModel{}).Error; err != nil {
			return err
		}
		return sessionQuery(tx, k).Delete(&eventModel{}).Error
	})
	if err != nil {
		return err
	}

	s.tempMu.Lock()
	delete(s.temps, k)
	s.tempMu.Unlock()
	return nil
}

func (s *service) AppendEvent(ctx context.Context, sess session.Session, event *session.Event) error {
	if event.Partial {
		return nil
	}

	k := sessionKey{sess.AppName(), sess.UserID(), sess.ID()}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row sessionModel
		if err := sessionQuery(tx, k).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("append event to session %q: %w", sess.ID(), session.ErrSessionNotFound)
			}
			return err
		}

		ts := time.Now()
		if !ts.After(row.LastEventAt) {
			ts = row.LastEventAt.Add(time.Nanosecond)
		}
		event.Timestamp = ts

		app, user, sessDelta := session.ExtractDeltas(event.Actions.StateDelta)
		if err := mergeScopes(tx, k, app, user); err != nil {
			return err
		}

		state := make(map[string]any)
		if len(row.State) > 0 {
			if err := json.Unmarshal(row.State, &state); err != nil {
				return fmt.Errorf("failed to decode session state: %w", err)
			}
		}
		maps.Copy(state, sessDelta)
		stateJSON, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to encode session state: %w", err)
		}

		event.Actions.StateDelta = session.TrimTempDelta(event.Actions.StateDelta)
		eventJSON, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}

		if err := tx.Create(&eventModel{
			AppName:   k.appName,
			UserID:    k.userID,
			SessionID: k.sessionID,
			EventData: eventJSON,
			Timestamp: ts,
		}).Error; err != nil {
			return err
		}

		return tx.Model(&sessionModel{}).Where("id = ?", row.ID).Updates(map[string]any{
			"state":         stateJSON,
			"last_event_at": ts,
			"updated_at":    ts,
		}).Error
	})
}

// mergeScopes upserts the stripped app and user deltas into the scope
// tables.
func mergeScopes(tx *gorm.DB, k sessionKey, app, user map[string]any) error {
	now := time.Now()
	for key, value := range app {
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode app state %q: %w", key, err)
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "app_name"}, {Name: "state_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&appStateModel{
			AppName:   k.appName,
			StateKey:  key,
			Value:     encoded,
			UpdatedAt: now,
		}).Error
		if err != nil {
			return err
		}
	}
	for key, value := range user {
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode user state %q: %w", key, err)
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "app_name"}, {Name: "user_id"}, {Name: "state_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&userStateModel{
			AppName:   k.appName,
			UserID:    k.userID,
			StateKey:  key,
			Value:     encoded,
			UpdatedAt: now,
		}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func sessionQuery(tx *gorm.DB, k sessionKey) *gorm.DB {
	return tx.Where("app_name = ? AND user_id = ? AND session_id = ?", k.appName, k.userID, k.sessionID)
}

func (s *service) view(k sessionKey) *storedSession {
	return &storedSession{svc: s, key: k}
}

// storedSession is a live view: every read queries the database, so the
// view observes any completed append.
type storedSession struct {
	svc *service
	key sessionKey

	numRecentEvents int
	after           time.Time
	withoutEvents   bool
}

func (v *storedSession) ID() string      { return v.key.sessionID }
func (v *storedSession) AppName() string { return v.key.appName }
func (v *storedSession) UserID() string  { return v.key.userID }

func (v *storedSession) State() session.State { return &storedState{view: v} }

func (v *storedSession) Events() session.Events {
	if v.withoutEvents {
		return session.EventList(nil)
	}

	q := sessionQuery(v.svc.db, v.key).Order("timestamp ASC, id ASC")
	if !v.after.IsZero() {
		q = q.Where("timestamp > ?", v.after)
	}

	var rows []eventModel
	if err := q.Find(&rows).Error; err != nil {
		return session.EventList(nil)
	}
	if v.numRecentEvents > 0 && len(rows) > v.numRecentEvents {
		rows = rows[len(rows)-v.numRecentEvents:]
	}

	out := make(session.EventList, 0, len(rows))
	for _, row := range rows {
		var ev session.Event
		if err := json.Unmarshal(row.EventData, &ev); err != nil {
			continue
		}
		out = append(out, &ev)
	}
	return out
}

func (v *storedSession) LastUpdateTime() time.Time {
	var row sessionModel
	if err := sessionQuery(v.svc.db, v.key).First(&row).Error; err != nil {
		return time.Time{}
	}
	return row.UpdatedAt
}

// storedState routes reads and writes by key scope, like the in-memory
// service: app and user keys hit the scope tables, temp keys the
// in-memory map, everything else the session row's state.
type storedState struct {
	view *storedSession
}

func (st *storedState) Get(key string) (any, error) {
	svc := st.view.svc
	k := st.view.key

	switch session.KeyScope(key) {
	case session.ScopeApp:
		var row appStateModel
		err := svc.db.Where("app_name = ? AND state_key = ?",
			k.appName, stripScope(key)).First(&row).Error
		return decodeStateValue(row.Value, err)
	case session.ScopeUser:
		var row userStateModel
		err := svc.db.Where("app_name = ? AND user_id = ? AND state_key = ?",
			k.appName, k.userID, stripScope(key)).First(&row).Error
		return decodeStateValue(row.Value, err)
	case session.ScopeTemp:
		svc.tempMu.RLock()
		defer svc.tempMu.RUnlock()
		if value, ok := svc.temps[k][stripScope(key)]; ok {
			return value, nil
		}
		return nil, session.ErrStateKeyNotExist
	default:
		state, err := st.sessionState()
		if err != nil {
			return nil, err
		}
		if value, ok := state[key]; ok {
			return value, nil
		}
		return nil, session.ErrStateKeyNotExist
	}
}

func (st *storedState) Set(key string, value any) error {
	svc := st.view.svc
	k := st.view.key

	switch session.KeyScope(key) {
	case session.ScopeApp:
		return mergeScopes(svc.db, k, map[string]any{stripScope(key): value}, nil)
	case session.ScopeUser:
		return mergeScopes(svc.db, k, nil, map[string]any{stripScope(key): value})
	case session.ScopeTemp:
		svc.tempMu.Lock()
		defer svc.tempMu.Unlock()
		m, ok := svc.temps[k]
		if !ok {
			m = make(map[string]any)
			svc.temps[k] = m
		}
		m[stripScope(key)] = value
		return nil
	default:
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return svc.db.Transaction(func(tx *gorm.DB) error {
			var row sessionModel
			if err := sessionQuery(tx, k).First(&row).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("set state on session %q: %w", k.sessionID, session.ErrSessionNotFound)
				}
				return err
			}
			state := make(map[string]any)
			if len(row.State) > 0 {
				if err := json.Unmarshal(row.State, &state); err != nil {
					return fmt.Errorf("failed to decode session state: %w", err)
				}
			}
			state[key] = value
			stateJSON, err := json.Marshal(state)
			if err != nil {
				return fmt.Errorf("failed to encode session state: %w", err)
			}
			return tx.Model(&sessionModel{}).Where("id = ?", row.ID).
				Update("state", stateJSON).Error
		})
	}
}

// All iterates the merged view: app, user and session scopes with
// prefixes attached. Temp keys never appear.
func (st *storedState) All() iter.Seq2[string, any] {
	svc := st.view.svc
	k := st.view.key

	app := make(map[string]any)
	var appRows []appStateModel
	if err := svc.db.Where("app_name = ?", k.appName).Find(&appRows).Error; err == nil {
		for _, row := range appRows {
			if value, err := decodeStateValue(row.Value, nil); err == nil {
				app[row.StateKey] = value
			}
		}
	}

	user := make(map[string]any)
	var userRows []userStateModel
	if err := svc.db.Where("app_name = ? AND user_id = ?", k.appName, k.userID).Find(&userRows).Error; err == nil {
		for _, row := range userRows {
			if value, err := decodeStateValue(row.Value, nil); err == nil {
				user[row.StateKey] = value
			}
		}
	}

	sess, err := st.sessionState()
	if err != nil {
		sess = nil
	}

	return maps.All(session.MergeStates(app, user, sess))
}

func (st *storedState) sessionState() (map[string]any, error) {
	var row sessionModel
	if err := sessionQuery(st.view.svc.db, st.view.key).First(&row).Error; err != nil {
		return nil, err
	}
	state := make(map[string]any)
	if len(row.State) > 0 {
		if err := json.Unmarshal(row.State, &state); err != nil {
			return nil, err
		}
	}
	return state, nil
}

func decodeStateValue(encoded []byte, err error) (any, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrStateKeyNotExist
		}
		return nil, err
	}
	var value any
	if err := json.Unmarshal(encoded, &value); err != nil {
		return nil, fmt.Errorf("failed to decode state value: %w", err)
	}
	return value, nil
}

func stripScope(key string) string {
	switch session.KeyScope(key) {
	case session.ScopeApp:
		return key[len(session.StateAppPrefix):]
	case session.ScopeUser:
		return key[len(session.StateUserPrefix):]
	case session.ScopeTemp:
		return key[len(session.StateTempPrefix):]
	default:
		return key
	}
}
