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

package database

import "time"

// sessionModel is the session row: metadata, the JSON-encoded
// session-scope state and the timestamp of the newest event.
type sessionModel struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	AppName   string `gorm:"type:varchar(255);not null;uniqueIndex:idx_app_user_session,priority:1"`
	UserID    string `gorm:"type:varchar(255);not null;uniqueIndex:idx_app_user_session,priority:2"`
	SessionID string `gorm:"type:varchar(255);not null;uniqueIndex:idx_app_user_session,priority:3"`
	State     []byte
	// LastEventAt keeps event stamping non-decreasing across appends.
	LastEventAt time.Time
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (sessionModel) TableName() string { return "sessions" }

// eventModel is one appended event, JSON-encoded.
type eventModel struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	AppName   string    `gorm:"type:varchar(255);not null;index:idx_app_user_session_event,priority:1"`
	UserID    string    `gorm:"type:varchar(255);not null;index:idx_app_user_session_event,priority:2"`
	SessionID string    `gorm:"type:varchar(255);not null;index:idx_app_user_session_event,priority:3"`
	EventData []byte    `gorm:"not null"`
	Timestamp time.Time `gorm:"not null;index:idx_app_user_session_event,priority:4"`
	CreatedAt time.Time `gorm:"not null"`
}

func (eventModel) TableName() string { return "session_events" }

// appStateModel holds one app-scope state key, shared by every user of
// the app. The scope prefix is stripped before storage.
type appStateModel struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	AppName   string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_app_key,priority:1"`
	StateKey  string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_app_key,priority:2"`
	Value     []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (appStateModel) TableName() string { return "app_states" }

// userStateModel holds one user-scope state key, shared across all the
// user's sessions within an app.
type userStateModel struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	AppName   string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_app_user_key,priority:1"`
	UserID    string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_app_user_key,priority:2"`
	StateKey  string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_app_user_key,priority:3"`
	Value     []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (userStateModel) TableName() string { return "user_states" }
