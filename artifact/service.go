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

package artifact

import "google.golang.org/genai"

// SaveRequest is the argument to Service.Save.
type SaveRequest struct {
	AppName   string
	UserID    string
	SessionID string
	FileName  string
	Part      *genai.Part
}

// SaveResponse is the result of Service.Save.
type SaveResponse struct {
	// Version assigned to the saved artifact, starting at 1.
	Version int64
}

// LoadRequest is the argument to Service.Load.
type LoadRequest struct {
	AppName   string
	UserID    string
	SessionID string
	FileName  string

	// Version selects which stored version to load. Zero means latest.
	Version int64
}

// LoadResponse is the result of Service.Load.
type LoadResponse struct {
	Part    *genai.Part
	Version int64
}

// DeleteRequest is the argument to Service.Delete.
type DeleteRequest struct {
	AppName   string
	UserID    string
	SessionID string
	FileName  string
}

// ListRequest is the argument to Service.List.
type ListRequest struct {
	AppName   string
	UserID    string
	SessionID string
}

// ListResponse is the result of Service.List.
type ListResponse struct {
	// FileNames visible to the session, sorted.
	FileNames []string
}

// VersionsRequest is the argument to Service.Versions.
type VersionsRequest struct {
	AppName   string
	UserID    string
	SessionID string
	FileName  string
}

// VersionsResponse is the result of Service.Versions.
type VersionsResponse struct {
	// Versions in ascending order.
	Versions []int64
}
