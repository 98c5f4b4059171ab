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

// Package artifact defines the artifact service: versioned binary or
// text attachments keyed by (app name, user id, session id, filename).
//
// Filenames prefixed "user:" are stored per user rather than per
// session, so every session of that user sees them.
package artifact

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrArtifactNotFound is returned when the requested artifact or the
	// requested version of it does not exist.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrInvalidFileName is returned by Save for filenames containing
	// path separators.
	ErrInvalidFileName = errors.New("invalid file name")
)

// UserScopePrefix marks filenames shared across all sessions of a user.
const UserScopePrefix = "user:"

// userNamespaceSessionID is the sentinel session id under which
// user-scoped artifacts are stored.
const userNamespaceSessionID = "user"

// Service stores and retrieves artifacts. Implementations must be safe
// for concurrent use.
type Service interface {
	// Save stores a new version of the artifact and returns its version
	// number. Versions start at 1.
	Save(ctx context.Context, req *SaveRequest) (*SaveResponse, error)

	// Load returns a version of the artifact. A version of zero loads
	// the latest one.
	Load(ctx context.Context, req *LoadRequest) (*LoadResponse, error)

	// Delete removes all versions of the artifact. Deleting a missing
	// artifact is not an error.
	Delete(ctx context.Context, req *DeleteRequest) error

	// List returns the filenames visible to a session: its own artifacts
	// plus the user-scoped ones.
	List(ctx context.Context, req *ListRequest) (*ListResponse, error)

	// Versions returns the stored version numbers of the artifact, in
	// ascending order.
	Versions(ctx context.Context, req *VersionsRequest) (*VersionsResponse, error)
}

// ValidateFileName rejects filenames that look like paths.
func ValidateFileName(name string) error {
	if strings.ContainsAny(name, `/\`) {
		return ErrInvalidFileName
	}
	return nil
}

// sessionNamespace returns the session id under which the file is
// stored: the sentinel "user" namespace for user-scoped filenames, the
// session's own id otherwise.
func sessionNamespace(sessionID, fileName string) string {
	if strings.HasPrefix(fileName, UserScopePrefix) {
		return userNamespaceSessionID
	}
	return sessionID
}
