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

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"google.golang.org/genai"
)

// InMemoryService returns a new in-memory implementation of the artifact
// service. Thread-safe. Intended for tests and single-process apps.
func InMemoryService() Service {
	return &inMemoryService{
		files: make(map[fileKey]*file),
	}
}

type fileKey struct {
	appName, userID, sessionID, fileName string
}

// file is a version chain. versions[i] holds version i+1.
type file struct {
	versions []*genai.Part
}

type inMemoryService struct {
	mu    sync.RWMutex
	files map[fileKey]*file
}

func (s *inMemoryService) key(appName, userID, sessionID, fileName string) fileKey {
	return fileKey{appName, userID, sessionNamespace(sessionID, fileName), fileName}
}

func (s *inMemoryService) Save(ctx context.Context, req *SaveRequest) (*SaveResponse, error) {
	if err := ValidateFileName(req.FileName); err != nil {
		return nil, fmt.Errorf("save artifact %q: %w", req.FileName, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := s.key(req.AppName, req.UserID, req.SessionID, req.FileName)
	f, ok := s.files[k]
	if !ok {
		f = &file{}
		s.files[k] = f
	}
	f.versions = append(f.versions, req.Part)
	return &SaveResponse{Version: int64(len(f.versions))}, nil
}

func (s *inMemoryService) Load(ctx context.Context, req *LoadRequest) (*LoadResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[s.key(req.AppName, req.UserID, req.SessionID, req.FileName)]
	if !ok || len(f.versions) == 0 {
		return nil, fmt.Errorf("load artifact %q: %w", req.FileName, ErrArtifactNotFound)
	}

	version := req.Version
	if version == 0 {
		version = int64(len(f.versions))
	}
	if version < 1 || version > int64(len(f.versions)) {
		return nil, fmt.Errorf("load artifact %q version %d: %w", req.FileName, version, ErrArtifactNotFound)
	}
	return &LoadResponse{Part: f.versions[version-1], Version: version}, nil
}

func (s *inMemoryService) Delete(ctx context.Context, req *DeleteRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.files, s.key(req.AppName, req.UserID, req.SessionID, req.FileName))
	return nil
}

func (s *inMemoryService) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := &ListResponse{}
	for k, f := range s.files {
		if k.appName != req.AppName || k.userID != req.UserID || len(f.versions) == 0 {
			continue
		}
		// A session sees its own artifacts and the user-scoped ones.
		if k.sessionID != req.SessionID && k.sessionID != userNamespaceSessionID {
			continue
		}
		resp.FileNames = append(resp.FileNames, k.fileName)
	}
	slices.Sort(resp.FileNames)
	return resp, nil
}

func (s *inMemoryService) Versions(ctx context.Context, req *VersionsRequest) (*VersionsResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[s.key(req.AppName, req.UserID, req.SessionID, req.FileName)]
	if !ok || len(f.versions) == 0 {
		return nil, fmt.Errorf("versions of artifact %q: %w", req.FileName, ErrArtifactNotFound)
	}
	resp := &VersionsResponse{Versions: make([]int64, len(f.versions))}
	for i := range f.versions {
		resp.Versions[i] = int64(i + 1)
	}
	return resp, nil
}
