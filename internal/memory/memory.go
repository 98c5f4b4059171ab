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

package memory

import (
	"context"

	"github.com/quartet-ai/maestro/memory"
	"github.com/quartet-ai/maestro/session"
)

type Memory struct {
	Service   memory.Service
	SessionID string
	UserID    string
	AppName   string
}

func (a *Memory) AddSession(ctx context.Context, session session.Session) error {
	return a.Service.AddSession(ctx, session)
}

func (a *Memory) Search(ctx context.Context, query string) (*memory.SearchResponse, error) {
	return a.Service.Search(ctx, &memory.SearchRequest{
		AppName: a.AppName,
		UserID:  a.UserID,
		Query:   query,
	})
}
