// Copyright 2025 Kadir Pekel
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

package hooks

import (
	"context"
	"fmt"

	"github.com/agentfabric/corefabric/events"
)

// ReplayStore persists and restores replayable hooks' HookContext
// snapshots through the same blob-store abstraction the event bus uses
// for persisted events, avoiding a second storage mechanism.
type ReplayStore struct {
	persistence events.Persistence
}

// NewReplayStore creates a ReplayStore over persistence.
func NewReplayStore(persistence events.Persistence) *ReplayStore {
	return &ReplayStore{persistence: persistence}
}

// Save serializes hook's current HookContext and stores it keyed by
// (correlation id, the hook's declared replay id).
func (s *ReplayStore) Save(ctx context.Context, hook Replayable, hctx *HookContext) error {
	replayID := hook.ReplayID(hctx)
	data, err := hook.SerializeContext(hctx)
	if err != nil {
		return fmt.Errorf("hooks: serialize replay context for %s: %w", hook.Metadata().Name, err)
	}
	key := events.HookReplayKey(hctx.CorrelationID, replayID)
	return s.persistence.Store(ctx, key, data)
}

// Load restores the HookContext previously saved for (correlationID,
// replayID), returning ok=false if nothing was stored under that key.
func (s *ReplayStore) Load(ctx context.Context, hook Replayable, correlationID, replayID string) (*HookContext, bool, error) {
	key := events.HookReplayKey(correlationID, replayID)
	data, ok, err := s.persistence.Load(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	hctx, err := hook.DeserializeContext(data)
	if err != nil {
		return nil, false, fmt.Errorf("hooks: deserialize replay context for %s: %w", hook.Metadata().Name, err)
	}
	return hctx, true, nil
}

// Replay loads a prior HookContext and re-executes hook against it,
// applying mutate (e.g. to change a sampled temperature) before running,
// if mutate is non-nil.
func (e *Executor) Replay(ctx context.Context, store *ReplayStore, hook Replayable, correlationID, replayID string, mutate func(*HookContext)) (HookResult, error) {
	hctx, ok, err := store.Load(ctx, hook, correlationID, replayID)
	if err != nil {
		return HookResult{}, err
	}
	if !ok {
		return HookResult{}, fmt.Errorf("hooks: no replay context stored for %s/%s", correlationID, replayID)
	}
	if mutate != nil {
		mutate(hctx)
	}
	return e.RunOne(ctx, hook, hctx)
}

// Timeline reconstructs every replay snapshot stored for correlationID,
// in storage order, without decoding them into a concrete Hook's
// context type.
func Timeline(ctx context.Context, persistence events.Persistence, correlationID string) ([]events.Record, error) {
	return persistence.QueryByPrefix(ctx, "hook-replay:"+correlationID+":")
}
