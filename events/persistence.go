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

package events

import (
	"context"
	"time"
)

// Record is one persisted blob, keyed by an opaque string the caller
// controls. The event bus and the hook executor's replay store both use
// this same abstraction under different key conventions.
type Record struct {
	Key      string
	Data     []byte
	StoredAt time.Time
}

// PersistenceStats reports aggregate counters a caller can expose over
// httpapi without walking every record.
type PersistenceStats struct {
	RecordCount int
	TotalBytes  int64
	OldestEntry time.Time
	NewestEntry time.Time
}

// Persistence is the blob-store abstraction events.Bus uses to retain
// published events for later query, and hooks.ReplayStore reuses to store
// replayable HookContext snapshots. Persistence failures are logged by
// callers but never fail the operation that triggered them (publish,
// hook execution).
type Persistence interface {
	Store(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, bool, error)
	QueryByPrefix(ctx context.Context, prefix string) ([]Record, error)
	Stats(ctx context.Context) (PersistenceStats, error)
}

// eventKey renders the persistence key for a stored event: every event
// is keyed so a correlation-id prefix scan finds its whole timeline. The
// event type is not part of the key, so a by-type query scans every
// "event:" record and filters on the decoded type.
func eventKey(e *UniversalEvent) string {
	corr := e.CorrelationID
	if corr == "" {
		corr = "none"
	}
	return "event:" + corr + ":" + e.Timestamp.UTC().Format(time.RFC3339Nano) + ":" + e.ID
}

// HookReplayKey renders the persistence key a replayable hook's
// HookContext snapshot is stored under, keyed by (correlation id, replay
// id) per the hook executor's replay contract.
func HookReplayKey(correlationID, replayID string) string {
	return "hook-replay:" + correlationID + ":" + replayID
}
