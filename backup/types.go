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

// Package backup captures and restores a full snapshot of the state
// manager's entries under one exclusive lock, serializing the result in
// a small self-describing wire format that carries its own schema
// version and compression tag.
//
// It is grounded in the teacher's checkpoint package: BackupSnapshot
// plays the role checkpoint.State played (a capturable, restorable
// execution snapshot), and Coordinator.Capture/Restore mirror
// checkpoint.Manager's SaveCheckpoint/LoadCheckpoint flow (Restore clears
// each captured scope before writing it back), retargeted from one running agent's state to the fabric's
// entire state manager.
package backup

import (
	"encoding/json"
	"path"
	"time"

	"github.com/agentfabric/corefabric/state"
)

// SchemaVersion is the current BackupSnapshot schema version. Restore
// rejects a snapshot whose version is newer than this, since this
// process cannot know what fields it would be discarding.
const SchemaVersion uint16 = 1

// Entry is one captured state-manager record: its scope, its
// user-facing key, and the raw JSON value exactly as the backend held
// it (no intermediate decode/re-encode through `any`, so round-tripping
// a snapshot can never lose numeric precision or field order).
type Entry struct {
	Scope        state.Scope     `json:"scope"`
	Key          string          `json:"key"`
	Value        json.RawMessage `json:"value"`
	Version      int             `json:"version"`
	LastModified time.Time       `json:"last_modified"`
}

// BackupSnapshot is the full captured state, plus the bookkeeping
// needed to chain incremental backups and verify a restore target.
type BackupSnapshot struct {
	BackupID  string    `json:"backup_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
}

// ProgressFunc is invoked by Restore after every applied entry, so a
// caller can report restore progress on a large snapshot. completed is
// the count applied so far, total is len(snapshot.Entries).
type ProgressFunc func(completed, total int)

// CaptureFilter narrows a Capture to a subset of the state manager's
// entries. A zero-value CaptureFilter captures everything. IncludeScopes
// and IncludeKeyPatterns are allow-lists (empty means "no restriction");
// Exclude* always wins over Include* for an entry matching both.
// KeyPatterns are shell-style globs (see path.Match) matched against the
// entry's user-facing key, not its storage key.
type CaptureFilter struct {
	IncludeScopes      []state.Scope
	ExcludeScopes      []state.Scope
	IncludeKeyPatterns []string
	ExcludeKeyPatterns []string
}

func (f CaptureFilter) matches(scope state.Scope, key string) bool {
	if scopeListContains(f.ExcludeScopes, scope) {
		return false
	}
	if len(f.IncludeScopes) > 0 && !scopeListContains(f.IncludeScopes, scope) {
		return false
	}
	if keyMatchesAny(f.ExcludeKeyPatterns, key) {
		return false
	}
	if len(f.IncludeKeyPatterns) > 0 && !keyMatchesAny(f.IncludeKeyPatterns, key) {
		return false
	}
	return true
}

func scopeListContains(scopes []state.Scope, scope state.Scope) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}

func keyMatchesAny(patterns []string, key string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, key); err == nil && ok {
			return true
		}
	}
	return false
}
