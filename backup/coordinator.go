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

package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/agentfabric/corefabric/metrics"
	"github.com/agentfabric/corefabric/state"
)

// Coordinator captures and restores state-manager snapshots under one
// exclusive lock, mirroring the teacher's checkpoint.Manager save/load/
// clear flow — but over the whole state manager rather than one agent's
// session-scoped checkpoint record.
type Coordinator struct {
	mu         sync.Mutex
	manager    *state.Manager
	compressor Compressor
	signingKey *SigningKey
	metrics    *metrics.Registry
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCompressor selects the Compressor new snapshots are encoded with.
// Defaults to the identity (no compression) Compressor.
func WithCompressor(c Compressor) Option {
	return func(co *Coordinator) { co.compressor = c }
}

// WithSigningKey enables JWS-signing of captured snapshots, and
// signature verification on restore.
func WithSigningKey(key *SigningKey) Option {
	return func(co *Coordinator) { co.signingKey = key }
}

// WithMetrics wires a metrics.Registry to report capture/restore
// duration, outcome, and snapshot size.
func WithMetrics(reg *metrics.Registry) Option {
	return func(co *Coordinator) { co.metrics = reg }
}

// NewCoordinator creates a Coordinator over manager.
func NewCoordinator(manager *state.Manager, opts ...Option) *Coordinator {
	co := &Coordinator{manager: manager, compressor: NewCompressor(AlgorithmNone)}
	for _, opt := range opts {
		opt(co)
	}
	return co
}

// Capture walks every entry the state manager currently holds and
// serializes it into a wire-format byte slice. parentID, if non-empty,
// is recorded so a chain of incremental backups can be reconstructed;
// this fabric does not yet diff against the parent's contents (§9 open
// question), so every Capture is a full snapshot regardless of
// parentID.
func (c *Coordinator) Capture(ctx context.Context, backupID, parentID string) ([]byte, error) {
	return c.CaptureFiltered(ctx, backupID, parentID, CaptureFilter{})
}

// CaptureFiltered is Capture narrowed to the scopes and key patterns
// filter allows, for a partial backup (e.g. excluding a noisy "temp_*"
// key family, or backing up only one agent's scope).
func (c *Coordinator) CaptureFiltered(ctx context.Context, backupID, parentID string, filter CaptureFilter) ([]byte, error) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	storageKeys, err := c.manager.AllStorageKeys(ctx)
	if err != nil {
		c.observe("capture", "error", start)
		return nil, fmt.Errorf("backup: list storage keys: %w", err)
	}

	entries := make([]Entry, 0, len(storageKeys))
	for _, storageKey := range storageKeys {
		scope, userKey, err := state.ParseStorageKey(storageKey)
		if err != nil {
			c.observe("capture", "error", start)
			return nil, fmt.Errorf("backup: parse storage key %q: %w", storageKey, err)
		}
		if !filter.matches(scope, userKey) {
			continue
		}
		entry, ok, err := c.manager.GetEntry(ctx, scope, userKey)
		if err != nil {
			c.observe("capture", "error", start)
			return nil, fmt.Errorf("backup: read %q: %w", storageKey, err)
		}
		if !ok {
			// Deleted between AllStorageKeys and GetEntry; skip it.
			continue
		}
		entries = append(entries, Entry{
			Scope:        entry.Scope,
			Key:          entry.Key,
			Value:        json.RawMessage(entry.Value),
			Version:      entry.Version,
			LastModified: entry.LastModified,
		})
	}

	snapshot := &BackupSnapshot{
		BackupID:  backupID,
		ParentID:  parentID,
		CreatedAt: time.Now(),
		Entries:   entries,
	}

	data, err := encode(snapshot, c.compressor, c.signingKey)
	if err != nil {
		c.observe("capture", "error", start)
		return nil, err
	}

	c.observeSize(len(data))
	c.observe("capture", "ok", start)
	return data, nil
}

// Restore decodes data and applies every entry to the state manager.
// Restore first clears every scope present in the snapshot (the union
// of scopes its entries touch), then applies entries one at a time,
// aborting on the first write failure and leaving the state manager in
// a partially-restored state — callers that need atomicity across
// restore should point the state manager at a fresh backend first.
// progress, if non-nil, is invoked after every applied entry.
func (c *Coordinator) Restore(ctx context.Context, data []byte, progress ProgressFunc) error {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot, err := decode(data, c.signingKey)
	if err != nil {
		c.observe("restore", "error", start)
		return err
	}

	scopes := map[state.Scope]struct{}{}
	for _, entry := range snapshot.Entries {
		scopes[entry.Scope] = struct{}{}
	}
	for scope := range scopes {
		if _, err := c.manager.ClearScope(ctx, scope); err != nil {
			c.observe("restore", "error", start)
			return fmt.Errorf("backup: clear scope before restore: %w", err)
		}
	}

	for i, entry := range snapshot.Entries {
		if err := c.manager.Set(ctx, entry.Scope, entry.Key, entry.Value); err != nil {
			c.observe("restore", "error", start)
			return fmt.Errorf("backup: restore entry %q: %w", entry.Key, err)
		}
		if progress != nil {
			progress(i+1, len(snapshot.Entries))
		}
	}

	c.observe("restore", "ok", start)
	return nil
}

func (c *Coordinator) observe(op, result string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.BackupOps.WithLabelValues(op, result).Inc()
	c.metrics.BackupDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (c *Coordinator) observeSize(n int) {
	if c.metrics == nil {
		return
	}
	c.metrics.BackupSizeBytes.WithLabelValues(c.compressor.Algorithm().String()).Observe(float64(n))
}
