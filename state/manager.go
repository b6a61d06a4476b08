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

package state

import (
	"context"
	"encoding/json"
	"hash/maphash"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentfabric/corefabric/metrics"
)

var tracer = metrics.Tracer("github.com/agentfabric/corefabric/state")

// traceBackendCall wraps a single Backend call in a span named
// "state.backend.<op>", tagged with the backend type and storage key.
func (m *Manager) traceBackendCall(ctx context.Context, op, storageKey string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "state.backend."+op, trace.WithAttributes(
		attribute.String("fabric.backend", m.backend.BackendType()),
		attribute.String("fabric.storage_key", storageKey),
	))
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

const shardCount = 256

// envelope is the on-the-wire record a Backend actually stores: the
// caller's value plus the bookkeeping the Manager needs for versioning.
type envelope struct {
	Value        json.RawMessage `json:"value"`
	Version      int             `json:"version"`
	LastModified time.Time       `json:"last_modified"`
}

// Manager is the state manager: it owns exactly one Backend and
// serializes writes per key (via a shard of mutexes keyed by a hash of
// the storage key) while letting writes to different keys proceed
// concurrently.
type Manager struct {
	backend Backend
	metrics *metrics.Registry

	seed   maphash.Seed
	shards [shardCount]sync.Mutex
}

// NewManager creates a Manager over an already-constructed Backend. The
// caller must call Open before first use and Close when done.
func NewManager(backend Backend, reg *metrics.Registry) *Manager {
	return &Manager{backend: backend, metrics: reg, seed: maphash.MakeSeed()}
}

// Open opens the underlying backend and runs its migrations.
func (m *Manager) Open(ctx context.Context) error {
	if err := m.traceBackendCall(ctx, "open", "", m.backend.Open); err != nil {
		return &StorageError{Backend: m.backend.BackendType(), Detail: "open", Err: err}
	}
	if err := m.traceBackendCall(ctx, "migrate", "", m.backend.Migrate); err != nil {
		return &StorageError{Backend: m.backend.BackendType(), Detail: "migrate", Err: err}
	}
	return nil
}

// Close closes the underlying backend.
func (m *Manager) Close(ctx context.Context) error {
	return m.traceBackendCall(ctx, "close", "", m.backend.Close)
}

func (m *Manager) shard(storageKey string) *sync.Mutex {
	var h maphash.Hash
	h.SetSeed(m.seed)
	_, _ = h.WriteString(storageKey)
	return &m.shards[h.Sum64()%shardCount]
}

func (m *Manager) observe(op, result string, start time.Time) {
	if m.metrics == nil {
		return
	}
	m.metrics.StateOps.WithLabelValues(m.backend.BackendType(), op, result).Inc()
	m.metrics.StateOpDuration.WithLabelValues(m.backend.BackendType(), op).Observe(time.Since(start).Seconds())
}

// Set upserts value at (scope, key), returning only after the backend
// reports the write durable. The per-key version increments on every
// successful write, starting at 1.
func (m *Manager) Set(ctx context.Context, scope Scope, key string, value any) error {
	start := time.Now()
	storageKey := scope.StorageKey(key)
	mu := m.shard(storageKey)
	mu.Lock()
	defer mu.Unlock()

	raw, err := json.Marshal(value)
	if err != nil {
		m.observe("set", "error", start)
		return &SerializationError{Key: storageKey, Err: err}
	}

	var existing []byte
	var existingOK bool
	_ = m.traceBackendCall(ctx, "get", storageKey, func(ctx context.Context) error {
		var err error
		existing, existingOK, err = m.backend.Get(ctx, storageKey)
		return err
	})

	version := 1
	if existingOK {
		var prev envelope
		if json.Unmarshal(existing, &prev) == nil {
			version = prev.Version + 1
		}
	}

	env := envelope{Value: raw, Version: version, LastModified: time.Now()}
	envBytes, err := json.Marshal(env)
	if err != nil {
		m.observe("set", "error", start)
		return &SerializationError{Key: storageKey, Err: err}
	}

	if err := m.traceBackendCall(ctx, "set", storageKey, func(ctx context.Context) error {
		return m.backend.Set(ctx, storageKey, envBytes)
	}); err != nil {
		m.observe("set", "error", start)
		return &StorageError{Backend: m.backend.BackendType(), Detail: "set", Err: err}
	}
	m.observe("set", "ok", start)
	return nil
}

// Get returns the current value at (scope, key), or ok=false if absent.
func (m *Manager) Get(ctx context.Context, scope Scope, key string) (any, bool, error) {
	start := time.Now()
	storageKey := scope.StorageKey(key)
	mu := m.shard(storageKey)
	mu.Lock()
	defer mu.Unlock()

	var raw []byte
	var ok bool
	err := m.traceBackendCall(ctx, "get", storageKey, func(ctx context.Context) error {
		var err error
		raw, ok, err = m.backend.Get(ctx, storageKey)
		return err
	})
	if err != nil {
		m.observe("get", "error", start)
		return nil, false, &StorageError{Backend: m.backend.BackendType(), Detail: "get", Err: err}
	}
	if !ok {
		m.observe("get", "miss", start)
		return nil, false, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		m.observe("get", "error", start)
		return nil, false, &SerializationError{Key: storageKey, Err: err}
	}

	var value any
	if err := json.Unmarshal(env.Value, &value); err != nil {
		m.observe("get", "error", start)
		return nil, false, &SerializationError{Key: storageKey, Err: err}
	}
	m.observe("get", "hit", start)
	return value, true, nil
}

// GetEntry returns the full StateEntry (including version and
// last-modified time) at (scope, key).
func (m *Manager) GetEntry(ctx context.Context, scope Scope, key string) (*StateEntry, bool, error) {
	storageKey := scope.StorageKey(key)
	mu := m.shard(storageKey)
	mu.Lock()
	defer mu.Unlock()

	var raw []byte
	var ok bool
	err := m.traceBackendCall(ctx, "get", storageKey, func(ctx context.Context) error {
		var err error
		raw, ok, err = m.backend.Get(ctx, storageKey)
		return err
	})
	if err != nil {
		return nil, false, &StorageError{Backend: m.backend.BackendType(), Detail: "get", Err: err}
	}
	if !ok {
		return nil, false, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false, &SerializationError{Key: storageKey, Err: err}
	}
	return &StateEntry{
		Scope: scope, Key: key, Value: env.Value,
		Version: env.Version, LastModified: env.LastModified,
	}, true, nil
}

// Delete removes (scope, key), reporting whether it existed.
func (m *Manager) Delete(ctx context.Context, scope Scope, key string) (bool, error) {
	start := time.Now()
	storageKey := scope.StorageKey(key)
	mu := m.shard(storageKey)
	mu.Lock()
	defer mu.Unlock()

	var existed bool
	err := m.traceBackendCall(ctx, "delete", storageKey, func(ctx context.Context) error {
		var err error
		existed, err = m.backend.Delete(ctx, storageKey)
		return err
	})
	if err != nil {
		m.observe("delete", "error", start)
		return false, &StorageError{Backend: m.backend.BackendType(), Detail: "delete", Err: err}
	}
	m.observe("delete", "ok", start)
	return existed, nil
}

// ListKeys returns the user-facing keys (not storage keys) present in
// scope.
func (m *Manager) ListKeys(ctx context.Context, scope Scope) ([]string, error) {
	var storageKeys []string
	err := m.traceBackendCall(ctx, "list_keys", scope.Prefix(), func(ctx context.Context) error {
		var err error
		storageKeys, err = m.backend.ListKeys(ctx, scope.Prefix())
		return err
	})
	if err != nil {
		return nil, &StorageError{Backend: m.backend.BackendType(), Detail: "list_keys", Err: err}
	}
	keys := make([]string, 0, len(storageKeys))
	for _, sk := range storageKeys {
		if _, userKey, err := ParseStorageKey(sk); err == nil {
			keys = append(keys, userKey)
		}
	}
	return keys, nil
}

// ClearScope removes every entry in scope, returning the number removed.
func (m *Manager) ClearScope(ctx context.Context, scope Scope) (int, error) {
	var n int
	err := m.traceBackendCall(ctx, "clear", scope.Prefix(), func(ctx context.Context) error {
		var err error
		n, err = m.backend.Clear(ctx, scope.Prefix())
		return err
	})
	if err != nil {
		return 0, &StorageError{Backend: m.backend.BackendType(), Detail: "clear", Err: err}
	}
	return n, nil
}

// AllStorageKeys returns every canonical storage key across every scope,
// for backup.Coordinator's full-snapshot walk.
func (m *Manager) AllStorageKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := m.traceBackendCall(ctx, "list_keys", "", func(ctx context.Context) error {
		var err error
		keys, err = m.backend.ListKeys(ctx, "")
		return err
	})
	if err != nil {
		return nil, &StorageError{Backend: m.backend.BackendType(), Detail: "list_keys", Err: err}
	}
	return keys, nil
}

// Characteristics reports the underlying Backend's advertised
// capabilities.
func (m *Manager) Characteristics() BackendCharacteristics {
	return m.backend.Characteristics()
}

// BackendType reports the underlying Backend's type name.
func (m *Manager) BackendType() string {
	return m.backend.BackendType()
}
