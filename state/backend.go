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

// Package state implements the fabric's state manager: a scoped,
// versioned key/value store backed by any of several pluggable Backend
// implementations, from an in-process map to a distributed coordinator.
package state

import (
	"context"
	"time"
)

// BackendCharacteristics advertises what a Backend implementation
// actually provides, so callers can make durability/performance
// tradeoffs instead of guessing from the backend's name.
type BackendCharacteristics struct {
	Persistent    bool
	Transactional bool
	PrefixScan    bool
	AtomicOps     bool
}

// Backend is the storage abstraction the state Manager drives. Every
// method receives a canonical storage key already rendered by
// Scope.StorageKey/Prefix; a Backend implementation never needs to know
// about Scope itself.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) (bool, error)
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	Clear(ctx context.Context, prefix string) (int, error)

	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Migrate(ctx context.Context) error
	MigrationVersion(ctx context.Context) (int, error)

	BackendType() string
	Characteristics() BackendCharacteristics
}

// StateEntry is the versioned record the manager hands back from
// GetEntry (the Backend itself holds a JSON envelope of value, version
// and last-modified time); Value is the raw JSON of the caller's value.
type StateEntry struct {
	Scope        Scope
	Key          string
	Value        []byte
	Version      int
	LastModified time.Time
}
