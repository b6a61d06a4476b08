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
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryPersistence is a process-local Persistence over a map, visible
// only within this process.
type MemoryPersistence struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryPersistence creates an empty MemoryPersistence.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{records: make(map[string]Record)}
}

func (p *MemoryPersistence) Store(_ context.Context, key string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	p.records[key] = Record{Key: key, Data: cp, StoredAt: time.Now()}
	return nil
}

func (p *MemoryPersistence) Load(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.records[key]
	if !ok {
		return nil, false, nil
	}
	return r.Data, true, nil
}

func (p *MemoryPersistence) QueryByPrefix(_ context.Context, prefix string) ([]Record, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Record
	for k, r := range p.records {
		if strings.HasPrefix(k, prefix) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoredAt.Before(out[j].StoredAt) })
	return out, nil
}

func (p *MemoryPersistence) Stats(_ context.Context) (PersistenceStats, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	stats := PersistenceStats{RecordCount: len(p.records)}
	for _, r := range p.records {
		stats.TotalBytes += int64(len(r.Data))
		if stats.OldestEntry.IsZero() || r.StoredAt.Before(stats.OldestEntry) {
			stats.OldestEntry = r.StoredAt
		}
		if r.StoredAt.After(stats.NewestEntry) {
			stats.NewestEntry = r.StoredAt
		}
	}
	return stats, nil
}
