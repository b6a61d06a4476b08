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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fileRecord is the on-disk shape one record file holds: the original
// key travels alongside the data since the filename is a hash of it.
type fileRecord struct {
	Key      string    `json:"key"`
	Data     []byte    `json:"data"`
	StoredAt time.Time `json:"stored_at"`
}

// FilePersistence is a Persistence backed by one file per record under a
// directory, with an fsnotify watch keeping an in-memory key index
// current as other processes sharing the directory write their own
// records. This gives cross-process visibility without a shared database.
type FilePersistence struct {
	dir string

	mu    sync.RWMutex
	index map[string]string // key -> filename

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFilePersistence creates a FilePersistence rooted at dir, creating it
// if necessary, and starts watching it for changes made by other
// processes.
func NewFilePersistence(dir string) (*FilePersistence, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("events: create persistence dir: %w", err)
	}

	p := &FilePersistence{dir: dir, index: make(map[string]string), done: make(chan struct{})}
	if err := p.rebuildIndex(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("events: create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("events: watch persistence dir: %w", err)
	}
	p.watcher = watcher

	go p.watchLoop()
	return p, nil
}

func (p *FilePersistence) filename(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + ".json"
}

func (p *FilePersistence) watchLoop() {
	for {
		select {
		case <-p.done:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) != 0 {
				if err := p.rebuildIndex(); err != nil {
					slog.Warn("events: failed to refresh persistence index", "error", err)
				}
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("events: persistence watcher error", "error", err)
		}
	}
}

func (p *FilePersistence) rebuildIndex() error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return fmt.Errorf("events: list persistence dir: %w", err)
	}

	index := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(p.dir, entry.Name()))
		if err != nil {
			continue
		}
		var rec fileRecord
		if json.Unmarshal(raw, &rec) != nil {
			continue
		}
		index[rec.Key] = entry.Name()
	}

	p.mu.Lock()
	p.index = index
	p.mu.Unlock()
	return nil
}

func (p *FilePersistence) Store(_ context.Context, key string, data []byte) error {
	rec := fileRecord{Key: key, Data: data, StoredAt: time.Now()}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("events: marshal record: %w", err)
	}

	name := p.filename(key)
	path := filepath.Join(p.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("events: write record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("events: commit record: %w", err)
	}

	p.mu.Lock()
	p.index[key] = name
	p.mu.Unlock()
	return nil
}

func (p *FilePersistence) Load(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	name, ok := p.index[key]
	p.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	raw, err := os.ReadFile(filepath.Join(p.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("events: read record: %w", err)
	}
	var rec fileRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("events: decode record: %w", err)
	}
	return rec.Data, true, nil
}

func (p *FilePersistence) QueryByPrefix(_ context.Context, prefix string) ([]Record, error) {
	p.mu.RLock()
	keys := make([]string, 0, len(p.index))
	for k := range p.index {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	p.mu.RUnlock()

	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		data, ok, err := p.Load(context.Background(), k)
		if err != nil || !ok {
			continue
		}
		out = append(out, Record{Key: k, Data: data})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (p *FilePersistence) Stats(_ context.Context) (PersistenceStats, error) {
	p.mu.RLock()
	keys := make([]string, 0, len(p.index))
	for k := range p.index {
		keys = append(keys, k)
	}
	p.mu.RUnlock()

	stats := PersistenceStats{RecordCount: len(keys)}
	for _, k := range keys {
		data, ok, err := p.Load(context.Background(), k)
		if err != nil || !ok {
			continue
		}
		stats.TotalBytes += int64(len(data))
	}
	return stats, nil
}

// Close stops the directory watcher.
func (p *FilePersistence) Close() error {
	close(p.done)
	return p.watcher.Close()
}
