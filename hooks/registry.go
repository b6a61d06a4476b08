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
	"sort"
	"sync"

	"github.com/agentfabric/corefabric/registry"
)

// entry pairs a Hook with its registration sequence number, so hooks of
// equal priority keep registration order (a stable sort by priority
// alone would not guarantee that across re-registrations).
type entry struct {
	hook Hook
	seq  int
}

// Registry maps a HookPoint to an ordered list of hooks: registration
// order unless a hook declares a non-zero Priority, in which case
// higher priority runs first. Registering the same (name, point) pair
// again replaces the prior hook in place rather than erroring.
type Registry struct {
	mu     sync.Mutex
	points *registry.BaseRegistry[[]entry]
	seq    int
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{points: registry.NewBaseRegistry[[]entry]()}
}

// Register attaches hook to point. If a hook with the same name is
// already registered at point, it is replaced and keeps its original
// registration sequence, so it keeps its place among hooks of equal
// priority; otherwise hook is appended. Either way the list is then
// resorted by priority, so a replacement with a different priority moves.
func (r *Registry) Register(point HookPoint, hook Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := hook.Metadata().Name
	list, _ := r.points.Get(point.String())
	list = append([]entry(nil), list...)

	replaced := false
	for i, e := range list {
		if e.hook.Metadata().Name == name {
			list[i] = entry{hook: hook, seq: e.seq}
			replaced = true
			break
		}
	}
	if !replaced {
		r.seq++
		list = append(list, entry{hook: hook, seq: r.seq})
	}

	sort.SliceStable(list, func(i, j int) bool {
		pi, pj := list[i].hook.Metadata().Priority, list[j].hook.Metadata().Priority
		if pi != pj {
			return pi > pj
		}
		return list[i].seq < list[j].seq
	})

	_ = r.points.Upsert(point.String(), list)
}

// List returns the hooks registered for point, in execution order. The
// returned slice is a snapshot; later Register calls do not mutate it.
func (r *Registry) List(point HookPoint) []Hook {
	r.mu.Lock()
	list, _ := r.points.Get(point.String())
	r.mu.Unlock()

	hooks := make([]Hook, len(list))
	for i, e := range list {
		hooks[i] = e.hook
	}
	return hooks
}

// Unregister removes the hook named name from point, if present.
func (r *Registry) Unregister(point HookPoint, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, ok := r.points.Get(point.String())
	if !ok {
		return
	}
	filtered := make([]entry, 0, len(list))
	for _, e := range list {
		if e.hook.Metadata().Name != name {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) == 0 {
		_ = r.points.Remove(point.String())
		return
	}
	_ = r.points.Upsert(point.String(), filtered)
}

// Points returns every HookPoint with at least one registered hook.
func (r *Registry) Points() []HookPoint {
	keys := r.points.Keys()
	points := make([]HookPoint, len(keys))
	for i, k := range keys {
		points[i] = HookPoint(k)
	}
	return points
}
