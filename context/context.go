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

// Package context implements the fabric's ExecutionContext: a forkable,
// scoped key/value bag that flows from a workflow down through its steps
// and from a hook point into the hooks it invokes. Every fork picks an
// InheritancePolicy that decides how much of the parent's data the child
// starts with, and Rules decides field-by-field what that means.
package context

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultMaxDepth bounds how many Fork calls a chain of contexts may
// accumulate before ErrInheritanceDepthExceeded is returned.
const DefaultMaxDepth = 10

// ExecutionContext is a scoped, forkable key/value bag. The zero value is
// not usable; construct one with New.
type ExecutionContext struct {
	mu sync.RWMutex

	id    string
	scope string
	depth int

	maxDepth int
	policy   InheritancePolicy
	rules    Rules

	data   map[string]any
	parent *ExecutionContext

	// shared holds a refcount on parent, held only when policy ==
	// PolicyShare. Close decrements it; the parent is never closed by a
	// child, only inspected.
	shared *atomic.Int64

	closed bool
}

// Option customizes a new root ExecutionContext.
type Option func(*ExecutionContext)

// WithMaxDepth overrides DefaultMaxDepth for a root context and everything
// forked from it.
func WithMaxDepth(depth int) Option {
	return func(c *ExecutionContext) { c.maxDepth = depth }
}

// WithRules overrides DefaultRules for a root context and everything
// forked from it.
func WithRules(rules Rules) Option {
	return func(c *ExecutionContext) { c.rules = rules }
}

// New creates a root ExecutionContext scoped to scope, with depth 0.
func New(scope string, opts ...Option) *ExecutionContext {
	c := &ExecutionContext{
		id:       uuid.NewString(),
		scope:    scope,
		depth:    0,
		maxDepth: DefaultMaxDepth,
		policy:   PolicyInherit,
		rules:    DefaultRules(),
		data:     make(map[string]any),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the context's unique identifier.
func (c *ExecutionContext) ID() string { return c.id }

// Scope returns the name the context was forked or created with.
func (c *ExecutionContext) Scope() string { return c.scope }

// Depth returns how many Fork calls separate this context from its root.
func (c *ExecutionContext) Depth() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.depth
}

// Policy returns the InheritancePolicy this context was forked under (or
// PolicyInherit for a root context).
func (c *ExecutionContext) Policy() InheritancePolicy { return c.policy }

// Fork creates a child ExecutionContext scoped to childScope, populated
// from c's data according to policy and c's inheritance Rules. It returns
// DepthExceededError if the child's depth would exceed maxDepth, and
// ValidationFailedError if a configured Validator rejects a field.
func (c *ExecutionContext) Fork(childScope string, policy InheritancePolicy) (*ExecutionContext, error) {
	c.mu.RLock()
	depth := c.depth
	maxDepth := c.maxDepth
	rules := c.rules
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		return nil, NewContextError(c.id, "Fork", "context is closed", nil)
	}

	childDepth := depth + 1
	if childDepth > maxDepth {
		return nil, DepthExceededError(c.id, childDepth, maxDepth)
	}

	child := &ExecutionContext{
		id:       uuid.NewString(),
		scope:    childScope,
		depth:    childDepth,
		maxDepth: maxDepth,
		policy:   policy,
		rules:    rules,
		data:     make(map[string]any),
	}

	if policy == PolicyShare {
		ref := c.shareRef()
		child.parent = c
		child.shared = ref
		ref.Add(1)
		return child, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for field, value := range c.data {
		if !rules.gate(field, policy) {
			continue
		}
		if !validateField(rules.Validators, field, value, policy) {
			return nil, ValidationFailedError(c.id, field)
		}
		transformed := rules.applyTransform(field, value)
		existing, has := child.data[field]
		child.data[field] = rules.resolve(has, existing, transformed)
	}

	return child, nil
}

// shareRef lazily allocates the refcount a Share-policy child tracks
// against c. Called with no lock held by the caller by design: Fork only
// reads c.shared under its own synchronization via sync/atomic.
func (c *ExecutionContext) shareRef() *atomic.Int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shared == nil {
		c.shared = &atomic.Int64{}
	}
	return c.shared
}

// Get reads a field, falling through to the parent when this context was
// forked with PolicyShare and does not hold its own copy of the field.
func (c *ExecutionContext) Get(key string) (any, bool) {
	c.mu.RLock()
	v, ok := c.data[key]
	parent := c.parent
	policy := c.policy
	c.mu.RUnlock()

	if ok {
		return v, true
	}
	if policy == PolicyShare && parent != nil {
		return parent.Get(key)
	}
	return nil, false
}

// Set writes a field directly into this context's own data map, never the
// parent's, even under PolicyShare.
func (c *ExecutionContext) Set(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return NewContextError(c.id, "Set", "context is closed", nil)
	}
	c.data[key] = value
	return nil
}

// Delete removes a field from this context's own data map.
func (c *ExecutionContext) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Keys returns the field names held directly by this context (not the
// parent's, even under PolicyShare).
func (c *ExecutionContext) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns a shallow copy of this context's own data, merged over
// the parent chain's data when forked under PolicyShare (child fields win).
func (c *ExecutionContext) Snapshot() map[string]any {
	c.mu.RLock()
	parent := c.parent
	policy := c.policy
	own := make(map[string]any, len(c.data))
	for k, v := range c.data {
		own[k] = v
	}
	c.mu.RUnlock()

	if policy != PolicyShare || parent == nil {
		return own
	}

	merged := parent.Snapshot()
	for k, v := range own {
		merged[k] = v
	}
	return merged
}

// Close releases this context's hold on a shared parent, if any. It is
// safe to call more than once; only the first call decrements the
// refcount. Close does not recursively close the parent: the parent's
// lifetime is managed by whoever created it.
func (c *ExecutionContext) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.shared != nil {
		c.shared.Add(-1)
	}
}

// RefCount reports how many Share-policy children currently hold a
// reference to c. Returns 0 for a context that has never been forked
// under PolicyShare.
func (c *ExecutionContext) RefCount() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.shared == nil {
		return 0
	}
	return c.shared.Load()
}
