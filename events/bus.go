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
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/agentfabric/corefabric/metrics"
)

// BroadcastCapacity bounds the subscribe_all() channel. Beyond this many
// unconsumed events, new ones are dropped rather than queued.
const BroadcastCapacity = 10000

// Bus is the fabric's event bus: publishers call Publish, readers attach
// through Subscribe (pattern, lossless) or SubscribeAll (broadcast,
// lossy). Persistence is optional; when configured, every accepted
// publish is also offered to it, but a persistence failure never fails
// the publish itself.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	broadcast     chan *UniversalEvent
	closed        bool

	flow        *FlowController
	persistence Persistence
	metrics     *metrics.Registry
}

// Option customizes a new Bus.
type Option func(*Bus)

// WithFlowController installs a rate limiter ahead of the overflow
// check. Without this option the bus performs no rate limiting.
func WithFlowController(fc *FlowController) Option {
	return func(b *Bus) { b.flow = fc }
}

// WithPersistence installs a Persistence implementation events are
// offered to after a successful publish.
func WithPersistence(p Persistence) Option {
	return func(b *Bus) { b.persistence = p }
}

// WithMetrics installs a metrics.Registry the bus reports published,
// dropped and rejected event counters into.
func WithMetrics(reg *metrics.Registry) Option {
	return func(b *Bus) { b.metrics = reg }
}

// New creates a Bus with a capacity-bounded broadcast channel and no
// flow controller or persistence unless supplied via Option.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscriptions: make(map[string]*subscription),
		broadcast:     make(chan *UniversalEvent, BroadcastCapacity),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish offers event to every matching subscription and the broadcast
// channel, applying flow control before the overflow check. Publish
// never blocks indefinitely: pattern subscriptions queue losslessly in
// memory, and the broadcast channel drops on overflow.
func (b *Bus) Publish(ctx context.Context, event *UniversalEvent) PublishResult {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return PublishResult{Outcome: Rejected, Reason: "bus is shut down"}
	}

	if event.SchemaVersion == SchemaVersionChecked {
		if err := ValidateEvent(event); err != nil {
			if b.metrics != nil {
				b.metrics.EventsRejected.WithLabelValues("schema_validation").Inc()
			}
			return PublishResult{Outcome: Rejected, Reason: err.Error()}
		}
	}

	if b.flow != nil {
		outcome := b.flow.Reserve(event.Source)
		if outcome.Outcome != Accepted {
			return PublishResult{Outcome: outcome.Outcome, Reason: outcome.Reason}
		}
	}

	blocked := false
	select {
	case b.broadcast <- event:
	default:
		blocked = true
		if b.metrics != nil {
			b.metrics.EventsDropped.WithLabelValues("broadcast_full").Inc()
		}
	}

	if blocked && b.flow != nil {
		b.flow.Release(event.Source)
	}

	b.mu.RLock()
	for _, sub := range b.subscriptions {
		if MatchPattern(sub.pattern, event.Type) {
			sub.enqueue(event)
		}
	}
	b.mu.RUnlock()

	if b.persistence != nil {
		raw, err := json.Marshal(event)
		if err == nil {
			if err := b.persistence.Store(ctx, eventKey(event), raw); err != nil {
				slog.Warn("events: failed to persist event", "event_id", event.ID, "error", err)
			}
		}
	}

	if b.metrics != nil {
		b.metrics.EventsPublished.WithLabelValues(event.Type).Inc()
	}

	if blocked {
		return PublishResult{Outcome: Blocked, Reason: "broadcast channel at capacity"}
	}
	return PublishResult{Outcome: Accepted}
}

// Broadcast returns the lossy, capacity-bounded channel every published
// event is offered to regardless of subscription pattern.
func (b *Bus) Broadcast() <-chan *UniversalEvent {
	return b.broadcast
}

// Subscribe creates a lossless, pattern-matched consumer. Close the
// returned Consumer when done to stop it from retaining events in
// memory.
func (b *Bus) Subscribe(pattern string) *Consumer {
	sub := newSubscription(pattern)
	b.mu.Lock()
	b.subscriptions[sub.id] = sub
	b.mu.Unlock()
	return &Consumer{bus: b, sub: sub}
}

// SubscribeWithHandler attaches handler to every event matching pattern,
// running it on a dedicated goroutine so a panicking or slow handler
// never blocks the publisher or other subscribers.
func (b *Bus) SubscribeWithHandler(pattern string, handler func(*UniversalEvent)) *Consumer {
	c := b.Subscribe(pattern)
	go func() {
		for {
			event, ok := c.Next(context.Background())
			if !ok {
				return
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						slog.Error("events: handler panicked", "pattern", pattern, "recover", r)
					}
				}()
				handler(event)
			}()
		}
	}()
	return c
}

func (b *Bus) removeSubscription(id string) {
	b.mu.Lock()
	delete(b.subscriptions, id)
	b.mu.Unlock()
}

// QueryByPattern returns persisted events whose type matches pattern, in
// storage order. Returns an empty slice if no Persistence is configured.
func (b *Bus) QueryByPattern(ctx context.Context, pattern string) ([]*UniversalEvent, error) {
	if b.persistence == nil {
		return nil, nil
	}
	records, err := b.persistence.QueryByPrefix(ctx, "event:")
	if err != nil {
		return nil, err
	}
	return decodeMatching(records, func(e *UniversalEvent) bool { return MatchPattern(pattern, e.Type) })
}

// QueryByCorrelationID returns persisted events sharing correlationID, in
// storage order. Returns an empty slice if no Persistence is configured.
func (b *Bus) QueryByCorrelationID(ctx context.Context, correlationID string) ([]*UniversalEvent, error) {
	if b.persistence == nil {
		return nil, nil
	}
	records, err := b.persistence.QueryByPrefix(ctx, "event:"+correlationID+":")
	if err != nil {
		return nil, err
	}
	return decodeMatching(records, func(*UniversalEvent) bool { return true })
}

// StorageStats reports the underlying Persistence's aggregate stats.
// Returns the zero value if no Persistence is configured.
func (b *Bus) StorageStats(ctx context.Context) (PersistenceStats, error) {
	if b.persistence == nil {
		return PersistenceStats{}, nil
	}
	return b.persistence.Stats(ctx)
}

func decodeMatching(records []Record, keep func(*UniversalEvent) bool) ([]*UniversalEvent, error) {
	out := make([]*UniversalEvent, 0, len(records))
	for _, r := range records {
		var e UniversalEvent
		if err := json.Unmarshal(r.Data, &e); err != nil {
			continue
		}
		if keep(&e) {
			out = append(out, &e)
		}
	}
	return out, nil
}

// Shutdown marks the bus closed; subsequent Publish calls return
// Rejected, and every outstanding Consumer is woken: it still receives
// the events already queued for it, then ok=false.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	b.closed = true
	subs := make([]*subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.closeForShutdown()
	}
}

// subscription is a lossless, pattern-matched event queue. Events
// accumulate in an unbounded slice guarded by mu/cond so Publish never
// blocks on a slow Consumer; Next drains the slice in FIFO order.
type subscription struct {
	id      string
	pattern string

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*UniversalEvent
	closed bool
}

func newSubscription(pattern string) *subscription {
	s := &subscription{id: uuid.NewString(), pattern: pattern}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *subscription) enqueue(event *UniversalEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, event)
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *subscription) closeForShutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// next blocks until an event is queued, the subscription is closed for
// shutdown, or ctx is done.
func (s *subscription) next(ctx context.Context) (*UniversalEvent, bool) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.cond.Broadcast()
		case <-done:
		}
	}()
	defer close(done)

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		if ctx.Err() != nil {
			return nil, false
		}
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return nil, false
	}
	event := s.queue[0]
	s.queue = s.queue[1:]
	return event, true
}

// Consumer is the handle Subscribe returns.
type Consumer struct {
	bus *Bus
	sub *subscription
}

// Next blocks for the next matching event. An event already queued is
// returned even after ctx is done or the bus has shut down; with nothing
// queued, Next returns ok=false in those cases.
func (c *Consumer) Next(ctx context.Context) (*UniversalEvent, bool) {
	return c.sub.next(ctx)
}

// Pattern returns the pattern this consumer was subscribed with.
func (c *Consumer) Pattern() string { return c.sub.pattern }

// Close detaches the consumer from the bus.
func (c *Consumer) Close() {
	c.bus.removeSubscription(c.sub.id)
	c.sub.closeForShutdown()
}
