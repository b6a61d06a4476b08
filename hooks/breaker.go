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
	"sync"
	"time"
)

// BreakerState is the circuit breaker's current position in its
// Closed -> Open -> Half-Open cycle.
type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerHalfOpen:
		return "half_open"
	case BreakerOpen:
		return "open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a CircuitBreaker's trip/recovery thresholds.
type BreakerConfig struct {
	FailureThreshold  int
	SlowCallThreshold int
	SlowCallDuration  time.Duration
	CoolDown          time.Duration
}

// DefaultBreakerConfig matches the defaults the executor falls back to
// when a hook has no BreakerOverride.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:  5,
		SlowCallThreshold: 5,
		SlowCallDuration:  time.Second,
		CoolDown:          30 * time.Second,
	}
}

// CircuitBreaker is a small, self-contained state machine guarding one
// hook name: consecutive failures or slow calls trip it open, a
// cool-down admits one half-open probe, and that probe's outcome decides
// whether it closes again or reopens.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu                sync.Mutex
	state             BreakerState
	consecutiveFails  int
	slowCallsInWindow int
	windowStart       time.Time
	openedAt          time.Time
}

// NewCircuitBreaker creates a CircuitBreaker in the Closed state.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: BreakerClosed, windowStart: time.Now()}
}

// Allow reports whether a call should be attempted right now. Once the
// cool-down has elapsed it advances Open to Half-Open and admits that
// one call as the probe; further calls are refused until the probe's
// outcome is recorded.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerHalfOpen:
		return false
	case BreakerOpen:
		if time.Since(b.openedAt) >= b.cfg.CoolDown {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess reports a successful call, closing the breaker if it was
// half-open and resetting failure/slow-call counters.
func (b *CircuitBreaker) RecordSuccess(duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.reset()
		return
	}
	b.consecutiveFails = 0
	b.recordSlowCall(duration)
}

// RecordFailure reports a failed call. In Half-Open, any failure reopens
// the breaker and resets its cool-down; in Closed, consecutive failures
// trip it open at FailureThreshold.
func (b *CircuitBreaker) RecordFailure(duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.trip()
		return
	}

	b.consecutiveFails++
	b.recordSlowCall(duration)
	if b.consecutiveFails >= b.cfg.FailureThreshold {
		b.trip()
	}
}

// recordSlowCall counts a call whose duration met or exceeded
// SlowCallDuration, tripping the breaker once SlowCallThreshold such
// calls have accumulated since the last trip or reset. Called with b.mu
// held.
func (b *CircuitBreaker) recordSlowCall(duration time.Duration) {
	if duration < b.cfg.SlowCallDuration {
		return
	}
	b.slowCallsInWindow++
	if b.slowCallsInWindow >= b.cfg.SlowCallThreshold {
		b.trip()
	}
}

// trip moves the breaker to Open and starts its cool-down. Called with
// b.mu held.
func (b *CircuitBreaker) trip() {
	b.state = BreakerOpen
	b.openedAt = time.Now()
	b.consecutiveFails = 0
	b.slowCallsInWindow = 0
}

// reset moves the breaker to Closed and clears its counters. Called with
// b.mu held.
func (b *CircuitBreaker) reset() {
	b.state = BreakerClosed
	b.consecutiveFails = 0
	b.slowCallsInWindow = 0
	b.windowStart = time.Now()
}

// State returns the breaker's current state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to Closed, clearing its counters. Used
// by an operator to clear a stuck-open breaker without waiting out its
// cool-down.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
}
