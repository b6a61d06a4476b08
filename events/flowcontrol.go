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
	"sync"
	"time"
)

// FlowControlOutcome is the verdict FlowController.Reserve reaches before
// the bus ever attempts to enqueue an event.
type FlowControlOutcome struct {
	Outcome PublishOutcome
	Reason  string
}

// accepted reports FlowControlOutcome{Accepted, ""} for callers that
// don't need to build the struct literal at every call site.
func accepted() FlowControlOutcome { return FlowControlOutcome{Outcome: Accepted} }

// FlowController enforces a per-source rate limit ahead of the bus's
// overflow check. It is a fixed-window counter, the same shape as the
// rate limiter's windowed usage tracking, reimplemented here for a
// single per-publish check rather than a multi-limit-rule budget.
type FlowController struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	counters map[string]*windowCounter
}

type windowCounter struct {
	count     int
	windowEnd time.Time
}

// NewFlowController creates a FlowController allowing up to limit
// Reserve calls per source within window. A non-positive limit disables
// rate limiting entirely (every Reserve is accepted).
func NewFlowController(limit int, window time.Duration) *FlowController {
	return &FlowController{
		limit:    limit,
		window:   window,
		counters: make(map[string]*windowCounter),
	}
}

// Reserve checks and records one unit of rate-limit usage for source. It
// must be called before the bus's overflow check, per the bus's required
// ordering; Release undoes the reservation if a later step blocks.
func (f *FlowController) Reserve(source string) FlowControlOutcome {
	if f.limit <= 0 {
		return accepted()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	c, ok := f.counters[source]
	if !ok || c.windowEnd.Before(now) {
		c = &windowCounter{count: 0, windowEnd: now.Add(f.window)}
		f.counters[source] = c
	}

	if c.count >= f.limit {
		return FlowControlOutcome{Outcome: RateLimited, Reason: "rate limit exceeded for source " + source}
	}
	c.count++
	return accepted()
}

// Release gives back one unit of rate-limit usage for source. The bus
// calls this when a Reserve succeeded but a subsequent overflow check
// resulted in Blocked, so a blocked publish never permanently consumes
// quota.
func (f *FlowController) Release(source string) {
	if f.limit <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.counters[source]; ok && c.count > 0 {
		c.count--
	}
}
