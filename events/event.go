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

// Package events implements the fabric's event bus: a pattern-subscribed
// publish/subscribe system with a lossy broadcast channel, flow control,
// and optional persistence for replay and query.
package events

import (
	"time"

	"github.com/google/uuid"
)

// UniversalEvent is the single event envelope every publisher and
// subscriber on the bus exchanges.
type UniversalEvent struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Source        string         `json:"source"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Payload       map[string]any `json:"payload,omitempty"`

	// SchemaVersion opts an event into validation against EventSchema()
	// before Bus.Publish accepts it. Empty (the default) skips the check.
	SchemaVersion string `json:"schema_version,omitempty"`
}

// NewEvent creates a UniversalEvent of the given type from source, with a
// fresh ID and the current time.
func NewEvent(eventType, source string, payload map[string]any) *UniversalEvent {
	return &UniversalEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// WithCorrelationID sets the event's correlation id and returns it for
// chaining at the call site.
func (e *UniversalEvent) WithCorrelationID(id string) *UniversalEvent {
	e.CorrelationID = id
	return e
}

// PublishOutcome is the result publish() reports, per the bus's flow
// control policy.
type PublishOutcome string

const (
	Accepted   PublishOutcome = "accepted"
	RateLimited PublishOutcome = "rate_limited"
	Dropped    PublishOutcome = "dropped"
	Rejected   PublishOutcome = "rejected"
	Blocked    PublishOutcome = "blocked"
)

// PublishResult is what Bus.Publish returns: the outcome, plus a reason
// when the outcome is anything but Accepted.
type PublishResult struct {
	Outcome PublishOutcome
	Reason  string
}
