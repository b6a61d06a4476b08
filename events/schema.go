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
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaVersionChecked marks an event whose envelope the bus validates
// against eventSchema's required top-level fields before accepting it;
// the Payload itself is not validated. Events with any
// other (or empty) SchemaVersion publish unchecked, matching the
// teacher's default-permissive posture for dynamically-typed payloads.
const SchemaVersionChecked = "checked"

var eventSchema = reflectEventSchema()

func reflectEventSchema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&UniversalEvent{})
	schema.ID = "https://agentfabric.dev/schemas/universal_event.json"
	schema.Title = "UniversalEvent"
	schema.Description = "Envelope exchanged over the fabric's event bus."
	return schema
}

// EventSchema returns the JSON Schema every checked UniversalEvent is
// validated against, generated once at package init.
func EventSchema() *jsonschema.Schema {
	return eventSchema
}

// ValidationError reports that an event's shape didn't satisfy
// eventSchema's required top-level fields.
type ValidationError struct {
	EventID string
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("events: event %s missing required field(s) %v per schema", e.EventID, e.Missing)
}

// ValidateEvent checks event against eventSchema's required top-level
// properties. It round-trips the event through JSON rather than linking
// a full JSON Schema validator, since the fabric's own typed struct
// already enforces field types; what the schema adds here is a
// single source of truth for which fields a "checked" event must set.
// A required field that is absent, null, an empty string or the zero
// timestamp counts as missing.
func ValidateEvent(event *UniversalEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshaling event for validation: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("events: unmarshaling event for validation: %w", err)
	}

	var missing []string
	for _, name := range eventSchema.Required {
		v, ok := fields[name]
		switch string(v) {
		case `""`, "null", `"0001-01-01T00:00:00Z"`:
			ok = false
		}
		if !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{EventID: event.ID, Missing: missing}
	}
	return nil
}
