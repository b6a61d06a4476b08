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

package state

import "strings"

// ScopeTag names one of the four namespaces a StateEntry can live in.
type ScopeTag string

const (
	ScopeGlobal ScopeTag = "global"
	ScopeSession ScopeTag = "session"
	ScopeAgent  ScopeTag = "agent"
	ScopeCustom ScopeTag = "custom"
)

// Scope is a tagged namespace for state entries: Global carries no
// discriminator, Session/Agent/Custom each carry one (a session id, agent
// id, or caller-chosen tag respectively).
type Scope struct {
	Tag           ScopeTag
	Discriminator string
}

// Global is the shared, un-scoped namespace.
func Global() Scope { return Scope{Tag: ScopeGlobal} }

// Session scopes entries to a single conversation/session id.
func Session(id string) Scope { return Scope{Tag: ScopeSession, Discriminator: id} }

// Agent scopes entries to a single agent instance id.
func Agent(id string) Scope { return Scope{Tag: ScopeAgent, Discriminator: id} }

// Custom scopes entries to a caller-chosen namespace tag.
func Custom(tag string) Scope { return Scope{Tag: ScopeCustom, Discriminator: tag} }

// StorageKey renders the canonical on-disk key
// "{scope-tag}:{scope-discriminator?}:{user-key}" for key within s.
func (s Scope) StorageKey(key string) string {
	if s.Tag == ScopeGlobal {
		return string(ScopeGlobal) + "::" + key
	}
	return string(s.Tag) + ":" + s.Discriminator + ":" + key
}

// Prefix renders the storage-key prefix that every entry in s shares,
// suitable for ListKeys/Clear range scans.
func (s Scope) Prefix() string {
	if s.Tag == ScopeGlobal {
		return string(ScopeGlobal) + "::"
	}
	return string(s.Tag) + ":" + s.Discriminator + ":"
}

// ParseStorageKey recovers (scope, user-key) from a canonical storage key.
// It returns a ValidationError if storageKey does not have the
// tag:discriminator:key shape.
func ParseStorageKey(storageKey string) (Scope, string, error) {
	parts := strings.SplitN(storageKey, ":", 3)
	if len(parts) != 3 {
		return Scope{}, "", &ValidationError{Detail: "malformed storage key: " + storageKey}
	}
	tag := ScopeTag(parts[0])
	switch tag {
	case ScopeGlobal, ScopeSession, ScopeAgent, ScopeCustom:
	default:
		return Scope{}, "", &ValidationError{Detail: "unknown scope tag in storage key: " + parts[0]}
	}
	return Scope{Tag: tag, Discriminator: parts[1]}, parts[2], nil
}
