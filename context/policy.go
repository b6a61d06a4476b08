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

package context

import "strings"

// InheritancePolicy selects how a forked context's data map is populated
// from its parent.
type InheritancePolicy string

const (
	// PolicyInherit walks every parent field through the never-inherit and
	// validator gates (Conditional is not consulted) and writes it using
	// ConflictResolution.
	PolicyInherit InheritancePolicy = "inherit"

	// PolicyCopy copies only always-inherit and Copy-conditional fields.
	PolicyCopy InheritancePolicy = "copy"

	// PolicyShare copies nothing; reads fall through to the parent by
	// reference, under a cheap refcount.
	PolicyShare InheritancePolicy = "share"

	// PolicyIsolate propagates only always-inherit fields.
	PolicyIsolate InheritancePolicy = "isolate"
)

// ConflictResolution decides what happens when both a child write and an
// inherited value target the same field during Fork.
type ConflictResolution string

const (
	ConflictChildWins   ConflictResolution = "child_wins"
	ConflictParentWins  ConflictResolution = "parent_wins"
	ConflictDeepMerge   ConflictResolution = "deep_merge"
	ConflictKeepBothAsArray ConflictResolution = "keep_both_as_array"
)

// Transform rewrites a string-typed inherited value. Non-string values
// pass through Fork unchanged regardless of a configured Transform.
type Transform func(value string) string

// PrefixTransform returns a Transform that prepends prefix.
func PrefixTransform(prefix string) Transform {
	return func(value string) string { return prefix + value }
}

// SuffixTransform returns a Transform that appends suffix.
func SuffixTransform(suffix string) Transform {
	return func(value string) string { return value + suffix }
}

// Validator inspects a field name/value pair (and the policy driving the
// fork) before it is written into a child context. Returning false rejects
// the whole Fork with InheritanceValidationFailed.
type Validator func(field string, value any, policy InheritancePolicy) bool

// Rules is the inheritance-rules object fork consults. The zero value
// has no always-inherit, never-inherit or conditional fields, no
// transforms, no validators, and resolves conflicts as ConflictChildWins.
type Rules struct {
	// AlwaysInherit fields propagate under every policy except fields
	// also present in NeverInherit (which always wins).
	AlwaysInherit []string

	// NeverInherit fields never propagate, regardless of policy.
	NeverInherit []string

	// Conditional lists extra fields per policy (e.g.
	// Conditional["copy"] = []string{"trace_id"}). Only PolicyCopy
	// consults it; PolicyInherit propagates every non-NeverInherit field.
	Conditional map[InheritancePolicy][]string

	// Transforms maps a field name to a string transform applied when
	// the field is written into the child.
	Transforms map[string]Transform

	// Conflict picks how a field present in both parent-inherited data
	// and the child's own pre-seeded data is resolved.
	Conflict ConflictResolution

	// Validators run, in order, over every field the fork would write.
	// The first validator to reject a field aborts the fork.
	Validators []Validator
}

// DefaultRules mirrors the defaults spec.md §4.A calls out: conversation
// id, user id, session id, and security level always propagate; no field
// is blocked by default; conflicts favor the child's own value.
func DefaultRules() Rules {
	return Rules{
		AlwaysInherit: []string{"conversation_id", "user_id", "session_id", "security_level"},
		NeverInherit:  []string{},
		Conditional:   map[InheritancePolicy][]string{},
		Transforms:    map[string]Transform{},
		Conflict:      ConflictChildWins,
	}
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

// gate reports whether field should propagate into a child forked under
// policy, given r. NeverInherit always wins over AlwaysInherit.
func (r Rules) gate(field string, policy InheritancePolicy) bool {
	if containsField(r.NeverInherit, field) {
		return false
	}
	if containsField(r.AlwaysInherit, field) {
		return true
	}
	switch policy {
	case PolicyIsolate:
		return false
	case PolicyCopy:
		return containsField(r.Conditional[PolicyCopy], field)
	case PolicyInherit:
		// Inherit walks every parent field regardless of Conditional;
		// Conditional only gates PolicyCopy.
		return true
	case PolicyShare:
		return false // Share never copies; reads fall through instead
	default:
		return false
	}
}

// applyTransform rewrites string-typed values through a configured
// Transform; every other type, and fields with no configured transform,
// pass through unchanged.
func (r Rules) applyTransform(field string, value any) any {
	t, ok := r.Transforms[field]
	if !ok {
		return value
	}
	s, ok := value.(string)
	if !ok {
		return value
	}
	return t(s)
}

// resolve merges an inherited value with a pre-existing child value per
// the configured ConflictResolution.
func (r Rules) resolve(childHas bool, childValue, inheritedValue any) any {
	if !childHas {
		return inheritedValue
	}
	switch r.Conflict {
	case ConflictParentWins:
		return inheritedValue
	case ConflictDeepMerge:
		return deepMerge(childValue, inheritedValue)
	case ConflictKeepBothAsArray:
		return []any{childValue, inheritedValue}
	default: // ConflictChildWins
		return childValue
	}
}

func deepMerge(a, b any) any {
	am, aok := a.(map[string]any)
	bm, bok := b.(map[string]any)
	if !aok || !bok {
		return a
	}
	merged := make(map[string]any, len(am)+len(bm))
	for k, v := range bm {
		merged[k] = v
	}
	for k, v := range am {
		merged[k] = v
	}
	return merged
}

func validateField(validators []Validator, field string, value any, policy InheritancePolicy) bool {
	for _, v := range validators {
		if !v(field, value, policy) {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (p InheritancePolicy) String() string { return string(p) }

// ParsePolicy parses a case-insensitive policy name, defaulting to
// PolicyInherit for an unrecognized value.
func ParsePolicy(s string) InheritancePolicy {
	switch strings.ToLower(s) {
	case "copy":
		return PolicyCopy
	case "share":
		return PolicyShare
	case "isolate":
		return PolicyIsolate
	default:
		return PolicyInherit
	}
}
