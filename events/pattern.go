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

import "strings"

// MatchPattern reports whether eventType matches a glob-style,
// dot-separated pattern: "*" matches any single token, a literal token
// must match exactly, and the whole pattern must cover every token in
// eventType (no wildcard spans multiple tokens). A bare "*" matches
// everything, including multi-token event types.
func MatchPattern(pattern, eventType string) bool {
	if pattern == "*" {
		return true
	}

	patternTokens := strings.Split(pattern, ".")
	eventTokens := strings.Split(eventType, ".")
	if len(patternTokens) != len(eventTokens) {
		return false
	}
	for i, pt := range patternTokens {
		if pt == "*" {
			continue
		}
		if pt != eventTokens[i] {
			return false
		}
	}
	return true
}
