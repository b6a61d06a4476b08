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

// Package backoff computes retry delays shared by the workflow engine's
// Retry error strategy and the lifecycle machine's auto-recovery, so the
// two don't carry two implementations of the same linear/exponential
// shape.
package backoff

import "time"

// Duration returns the delay before retry attempt number attempt
// (1-indexed: attempt 1 is the delay before the second try). With
// exponential false it is always base; with exponential true it
// doubles on every attempt after the first.
func Duration(base time.Duration, attempt int, exponential bool) time.Duration {
	if !exponential {
		return base
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
