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

package workflow

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// SequentialDefinition is the YAML-loadable shape of a Sequential
// pattern: a literal a caller can read from a file, a database row, or
// any other source, since the engine itself does no file I/O.
type SequentialDefinition struct {
	Steps         []WorkflowStep `yaml:"steps"`
	ErrorStrategy ErrorStrategy  `yaml:"error_strategy"`
	TimeoutMs     int64          `yaml:"timeout_ms,omitempty"`
}

// ParallelDefinition is the YAML-loadable shape of a Parallel pattern.
type ParallelDefinition struct {
	Branches                  []ParallelBranch `yaml:"branches"`
	MaxConcurrency            int              `yaml:"max_concurrency,omitempty"`
	FailFast                  bool             `yaml:"fail_fast,omitempty"`
	ContinueOnOptionalFailure bool             `yaml:"continue_on_optional_failure,omitempty"`
	ErrorStrategy             ErrorStrategy    `yaml:"error_strategy"`
	TimeoutMs                 int64            `yaml:"timeout_ms,omitempty"`
}

// ParseSequentialDefinition unmarshals a YAML document into a
// SequentialDefinition.
func ParseSequentialDefinition(data []byte) (*SequentialDefinition, error) {
	var def SequentialDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("workflow: parsing sequential definition: %w", err)
	}
	return &def, nil
}

// ToYAML serializes a SequentialDefinition back to YAML, the inverse
// of ParseSequentialDefinition.
func (d *SequentialDefinition) ToYAML() ([]byte, error) {
	return yaml.Marshal(d)
}

// Build constructs a runnable Sequential from the definition and a
// caller-supplied runner (the runner carries the hook executor, bus,
// and tool/agent resolver, none of which are YAML-serializable).
func (d *SequentialDefinition) Build(runner *StepRunner) *Sequential {
	return NewSequential(runner, d.Steps, d.ErrorStrategy, time.Duration(d.TimeoutMs)*time.Millisecond)
}

// ParseParallelDefinition unmarshals a YAML document into a
// ParallelDefinition.
func ParseParallelDefinition(data []byte) (*ParallelDefinition, error) {
	var def ParallelDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("workflow: parsing parallel definition: %w", err)
	}
	return &def, nil
}

// ToYAML serializes a ParallelDefinition back to YAML.
func (d *ParallelDefinition) ToYAML() ([]byte, error) {
	return yaml.Marshal(d)
}

// Build constructs a runnable Parallel from the definition.
func (d *ParallelDefinition) Build(runner *StepRunner) *Parallel {
	return NewParallel(runner, d.Branches, d.MaxConcurrency, d.FailFast, d.ContinueOnOptionalFailure,
		d.ErrorStrategy, time.Duration(d.TimeoutMs)*time.Millisecond)
}
