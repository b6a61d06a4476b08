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

// Package workflow implements the four composable execution patterns —
// Sequential, Conditional, Loop, and Parallel — that drive a workflow's
// steps through the hook executor and event bus.
package workflow

import "time"

// StepType selects what a WorkflowStep's body invokes.
type StepType string

const (
	StepTool     StepType = "tool"
	StepAgent    StepType = "agent"
	StepCustom   StepType = "custom"
	StepWorkflow StepType = "workflow"
)

// WorkflowStep is one unit of work in any pattern. Name identifies the
// tool/agent/custom function/nested workflow to invoke; Params are its
// input, subject to $variable substitution inside Loop.
type WorkflowStep struct {
	ID      string         `yaml:"id"`
	Name    string         `yaml:"name"`
	Type    StepType       `yaml:"type"`
	Params  map[string]any `yaml:"params,omitempty"`
	Timeout time.Duration  `yaml:"timeout,omitempty"`
}

// ErrorStrategyKind selects how a pattern reacts to a failing step.
type ErrorStrategyKind string

const (
	FailFast        ErrorStrategyKind = "fail_fast"
	ContinueOnError ErrorStrategyKind = "continue_on_error"
	Retry           ErrorStrategyKind = "retry"
)

// ErrorStrategy configures a pattern's failure handling. MaxAttempts,
// BackoffMs, and Exponential only apply when Kind is Retry; the retry
// budget is per step.
type ErrorStrategy struct {
	Kind        ErrorStrategyKind `yaml:"kind"`
	MaxAttempts int               `yaml:"max_attempts,omitempty"`
	BackoffMs   int64             `yaml:"backoff_ms,omitempty"`
	Exponential bool              `yaml:"exponential,omitempty"`
}

// StepResult is what running one WorkflowStep produced.
type StepResult struct {
	StepID   string
	Success  bool
	Output   any
	Error    string
	Attempts int
	Duration time.Duration
}

// WorkflowResult is the common output shape every pattern returns.
type WorkflowResult struct {
	Success          bool
	StepResults      []StepResult
	Duration         time.Duration
	StepsCompleted   int
	Error            string
	BreakReason      string // Loop only
	StoppedEarly     bool   // Parallel only
	LoopMetadata     *LoopMetadata
	BranchResults    []BranchResult // Parallel only
	BranchSelected   string         // Conditional only
}

// LoopMetadata records the bookkeeping §4.E.3's aggregation block needs
// regardless of which AggregationMode produced WorkflowResult.StepResults.
type LoopMetadata struct {
	TotalIterations     int
	CompletedIterations int
	Duration            time.Duration
	BreakReason         string
}

// BranchResult is one Parallel branch's outcome.
type BranchResult struct {
	Name        string
	Required    bool
	Success     bool
	Error       string
	StepResults []StepResult
}

// BranchCounts tallies how many of results succeeded and failed, for
// a Parallel WorkflowResult's BranchResults.
func BranchCounts(results []BranchResult) (successful, failed int) {
	for _, r := range results {
		if r.Success {
			successful++
		} else {
			failed++
		}
	}
	return successful, failed
}

// AggregationKind selects how Loop combines per-iteration outputs into
// WorkflowResult.StepResults.
type AggregationKind string

const (
	CollectAll AggregationKind = "collect_all"
	LastOnly   AggregationKind = "last_only"
	FirstN     AggregationKind = "first_n"
	LastN      AggregationKind = "last_n"
)

// Aggregation configures Loop's output-combination strategy; N only
// applies to FirstN/LastN.
type Aggregation struct {
	Kind AggregationKind
	N    int
}

// ConditionalBranch pairs a predicate with the steps that run when it is
// the first branch to evaluate true. A trailing else branch uses a
// predicate that always returns true.
type ConditionalBranch struct {
	Name      string
	Predicate func(vars map[string]any) bool
	Steps     []WorkflowStep
}

// ParallelBranch is an independently scheduled step list within a
// Parallel pattern.
type ParallelBranch struct {
	Name     string         `yaml:"name"`
	Required bool           `yaml:"required,omitempty"`
	Timeout  time.Duration  `yaml:"timeout,omitempty"`
	Steps    []WorkflowStep `yaml:"steps"`
}
