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
	"context"
	"time"

	"github.com/agentfabric/corefabric/hooks"
)

// Sequential runs steps in declaration order, reacting to a failing
// step per strategy: FailFast aborts and returns the first error,
// ContinueOnError records it and proceeds, Retry re-attempts the
// current step with backoff before giving up.
type Sequential struct {
	runner   *StepRunner
	steps    []WorkflowStep
	strategy ErrorStrategy
	timeout  time.Duration
}

// NewSequential creates a Sequential pattern over steps.
func NewSequential(runner *StepRunner, steps []WorkflowStep, strategy ErrorStrategy, timeout time.Duration) *Sequential {
	return &Sequential{runner: runner, steps: steps, strategy: strategy, timeout: timeout}
}

// Run executes every step in order under correlationID, returning a
// WorkflowResult once all steps have run (or the workflow timeout or a
// FailFast abort ends it early).
func (s *Sequential) Run(ctx context.Context, vars map[string]any, correlationID string) WorkflowResult {
	start := time.Now()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.runner.EmitPatternHook(ctx, hooks.PointWorkflowStart, correlationID, vars, map[string]any{"pattern": "sequential"})
	finish := func(result WorkflowResult) WorkflowResult {
		s.runner.EmitPatternHook(ctx, hooks.PointWorkflowComplete, correlationID, vars, map[string]any{
			"pattern": "sequential", "success": result.Success, "error": result.Error,
		})
		return result
	}

	results := make([]StepResult, 0, len(s.steps))
	for _, step := range s.steps {
		if err := ctx.Err(); err != nil {
			return finish(WorkflowResult{
				Success: false, StepResults: results, Duration: time.Since(start),
				StepsCompleted: len(results), Error: "workflow timeout exceeded",
			})
		}

		result := s.runner.RunWithStrategy(ctx, step, s.strategy, vars, correlationID, "sequential")
		results = append(results, result)

		if !result.Success && s.strategy.Kind == FailFast {
			return finish(WorkflowResult{
				Success: false, StepResults: results, Duration: time.Since(start),
				StepsCompleted: len(results), Error: result.Error,
			})
		}
	}

	success := true
	var firstErr string
	for _, r := range results {
		if !r.Success {
			success = false
			if firstErr == "" {
				firstErr = r.Error
			}
		}
	}

	return finish(WorkflowResult{
		Success: success, StepResults: results, Duration: time.Since(start),
		StepsCompleted: len(results), Error: firstErr,
	})
}
