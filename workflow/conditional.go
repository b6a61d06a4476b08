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

// Conditional picks the first branch whose predicate evaluates true
// against the current variables and runs its steps as a Sequential;
// remaining branches are skipped. A trailing else branch should supply
// a predicate that always returns true.
type Conditional struct {
	runner   *StepRunner
	branches []ConditionalBranch
	strategy ErrorStrategy
	timeout  time.Duration
}

// NewConditional creates a Conditional pattern over branches.
func NewConditional(runner *StepRunner, branches []ConditionalBranch, strategy ErrorStrategy, timeout time.Duration) *Conditional {
	return &Conditional{runner: runner, branches: branches, strategy: strategy, timeout: timeout}
}

// Run selects and executes the first matching branch.
func (c *Conditional) Run(ctx context.Context, vars map[string]any, correlationID string) WorkflowResult {
	start := time.Now()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.runner.EmitPatternHook(ctx, hooks.PointWorkflowStart, correlationID, vars, map[string]any{"pattern": "conditional"})

	selCtx := &hooks.HookContext{Point: hooks.PointBranchSelection, CorrelationID: correlationID, Data: map[string]any{}}
	_, _ = c.runner.executor.RunChain(ctx, selCtx)

	for _, branch := range c.branches {
		if !branch.Predicate(vars) {
			continue
		}
		// Sequential.Run emits its own PointWorkflowStart/Complete pair for
		// the branch body; the conditional's own pair above and below
		// brackets branch selection itself.
		seq := NewSequential(c.runner, branch.Steps, c.strategy, 0)
		result := seq.Run(ctx, vars, correlationID)
		result.Duration = time.Since(start)
		result.BranchSelected = branch.Name
		c.runner.EmitPatternHook(ctx, hooks.PointWorkflowComplete, correlationID, vars, map[string]any{
			"pattern": "conditional", "success": result.Success, "branch": branch.Name,
		})
		return result
	}

	result := WorkflowResult{Success: true, Duration: time.Since(start)}
	c.runner.EmitPatternHook(ctx, hooks.PointWorkflowComplete, correlationID, vars, map[string]any{
		"pattern": "conditional", "success": true, "branch": "",
	})
	return result
}
