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
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/agentfabric/corefabric/hooks"
)

// Parallel runs a fixed set of branches concurrently, bounded by
// MaxConcurrency, each branch's steps running sequentially and failing
// on its first failing step.
type Parallel struct {
	runner                   *StepRunner
	branches                 []ParallelBranch
	maxConcurrency           int64
	failFast                 bool
	continueOnOptionalFailure bool
	strategy                 ErrorStrategy
	timeout                  time.Duration
}

// NewParallel creates a Parallel pattern. maxConcurrency is clamped to
// at least 1.
func NewParallel(runner *StepRunner, branches []ParallelBranch, maxConcurrency int, failFast, continueOnOptionalFailure bool, strategy ErrorStrategy, timeout time.Duration) *Parallel {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Parallel{
		runner: runner, branches: branches, maxConcurrency: int64(maxConcurrency),
		failFast: failFast, continueOnOptionalFailure: continueOnOptionalFailure,
		strategy: strategy, timeout: timeout,
	}
}

// Run starts up to MaxConcurrency branches at a time, via an
// errgroup.Group supervising a semaphore.Weighted-bounded pool, exactly
// as the teacher's runParallel supervises sub-agents — generalized here
// to branches of workflow steps instead of agent invocations.
func (p *Parallel) Run(ctx context.Context, vars map[string]any, correlationID string) WorkflowResult {
	start := time.Now()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	p.runner.EmitPatternHook(ctx, hooks.PointWorkflowStart, correlationID, vars, map[string]any{"pattern": "parallel"})

	group, groupCtx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(p.maxConcurrency)

	results := make([]BranchResult, len(p.branches))
	var mu sync.Mutex
	stoppedEarly := false

	p.runner.EmitPatternHook(ctx, hooks.PointParallelFork, correlationID, vars, map[string]any{"branch_count": len(p.branches)})

	for i, branch := range p.branches {
		i, branch := i, branch
		group.Go(func() error {
			if err := sem.Acquire(groupCtx, 1); err != nil {
				mu.Lock()
				results[i] = BranchResult{Name: branch.Name, Required: branch.Required, Success: false, Error: err.Error()}
				mu.Unlock()
				return nil
			}
			defer sem.Release(1)

			branchCtx := groupCtx
			if branch.Timeout > 0 {
				var cancel context.CancelFunc
				branchCtx, cancel = context.WithTimeout(groupCtx, branch.Timeout)
				defer cancel()
			}

			result := p.runBranch(branchCtx, branch, vars, correlationID)

			mu.Lock()
			results[i] = result
			mu.Unlock()

			if !result.Success && branch.Required && p.failFast {
				mu.Lock()
				stoppedEarly = true
				mu.Unlock()
				return errBranchFailed
			}
			return nil
		})
	}

	_ = group.Wait()

	p.runner.EmitPatternHook(ctx, hooks.PointParallelJoin, correlationID, vars, map[string]any{"branch_count": len(p.branches)})

	mu.Lock()
	defer mu.Unlock()

	success := true
	var firstErr string
	for _, r := range results {
		if r.Success {
			continue
		}
		if !r.Required && p.continueOnOptionalFailure {
			continue
		}
		success = false
		if firstErr == "" {
			firstErr = r.Error
		}
	}
	if ctx.Err() != nil {
		stoppedEarly = true
		success = false
		if firstErr == "" {
			firstErr = ctx.Err().Error()
		}
	}

	p.runner.EmitPatternHook(ctx, hooks.PointWorkflowComplete, correlationID, vars, map[string]any{
		"pattern": "parallel", "success": success, "error": firstErr,
	})

	return WorkflowResult{
		Success: success, Duration: time.Since(start), Error: firstErr,
		StoppedEarly: stoppedEarly, BranchResults: results,
	}
}

func (p *Parallel) runBranch(ctx context.Context, branch ParallelBranch, vars map[string]any, correlationID string) BranchResult {
	stepResults := make([]StepResult, 0, len(branch.Steps))
	for _, step := range branch.Steps {
		result := p.runner.RunWithStrategy(ctx, step, p.strategy, vars, correlationID, "parallel")
		stepResults = append(stepResults, result)
		if !result.Success {
			return BranchResult{Name: branch.Name, Required: branch.Required, Success: false, Error: result.Error, StepResults: stepResults}
		}
	}
	return BranchResult{Name: branch.Name, Required: branch.Required, Success: true, StepResults: stepResults}
}

// errBranchFailed is a sentinel returned to errgroup.Group.Go to cancel
// groupCtx on a required branch's fail-fast failure; its text is never
// surfaced since Run reports through WorkflowResult.Error instead.
var errBranchFailed = &branchFailedError{}

type branchFailedError struct{}

func (*branchFailedError) Error() string { return "workflow: required branch failed (fail-fast)" }
