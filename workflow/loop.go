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
	"strings"
	"time"

	"github.com/agentfabric/corefabric/hooks"
)

// BreakCondition is evaluated once per iteration, after loop variables
// are bound and before the step body runs. If it returns true, the loop
// exits immediately with the given reason and success=true.
type BreakCondition func(vars map[string]any) (bool, string)

// Loop runs Steps once per value Iterator yields, binding $loop_value,
// $loop_index, and $iteration into each step's params before running it.
type Loop struct {
	runner          *StepRunner
	steps           []WorkflowStep
	iterator        Iterator
	breakConditions []BreakCondition
	aggregation     Aggregation
	iterationDelay  time.Duration
	strategy        ErrorStrategy
	timeout         time.Duration
}

// NewLoop creates a Loop pattern.
func NewLoop(runner *StepRunner, steps []WorkflowStep, iterator Iterator, breakConditions []BreakCondition, aggregation Aggregation, iterationDelay time.Duration, strategy ErrorStrategy, timeout time.Duration) *Loop {
	return &Loop{
		runner: runner, steps: steps, iterator: iterator, breakConditions: breakConditions,
		aggregation: aggregation, iterationDelay: iterationDelay, strategy: strategy, timeout: timeout,
	}
}

// Run drives the iterator until it is exhausted, a break condition
// fires, or the workflow timeout expires.
func (l *Loop) Run(ctx context.Context, vars map[string]any, correlationID string) WorkflowResult {
	start := time.Now()
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	l.runner.EmitPatternHook(ctx, hooks.PointWorkflowStart, correlationID, vars, map[string]any{"pattern": "loop"})

	var allResults []StepResult
	breakReason := ""
	success := true
	loopIndex := 0

	for {
		loopValue, ok := l.iterator.Next()
		if !ok {
			break
		}

		iterVars := make(map[string]any, len(vars)+3)
		for k, v := range vars {
			iterVars[k] = v
		}
		iterVars["loop_value"] = loopValue
		iterVars["loop_index"] = loopIndex
		iterVars["iteration"] = loopIndex

		if broke, reason := l.evaluateBreaks(iterVars); broke {
			breakReason = reason
			break
		}

		l.runner.EmitPatternHook(ctx, hooks.PointLoopIterationStart, correlationID, iterVars, nil)

		if l.iterationDelay > 0 {
			select {
			case <-ctx.Done():
				breakReason = "timeout"
			case <-time.After(l.iterationDelay):
			}
			if breakReason != "" {
				break
			}
		}

		if err := ctx.Err(); err != nil {
			breakReason = "timeout"
			break
		}

		iterationResults := make([]StepResult, 0, len(l.steps))
		iterationFailed := false
		for _, step := range l.steps {
			boundStep := bindStepParams(step, iterVars)
			result := l.runner.RunWithStrategy(ctx, boundStep, l.strategy, iterVars, correlationID, "loop")
			iterationResults = append(iterationResults, result)
			if !result.Success {
				iterationFailed = true
				if l.strategy.Kind == FailFast {
					break
				}
			}
		}
		if err := ctx.Err(); err != nil {
			// The workflow timeout expired inside this iteration's steps.
			allResults = append(allResults, iterationResults...)
			breakReason = "timeout"
			break
		}
		allResults = append(allResults, iterationResults...)
		loopIndex++

		l.runner.EmitPatternHook(ctx, hooks.PointLoopIterationComplete, correlationID, iterVars, map[string]any{"failed": iterationFailed})

		if iterationFailed && l.strategy.Kind == FailFast {
			success = false
			break
		}
	}

	completed := loopIndex
	meta := &LoopMetadata{
		TotalIterations:     completed,
		CompletedIterations: completed,
		Duration:            time.Since(start),
		BreakReason:         breakReason,
	}

	l.runner.EmitPatternHook(ctx, hooks.PointWorkflowComplete, correlationID, vars, map[string]any{
		"pattern": "loop", "success": success, "break_reason": breakReason,
	})

	return WorkflowResult{
		Success: success, StepResults: aggregate(allResults, l.aggregation),
		Duration: time.Since(start), StepsCompleted: len(allResults),
		BreakReason: breakReason, LoopMetadata: meta,
	}
}

func (l *Loop) evaluateBreaks(vars map[string]any) (bool, string) {
	for _, cond := range l.breakConditions {
		if broke, reason := cond(vars); broke {
			return true, reason
		}
	}
	return false, ""
}

func aggregate(results []StepResult, agg Aggregation) []StepResult {
	switch agg.Kind {
	case LastOnly:
		if len(results) == 0 {
			return results
		}
		return results[len(results)-1:]
	case FirstN:
		if agg.N >= len(results) {
			return results
		}
		return results[:agg.N]
	case LastN:
		if agg.N >= len(results) {
			return results
		}
		return results[len(results)-agg.N:]
	default: // CollectAll
		return results
	}
}

// bindStepParams applies the minimal $variable substitution grammar:
// a param string that is exactly "$name" is replaced wholesale with
// vars["name"]; anything else passes through unchanged.
func bindStepParams(step WorkflowStep, vars map[string]any) WorkflowStep {
	if len(step.Params) == 0 {
		return step
	}
	bound := make(map[string]any, len(step.Params))
	for k, v := range step.Params {
		s, ok := v.(string)
		if !ok || !strings.HasPrefix(s, "$") {
			bound[k] = v
			continue
		}
		name := strings.TrimPrefix(s, "$")
		if replacement, ok := vars[name]; ok {
			bound[k] = replacement
		} else {
			bound[k] = v
		}
	}
	step.Params = bound
	return step
}
