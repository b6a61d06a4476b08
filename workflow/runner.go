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
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentfabric/corefabric/events"
	"github.com/agentfabric/corefabric/hooks"
	"github.com/agentfabric/corefabric/internal/backoff"
	"github.com/agentfabric/corefabric/metrics"
)

var tracer = metrics.Tracer("github.com/agentfabric/corefabric/workflow")

// StepRunner is the generalized form of the teacher's BaseExecutor:
// every pattern wraps its steps in the same pre-hook / body / post-hook
// / event-publish envelope instead of reimplementing it per pattern.
type StepRunner struct {
	executor *hooks.Executor
	bus      *events.Bus
	metrics  *metrics.Registry
	resolver Resolver
	source   string
}

// NewStepRunner creates a StepRunner. bus and metricsReg may be nil to
// disable event publication and metrics reporting respectively.
func NewStepRunner(executor *hooks.Executor, bus *events.Bus, metricsReg *metrics.Registry, resolver Resolver, source string) *StepRunner {
	return &StepRunner{executor: executor, bus: bus, metrics: metricsReg, resolver: resolver, source: source}
}

// runOnce executes one attempt of step: pre-hooks, body, post-hooks,
// event publish. It never retries; RunWithStrategy layers retry on top.
func (r *StepRunner) runOnce(ctx context.Context, step WorkflowStep, vars map[string]any, correlationID, pattern string) StepResult {
	ctx, span := tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(
			attribute.String("fabric.step_id", step.ID),
			attribute.String("fabric.step_name", step.Name),
			attribute.String("fabric.step_type", string(step.Type)),
			attribute.String("fabric.pattern", pattern),
		))
	defer span.End()

	start := time.Now()
	data := make(map[string]any, len(vars)+len(step.Params)+2)
	for k, v := range vars {
		data[k] = v
	}
	for k, v := range step.Params {
		data[k] = v
	}
	data["step_id"] = step.ID
	data["step_name"] = step.Name

	preCtx := &hooks.HookContext{Point: hooks.PointStepPre, CorrelationID: correlationID, Data: data}
	preResults, err := r.executor.RunChain(ctx, preCtx)
	if err != nil {
		return r.finish(span, step, start, false, nil, err.Error(), pattern)
	}
	if cancelled, reason := haltedBy(preResults); cancelled {
		return r.finish(span, step, start, false, nil, fmt.Sprintf("pre-hook cancelled: %s", reason), pattern)
	}

	tool, err := r.resolver.Resolve(step)
	if err != nil {
		return r.finish(span, step, start, false, nil, err.Error(), pattern)
	}

	stepCtx := ctx
	var cancel context.CancelFunc
	if step.Timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	output, err := tool.Invoke(stepCtx, step, preCtx.Data)
	if err != nil {
		return r.finish(span, step, start, false, output, err.Error(), pattern)
	}

	postCtx := &hooks.HookContext{Point: hooks.PointStepPost, CorrelationID: correlationID, Data: preCtx.Data}
	postCtx.Set("output", output)
	if _, err := r.executor.RunChain(ctx, postCtx); err != nil {
		return r.finish(span, step, start, false, output, err.Error(), pattern)
	}

	return r.finish(span, step, start, true, output, "", pattern)
}

// EmitPatternHook runs the hook chain registered at point, for brackets
// that span a whole pattern run or iteration rather than a single step
// (workflow start/complete, loop iteration start/complete, parallel
// fork/join). data seeds the HookContext alongside vars.
func (r *StepRunner) EmitPatternHook(ctx context.Context, point hooks.HookPoint, correlationID string, vars map[string]any, data map[string]any) ([]hooks.HookResult, error) {
	merged := make(map[string]any, len(vars)+len(data))
	for k, v := range vars {
		merged[k] = v
	}
	for k, v := range data {
		merged[k] = v
	}
	hctx := &hooks.HookContext{Point: point, CorrelationID: correlationID, Data: merged}
	return r.executor.RunChain(ctx, hctx)
}

func haltedBy(results []hooks.HookResult) (bool, string) {
	for _, res := range results {
		if res.Kind == hooks.ResultCancel {
			return true, res.Reason
		}
	}
	return false, ""
}

func (r *StepRunner) finish(span trace.Span, step WorkflowStep, start time.Time, success bool, output any, errMsg, pattern string) StepResult {
	duration := time.Since(start)
	if success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.RecordError(errors.New(errMsg))
		span.SetStatus(codes.Error, errMsg)
	}
	if r.metrics != nil {
		r.metrics.StepDuration.WithLabelValues(pattern, string(step.Type)).Observe(duration.Seconds())
	}
	if r.bus != nil {
		eventType := "workflow.step.completed"
		if !success {
			eventType = "workflow.step.failed"
		}
		evt := events.NewEvent(eventType, r.source, map[string]any{"step_id": step.ID, "step_name": step.Name})
		r.bus.Publish(context.Background(), evt)
	}
	return StepResult{StepID: step.ID, Success: success, Output: output, Error: errMsg, Attempts: 1, Duration: duration}
}

// RunWithStrategy runs step under the given ErrorStrategy: Retry
// re-attempts on failure with linear or exponential backoff up to
// MaxAttempts, per step; FailFast and ContinueOnError run exactly once
// and leave the reaction to the caller.
func (r *StepRunner) RunWithStrategy(ctx context.Context, step WorkflowStep, strategy ErrorStrategy, vars map[string]any, correlationID, pattern string) StepResult {
	if strategy.Kind != Retry {
		return r.runOnce(ctx, step, vars, correlationID, pattern)
	}

	maxAttempts := strategy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var result StepResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result = r.runOnce(ctx, step, vars, correlationID, pattern)
		result.Attempts = attempt
		if result.Success {
			return result
		}
		if attempt == maxAttempts {
			break
		}
		delay := backoff.Duration(time.Duration(strategy.BackoffMs)*time.Millisecond, attempt, strategy.Exponential)
		select {
		case <-ctx.Done():
			result.Error = ctx.Err().Error()
			return result
		case <-time.After(delay):
		}
	}
	return result
}
