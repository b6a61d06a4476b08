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

package hooks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentfabric/corefabric/metrics"
)

var tracer = metrics.Tracer("github.com/agentfabric/corefabric/hooks")

// OverheadBudgetRatio is the default fraction of max execution time the
// executor's own hook overhead is allowed to consume, per
// is_within_overhead_target's contract.
const OverheadBudgetRatio = 0.05

// Executor runs hooks registered in a Registry, tracking a circuit
// breaker per hook name and reporting duration/outcome metrics.
type Executor struct {
	registry *Registry
	metrics  *metrics.Registry

	defaultTimeout time.Duration
	breakerCfg     BreakerConfig

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	configs  map[string]Config

	overheadMu    sync.Mutex
	totalOverhead time.Duration
}

// NewExecutor creates an Executor over reg, reporting into metricsReg
// (may be nil to disable metrics), with defaultTimeout applied to any hook
// without its own Config.Timeout.
func NewExecutor(reg *Registry, metricsReg *metrics.Registry, defaultTimeout time.Duration) *Executor {
	return &Executor{
		registry:       reg,
		metrics:        metricsReg,
		defaultTimeout: defaultTimeout,
		breakerCfg:     DefaultBreakerConfig(),
		breakers:       make(map[string]*CircuitBreaker),
		configs:        make(map[string]Config),
	}
}

// Configure installs a per-hook Config, overriding the executor-wide
// timeout and breaker defaults for that hook name.
func (e *Executor) Configure(hookName string, cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs[hookName] = cfg
}

func (e *Executor) breakerFor(hookName string) *CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	if b, ok := e.breakers[hookName]; ok {
		return b
	}
	cfg := e.breakerCfg
	if override, ok := e.configs[hookName]; ok && override.BreakerOverride != nil {
		cfg = *override.BreakerOverride
	}
	b := NewCircuitBreaker(cfg)
	e.breakers[hookName] = b
	return b
}

func (e *Executor) timeoutFor(hookName string) time.Duration {
	e.mu.Lock()
	cfg, ok := e.configs[hookName]
	e.mu.Unlock()
	if ok && cfg.Timeout != nil {
		return time.Duration(*cfg.Timeout) * time.Millisecond
	}
	return e.defaultTimeout
}

func (e *Executor) breakerDisabled(hookName string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.configs[hookName].BreakerDisabled
}

// RunOne executes a single hook against hctx, implementing the
// should-execute / breaker / timer / breaker-record algorithm.
func (e *Executor) RunOne(ctx context.Context, hook Hook, hctx *HookContext) (HookResult, error) {
	meta := hook.Metadata()

	ctx, span := tracer.Start(ctx, "hooks.invoke",
		trace.WithAttributes(
			attribute.String("fabric.hook_name", meta.Name),
			attribute.String("fabric.hook_point", hctx.Point.String()),
		))
	defer span.End()

	if !hook.ShouldExecute(hctx) {
		e.recordSkipped(meta.Name, "predicate false")
		span.SetStatus(codes.Ok, "skipped: predicate false")
		return Skipped("predicate false"), nil
	}

	breakerEnabled := !e.breakerDisabled(meta.Name)
	var breaker *CircuitBreaker
	if breakerEnabled {
		breaker = e.breakerFor(meta.Name)
		if !breaker.Allow() {
			e.recordSkipped(meta.Name, "circuit open")
			span.SetStatus(codes.Ok, "skipped: circuit open")
			return Skipped("circuit open"), nil
		}
	}

	start := time.Now()
	result, err := hook.Execute(ctx, hctx)
	duration := time.Since(start)

	if breakerEnabled {
		if err != nil {
			breaker.RecordFailure(duration)
		} else {
			breaker.RecordSuccess(duration)
		}
	}

	e.addOverhead(duration)
	e.observe(meta.Name, hctx.Point, duration, err)

	if timeout := e.timeoutFor(meta.Name); timeout > 0 && duration > timeout {
		slog.Warn("hooks: hook exceeded effective timeout",
			"hook", meta.Name, "point", hctx.Point, "duration", duration, "timeout", timeout)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return HookResult{}, &HookError{Name: meta.Name, Point: hctx.Point, Err: err}
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// RunChain executes every hook registered for hctx.Point in order,
// stopping early on Cancel or Replace.
func (e *Executor) RunChain(ctx context.Context, hctx *HookContext) ([]HookResult, error) {
	hooks := e.registry.List(hctx.Point)
	results := make([]HookResult, 0, len(hooks))

	for _, hook := range hooks {
		result, err := e.RunOne(ctx, hook, hctx)
		if err != nil {
			return results, err
		}
		results = append(results, result)
		if result.haltsChain() {
			break
		}
	}
	return results, nil
}

func (e *Executor) recordSkipped(hookName, reason string) {
	if e.metrics != nil {
		e.metrics.HookSkipped.WithLabelValues(hookName, reason).Inc()
	}
}

func (e *Executor) observe(hookName string, point HookPoint, duration time.Duration, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.HookDuration.WithLabelValues(hookName, point.String()).Observe(duration.Seconds())
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	e.metrics.HookInvocations.WithLabelValues(hookName, point.String(), outcome).Inc()

	b := e.breakerFor(hookName)
	e.metrics.BreakerState.WithLabelValues(hookName).Set(float64(b.State()))
}

func (e *Executor) addOverhead(d time.Duration) {
	e.overheadMu.Lock()
	e.totalOverhead += d
	e.overheadMu.Unlock()
}

// TotalOverhead returns the cumulative hook execution time this executor
// has recorded.
func (e *Executor) TotalOverhead() time.Duration {
	e.overheadMu.Lock()
	defer e.overheadMu.Unlock()
	return e.totalOverhead
}

// ResetBreaker forces the named hook's circuit breaker back to Closed,
// for an operator clearing a stuck-open breaker rather than waiting out
// its cool-down.
func (e *Executor) ResetBreaker(hookName string) {
	e.breakerFor(hookName).Reset()
}

// ResetAllBreakers resets every circuit breaker this executor has
// created so far.
func (e *Executor) ResetAllBreakers() {
	e.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(e.breakers))
	for _, b := range e.breakers {
		breakers = append(breakers, b)
	}
	e.mu.Unlock()
	for _, b := range breakers {
		b.Reset()
	}
}

// BreakerStats reports the current state of every circuit breaker this
// executor has created so far, keyed by hook name.
func (e *Executor) BreakerStats() map[string]BreakerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats := make(map[string]BreakerState, len(e.breakers))
	for name, b := range e.breakers {
		stats[name] = b.State()
	}
	return stats
}

// IsWithinOverheadTarget reports whether TotalOverhead stays within
// OverheadBudgetRatio of maxExecutionTime.
func (e *Executor) IsWithinOverheadTarget(maxExecutionTime time.Duration) bool {
	budget := time.Duration(float64(maxExecutionTime) * OverheadBudgetRatio)
	return e.TotalOverhead() <= budget
}
