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

// Package hooks implements the fabric's hook registry and executor: a
// priority-ordered chain of small observers/interceptors invoked at
// named points in the workflow and lifecycle state machine, each
// protected by its own circuit breaker.
package hooks

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// HookPoint names a place in the fabric where hooks can attach.
type HookPoint string

const (
	PointBeforeAgentInit HookPoint = "before_agent_init"
	PointAfterAgentInit  HookPoint = "after_agent_init"
	PointBeforeStart     HookPoint = "before_start"
	PointAfterStart      HookPoint = "after_start"
	PointBeforePause     HookPoint = "before_pause"
	PointAfterPause      HookPoint = "after_pause"
	PointBeforeResume    HookPoint = "before_resume"
	PointAfterResume     HookPoint = "after_resume"
	PointBeforeStop      HookPoint = "before_stop"
	PointAfterStop       HookPoint = "after_stop"
	PointOnError         HookPoint = "on_error"
	PointBeforeRecover   HookPoint = "before_recover"
	PointAfterRecover    HookPoint = "after_recover"
	PointBeforeTerminate HookPoint = "before_terminate"

	PointStepPre         HookPoint = "step_pre"
	PointStepPost        HookPoint = "step_post"
	PointStateChange     HookPoint = "state_change"
	PointBranchSelection HookPoint = "branch_selection"

	// PointWorkflowStart/PointWorkflowComplete bracket a whole pattern
	// run (Sequential/Conditional/Loop/Parallel), not an individual step.
	PointWorkflowStart    HookPoint = "workflow_start"
	PointWorkflowComplete HookPoint = "workflow_complete"

	// PointLoopIterationStart/PointLoopIterationComplete bracket one
	// Loop iteration, outside that iteration's own step_pre/step_post
	// pairs.
	PointLoopIterationStart    HookPoint = "loop_iteration_start"
	PointLoopIterationComplete HookPoint = "loop_iteration_complete"

	// PointParallelFork/PointParallelJoin bracket a Parallel pattern's
	// branch fan-out and fan-in.
	PointParallelFork HookPoint = "parallel_fork"
	PointParallelJoin HookPoint = "parallel_join"
)

func (p HookPoint) String() string { return string(p) }

// HookContext carries the mutable state a hook chain reads and writes as
// it runs. Data holds caller-defined, dynamically-typed fields (decoded
// at the edges with mapstructure by callers that need a concrete type).
type HookContext struct {
	Point         HookPoint
	CorrelationID string
	Data          map[string]any
}

// Get reads a field from Data.
func (c *HookContext) Get(key string) (any, bool) {
	v, ok := c.Data[key]
	return v, ok
}

// Decode populates out (a pointer to a struct) from Data, the same edge
// a caller crosses when it needs a concrete type instead of the raw
// map[string]any a hook chain passes around.
func (c *HookContext) Decode(out any) error {
	return mapstructure.Decode(c.Data, out)
}

// Set writes a field into Data, creating the map if necessary.
func (c *HookContext) Set(key string, value any) {
	if c.Data == nil {
		c.Data = make(map[string]any)
	}
	c.Data[key] = value
}

// HookResultKind is the sum-type tag HookResult carries.
type HookResultKind string

const (
	ResultContinue HookResultKind = "continue"
	ResultModified HookResultKind = "modified"
	ResultCancel   HookResultKind = "cancel"
	ResultReplace  HookResultKind = "replace"
	ResultSkipped  HookResultKind = "skipped"
)

// HookResult is what a hook's Execute (or the executor short-circuiting
// on its behalf) returns.
type HookResult struct {
	Kind   HookResultKind
	Reason string // populated for Cancel and Skipped
	Value  any    // populated for Modified and Replace
}

func Continue() HookResult                  { return HookResult{Kind: ResultContinue} }
func Modified(value any) HookResult         { return HookResult{Kind: ResultModified, Value: value} }
func Cancel(reason string) HookResult       { return HookResult{Kind: ResultCancel, Reason: reason} }
func Replace(value any) HookResult          { return HookResult{Kind: ResultReplace, Value: value} }
func Skipped(reason string) HookResult      { return HookResult{Kind: ResultSkipped, Reason: reason} }

// haltsChain reports whether a HookResult of this kind stops
// RunChain from continuing to the next hook.
func (r HookResult) haltsChain() bool {
	return r.Kind == ResultCancel || r.Kind == ResultReplace
}

// Metadata describes a hook for registry bookkeeping and logging.
type Metadata struct {
	Name        string
	Version     string
	Description string
	Priority    int
	Tags        []string
	Language    string // e.g. "go", "python" — empty for native Go hooks
}

// Hook is the interface every registered hook implements.
type Hook interface {
	Metadata() Metadata
	ShouldExecute(ctx *HookContext) bool
	Execute(ctx context.Context, hctx *HookContext) (HookResult, error)
}

// Replayable is an optional capability a Hook can additionally implement
// to support replay: serializing and restoring its own HookContext under
// a stable replay id.
type Replayable interface {
	Hook
	ReplayID(hctx *HookContext) string
	SerializeContext(hctx *HookContext) ([]byte, error)
	DeserializeContext(data []byte) (*HookContext, error)
}

// Config adjusts per-hook executor behavior: an optional custom timeout
// and circuit breaker configuration layered over the executor's defaults.
type Config struct {
	Timeout          *int64 // milliseconds; nil uses the executor default
	BreakerDisabled  bool
	BreakerOverride  *BreakerConfig
}

// HookError wraps a hook execution failure with the hook's name and
// point for logging/debugging.
type HookError struct {
	Name  string
	Point HookPoint
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hooks: %s at %s failed: %v", e.Name, e.Point, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }
