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

// Package lifecycle implements the per-agent state machine that drives
// the execution context, state manager, event bus, and hook registry at
// well-defined moments (init, start, pause, resume, stop, error,
// recover, terminate). It is grounded in the same
// acquire-lock/transition/release shape the teacher's checkpoint
// manager uses around a crashed task's resume state, retargeted here to
// drive an agent's six-state lifecycle instead of one recovery path.
package lifecycle

import (
	"fmt"

	"github.com/agentfabric/corefabric/hooks"
)

// State is one of the six lifecycle states an agent can occupy.
type State string

const (
	Uninitialized State = "uninitialized"
	Ready         State = "ready"
	Running       State = "running"
	Paused        State = "paused"
	Error         State = "error"
	Terminated    State = "terminated"
)

func (s State) String() string { return string(s) }

// edge names one edge in the lifecycle graph: the action that triggers
// it, the states it may start from (anyState for the error edge, anyState
// plus Terminated for terminate), the state it lands in, and the hook
// points to emit before and after the state actually changes. post is
// empty for edges with no paired "after" hook constant (error and
// terminate only ever emit one hook).
type edge struct {
	action string
	froms  []State
	to     State
	pre    hooks.HookPoint
	post   hooks.HookPoint // zero value means no post-hook is emitted
}

// anyState matches a transition valid from every non-terminal state.
var anyState = []State{Uninitialized, Ready, Running, Paused, Error}

var edges = map[string]edge{
	"initialize": {action: "initialize", froms: []State{Uninitialized}, to: Ready, pre: hooks.PointBeforeAgentInit, post: hooks.PointAfterAgentInit},
	"start":      {action: "start", froms: []State{Ready}, to: Running, pre: hooks.PointBeforeStart, post: hooks.PointAfterStart},
	"pause":      {action: "pause", froms: []State{Running}, to: Paused, pre: hooks.PointBeforePause, post: hooks.PointAfterPause},
	"resume":     {action: "resume", froms: []State{Paused}, to: Running, pre: hooks.PointBeforeResume, post: hooks.PointAfterResume},
	"stop":       {action: "stop", froms: []State{Running}, to: Ready, pre: hooks.PointBeforeStop, post: hooks.PointAfterStop},
	"error":      {action: "error", froms: anyState, to: Error, pre: hooks.PointOnError},
	"recover":    {action: "recover", froms: []State{Error}, to: Ready, pre: hooks.PointBeforeRecover, post: hooks.PointAfterRecover},
	"terminate":  {action: "terminate", froms: append(append([]State{}, anyState...), Terminated), to: Terminated, pre: hooks.PointBeforeTerminate},
}

func (e edge) allows(from State) bool {
	for _, f := range e.froms {
		if f == from {
			return true
		}
	}
	return false
}

// InvalidTransitionError reports an attempted transition the lifecycle
// graph does not allow from the machine's current state.
type InvalidTransitionError struct {
	Action string
	From   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("lifecycle: %s is not valid from state %s", e.Action, e.From)
}
