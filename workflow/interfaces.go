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

import "context"

// ToolOrAgent is the external collaborator a WorkflowStep invokes. Its
// concrete implementations (file/web tools, LLM-backed sub-agents,
// nested workflow runners) live outside this package; the engine only
// ever holds this interface, never a concrete type.
type ToolOrAgent interface {
	// Invoke runs the named tool/agent/custom function/nested workflow
	// with params, returning its output or an error.
	Invoke(ctx context.Context, step WorkflowStep, params map[string]any) (any, error)
}

// Resolver looks up the ToolOrAgent a step should run against, keyed by
// step type and name, so a single StepRunner can dispatch to tools,
// agents, custom functions, and nested workflows alike.
type Resolver interface {
	Resolve(step WorkflowStep) (ToolOrAgent, error)
}

// ResolverFunc adapts a plain function to a Resolver.
type ResolverFunc func(step WorkflowStep) (ToolOrAgent, error)

func (f ResolverFunc) Resolve(step WorkflowStep) (ToolOrAgent, error) { return f(step) }
