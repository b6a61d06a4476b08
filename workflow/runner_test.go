package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentfabric/corefabric/hooks"
)

// scriptedTool is a ToolOrAgent whose behavior is scripted per step name
// for use across the pattern test files.
type scriptedTool struct {
	mu        sync.Mutex
	failures  map[string]int // step name -> remaining failures before success
	calls     map[string]int
	sleep     map[string]time.Duration
	alwaysErr map[string]bool
}

func newScriptedTool() *scriptedTool {
	return &scriptedTool{
		failures:  make(map[string]int),
		calls:     make(map[string]int),
		sleep:     make(map[string]time.Duration),
		alwaysErr: make(map[string]bool),
	}
}

func (t *scriptedTool) Invoke(ctx context.Context, step WorkflowStep, params map[string]any) (any, error) {
	t.mu.Lock()
	t.calls[step.Name]++
	remaining := t.failures[step.Name]
	alwaysErr := t.alwaysErr[step.Name]
	sleep := t.sleep[step.Name]
	if remaining > 0 {
		t.failures[step.Name] = remaining - 1
	}
	t.mu.Unlock()

	if sleep > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}

	if alwaysErr || remaining > 0 {
		return nil, fmt.Errorf("step %s scripted failure", step.Name)
	}
	return params, nil
}

func (t *scriptedTool) callCount(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[name]
}

func newTestRunner(tool ToolOrAgent) *StepRunner {
	executor := hooks.NewExecutor(hooks.NewRegistry(), nil, time.Second)
	return NewStepRunner(executor, nil, nil, ResolverFunc(func(WorkflowStep) (ToolOrAgent, error) {
		return tool, nil
	}), "test")
}
