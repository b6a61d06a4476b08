package workflow

import (
	"context"
	"testing"
	"time"
)

func TestParallel_AllRequiredSucceed(t *testing.T) {
	tool := newScriptedTool()
	runner := newTestRunner(tool)

	branches := []ParallelBranch{
		{Name: "a", Required: true, Steps: []WorkflowStep{{ID: "1", Name: "a-step"}}},
		{Name: "b", Required: true, Steps: []WorkflowStep{{ID: "2", Name: "b-step"}}},
	}

	par := NewParallel(runner, branches, 2, false, false, ErrorStrategy{Kind: FailFast}, 0)
	result := par.Run(context.Background(), nil, "corr-1")

	if !result.Success {
		t.Fatalf("Run() success = false, want true: %s", result.Error)
	}
	if len(result.BranchResults) != 2 {
		t.Fatalf("BranchResults len = %d, want 2", len(result.BranchResults))
	}
}

// TestParallel_FailFast exercises scenario S3: one branch fails
// immediately, the other sleeps; fail_fast=true should return well
// before the slow branch would otherwise finish.
func TestParallel_FailFast(t *testing.T) {
	tool := newScriptedTool()
	tool.alwaysErr["fails-fast"] = true
	tool.sleep["slow"] = 5 * time.Second
	runner := newTestRunner(tool)

	branches := []ParallelBranch{
		{Name: "quick", Required: true, Steps: []WorkflowStep{{ID: "1", Name: "fails-fast"}}},
		{Name: "slow", Required: true, Steps: []WorkflowStep{{ID: "2", Name: "slow"}}},
	}

	par := NewParallel(runner, branches, 2, true, false, ErrorStrategy{Kind: FailFast}, 0)

	start := time.Now()
	result := par.Run(context.Background(), nil, "corr-1")
	elapsed := time.Since(start)

	if result.Success {
		t.Fatal("Run() success = true, want false")
	}
	if !result.StoppedEarly {
		t.Fatal("StoppedEarly = false, want true")
	}
	if elapsed >= 2*time.Second {
		t.Fatalf("Run() took %s, want well under 2s (fail-fast should not wait for the slow branch)", elapsed)
	}
}

func TestParallel_OptionalFailureDoesNotFailWorkflow(t *testing.T) {
	tool := newScriptedTool()
	tool.alwaysErr["optional-step"] = true
	runner := newTestRunner(tool)

	branches := []ParallelBranch{
		{Name: "required", Required: true, Steps: []WorkflowStep{{ID: "1", Name: "required-step"}}},
		{Name: "optional", Required: false, Steps: []WorkflowStep{{ID: "2", Name: "optional-step"}}},
	}

	par := NewParallel(runner, branches, 2, false, true, ErrorStrategy{Kind: FailFast}, 0)
	result := par.Run(context.Background(), nil, "corr-1")

	if !result.Success {
		t.Fatalf("Run() success = false, want true (optional branch failure absorbed): %s", result.Error)
	}
}

func TestParallel_MaxConcurrencyBoundsSimultaneousBranches(t *testing.T) {
	tool := newScriptedTool()
	tool.sleep["slow"] = 20 * time.Millisecond
	runner := newTestRunner(tool)

	branches := make([]ParallelBranch, 4)
	for i := range branches {
		branches[i] = ParallelBranch{Name: string(rune('a' + i)), Required: true, Steps: []WorkflowStep{{ID: string(rune('1' + i)), Name: "slow"}}}
	}

	par := NewParallel(runner, branches, 1, false, false, ErrorStrategy{Kind: FailFast}, 0)

	start := time.Now()
	result := par.Run(context.Background(), nil, "corr-1")
	elapsed := time.Since(start)

	if !result.Success {
		t.Fatalf("Run() success = false: %s", result.Error)
	}
	if elapsed < 70*time.Millisecond {
		t.Fatalf("Run() took %s, want >= ~80ms since max_concurrency=1 serializes 4x20ms branches", elapsed)
	}
}

func TestParallel_WorkflowTimeoutStopsEarly(t *testing.T) {
	tool := newScriptedTool()
	tool.sleep["slow"] = time.Second
	runner := newTestRunner(tool)

	branches := []ParallelBranch{
		{Name: "a", Required: true, Steps: []WorkflowStep{{ID: "1", Name: "slow"}}},
	}

	par := NewParallel(runner, branches, 1, false, false, ErrorStrategy{Kind: FailFast}, 20*time.Millisecond)
	result := par.Run(context.Background(), nil, "corr-1")

	if !result.StoppedEarly {
		t.Fatal("StoppedEarly = false, want true (workflow timeout cancels in-flight branches)")
	}
}
