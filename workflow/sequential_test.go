package workflow

import (
	"context"
	"testing"
	"time"
)

func TestSequential_AllSucceed(t *testing.T) {
	tool := newScriptedTool()
	runner := newTestRunner(tool)
	steps := []WorkflowStep{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}, {ID: "3", Name: "c"}}

	seq := NewSequential(runner, steps, ErrorStrategy{Kind: FailFast}, 0)
	result := seq.Run(context.Background(), nil, "corr-1")

	if !result.Success {
		t.Fatalf("Run() success = false, want true: %s", result.Error)
	}
	if result.StepsCompleted != 3 {
		t.Fatalf("StepsCompleted = %d, want 3", result.StepsCompleted)
	}
}

func TestSequential_FailFastAborts(t *testing.T) {
	tool := newScriptedTool()
	tool.alwaysErr["b"] = true
	runner := newTestRunner(tool)
	steps := []WorkflowStep{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}, {ID: "3", Name: "c"}}

	seq := NewSequential(runner, steps, ErrorStrategy{Kind: FailFast}, 0)
	result := seq.Run(context.Background(), nil, "corr-1")

	if result.Success {
		t.Fatal("Run() success = true, want false")
	}
	if result.StepsCompleted != 2 {
		t.Fatalf("StepsCompleted = %d, want 2 (abort after b fails, c never runs)", result.StepsCompleted)
	}
	if tool.callCount("c") != 0 {
		t.Fatalf("step c called %d times, want 0", tool.callCount("c"))
	}
}

func TestSequential_ContinueOnError(t *testing.T) {
	tool := newScriptedTool()
	tool.alwaysErr["b"] = true
	runner := newTestRunner(tool)
	steps := []WorkflowStep{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}, {ID: "3", Name: "c"}}

	seq := NewSequential(runner, steps, ErrorStrategy{Kind: ContinueOnError}, 0)
	result := seq.Run(context.Background(), nil, "corr-1")

	if result.Success {
		t.Fatal("Run() success = true, want false (one step failed)")
	}
	if result.StepsCompleted != 3 {
		t.Fatalf("StepsCompleted = %d, want 3 (all steps still attempted)", result.StepsCompleted)
	}
	if tool.callCount("c") != 1 {
		t.Fatalf("step c called %d times, want 1", tool.callCount("c"))
	}
}

// TestSequential_Retry exercises scenario S1: a step that fails twice
// then succeeds under Retry{max_attempts:3}.
func TestSequential_Retry(t *testing.T) {
	tool := newScriptedTool()
	tool.failures["flaky"] = 2
	runner := newTestRunner(tool)
	steps := []WorkflowStep{{ID: "1", Name: "flaky"}}

	seq := NewSequential(runner, steps, ErrorStrategy{Kind: Retry, MaxAttempts: 3, BackoffMs: 1}, 0)
	result := seq.Run(context.Background(), nil, "corr-1")

	if !result.Success {
		t.Fatalf("Run() success = false, want true after retry recovers: %s", result.Error)
	}
	if result.StepResults[0].Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", result.StepResults[0].Attempts)
	}
}

func TestSequential_RetryExhausted(t *testing.T) {
	tool := newScriptedTool()
	tool.alwaysErr["broken"] = true
	runner := newTestRunner(tool)
	steps := []WorkflowStep{{ID: "1", Name: "broken"}}

	seq := NewSequential(runner, steps, ErrorStrategy{Kind: Retry, MaxAttempts: 2, BackoffMs: 1}, 0)
	result := seq.Run(context.Background(), nil, "corr-1")

	if result.Success {
		t.Fatal("Run() success = true, want false (retries exhausted)")
	}
	if tool.callCount("broken") != 2 {
		t.Fatalf("call count = %d, want 2 (bounded by max_attempts)", tool.callCount("broken"))
	}
}

func TestSequential_WorkflowTimeout(t *testing.T) {
	tool := newScriptedTool()
	tool.sleep["slow"] = 50 * time.Millisecond
	runner := newTestRunner(tool)
	steps := []WorkflowStep{{ID: "1", Name: "slow"}, {ID: "2", Name: "slow"}, {ID: "3", Name: "slow"}}

	seq := NewSequential(runner, steps, ErrorStrategy{Kind: FailFast}, 60*time.Millisecond)
	result := seq.Run(context.Background(), nil, "corr-1")

	if result.Success {
		t.Fatal("Run() success = true, want false (timeout should surface as failure for Sequential)")
	}
}
