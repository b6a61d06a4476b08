package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentfabric/corefabric/hooks"
)

// recordingHook appends the point it was run at to calls; used to
// assert pre/post hook ordering without depending on the executor's
// internals.
type recordingHook struct {
	name   string
	calls  *[]hooks.HookPoint
	result hooks.HookResult
	err    error
	block  chan struct{} // if non-nil, Execute waits for it or ctx.Done()
}

func (h *recordingHook) Metadata() hooks.Metadata { return hooks.Metadata{Name: h.name} }
func (h *recordingHook) ShouldExecute(*hooks.HookContext) bool { return true }
func (h *recordingHook) Execute(ctx context.Context, hctx *hooks.HookContext) (hooks.HookResult, error) {
	*h.calls = append(*h.calls, hctx.Point)
	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
			return hooks.HookResult{}, ctx.Err()
		}
	}
	if h.err != nil {
		return hooks.HookResult{}, h.err
	}
	return h.result, nil
}

func TestMachine_HappyPathTransitions(t *testing.T) {
	calls := &[]hooks.HookPoint{}
	reg := hooks.NewRegistry()
	for _, p := range []hooks.HookPoint{
		hooks.PointBeforeAgentInit, hooks.PointAfterAgentInit,
		hooks.PointBeforeStart, hooks.PointAfterStart,
		hooks.PointBeforePause, hooks.PointAfterPause,
		hooks.PointBeforeResume, hooks.PointAfterResume,
		hooks.PointBeforeStop, hooks.PointAfterStop,
	} {
		reg.Register(p, &recordingHook{name: string(p), calls: calls, result: hooks.Continue()})
	}
	exec := hooks.NewExecutor(reg, nil, time.Second)
	m := NewMachine("agent-1", exec, nil)
	ctx := context.Background()

	steps := []struct {
		name string
		fn   func(context.Context) error
		want State
	}{
		{"Initialize", m.Initialize, Ready},
		{"Start", m.Start, Running},
		{"Pause", m.Pause, Paused},
		{"Resume", m.Resume, Running},
		{"Stop", m.Stop, Ready},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			t.Fatalf("%s() error = %v", s.name, err)
		}
		if got := m.State(); got != s.want {
			t.Fatalf("after %s, State() = %v, want %v", s.name, got, s.want)
		}
	}

	want := []hooks.HookPoint{
		hooks.PointBeforeAgentInit, hooks.PointAfterAgentInit,
		hooks.PointBeforeStart, hooks.PointAfterStart,
		hooks.PointBeforePause, hooks.PointAfterPause,
		hooks.PointBeforeResume, hooks.PointAfterResume,
		hooks.PointBeforeStop, hooks.PointAfterStop,
	}
	if len(*calls) != len(want) {
		t.Fatalf("hook calls = %v, want %v", *calls, want)
	}
	for i := range want {
		if (*calls)[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, (*calls)[i], want[i])
		}
	}
}

func TestMachine_RejectsInvalidTransition(t *testing.T) {
	m := NewMachine("agent-1", nil, nil)
	err := m.Start(context.Background())
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("Start() from Uninitialized error = %v, want *InvalidTransitionError", err)
	}
	if invalid.From != Uninitialized {
		t.Errorf("InvalidTransitionError.From = %v, want Uninitialized", invalid.From)
	}
}

func TestMachine_HookFailureDoesNotBlockTransition(t *testing.T) {
	calls := &[]hooks.HookPoint{}
	reg := hooks.NewRegistry()
	reg.Register(hooks.PointBeforeAgentInit, &recordingHook{name: "boom", calls: calls, err: errors.New("boom")})
	exec := hooks.NewExecutor(reg, nil, time.Second)
	m := NewMachine("agent-1", exec, nil)

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v, want nil (hook failure must not block)", err)
	}
	if m.State() != Ready {
		t.Fatalf("State() = %v, want Ready", m.State())
	}
}

func TestMachine_FailFromAnyStateToError(t *testing.T) {
	m := NewMachine("agent-1", nil, nil)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Fail(context.Background(), errors.New("downstream exploded")); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if m.State() != Error {
		t.Fatalf("State() = %v, want Error", m.State())
	}
}

func TestMachine_RecoverReturnsToReady(t *testing.T) {
	m := NewMachine("agent-1", nil, nil)
	_ = m.Initialize(context.Background())
	_ = m.Fail(context.Background(), errors.New("boom"))
	if err := m.Recover(context.Background()); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if m.State() != Ready {
		t.Fatalf("State() = %v, want Ready", m.State())
	}
}

func TestMachine_TerminateFromAnyState(t *testing.T) {
	m := NewMachine("agent-1", nil, nil)
	if err := m.Terminate(context.Background()); err != nil {
		t.Fatalf("Terminate() from Uninitialized error = %v", err)
	}
	if m.State() != Terminated {
		t.Fatalf("State() = %v, want Terminated", m.State())
	}
}

func TestMachine_CancelTransition_CancelsInFlightHook(t *testing.T) {
	calls := &[]hooks.HookPoint{}
	reg := hooks.NewRegistry()
	block := make(chan struct{})
	reg.Register(hooks.PointBeforeAgentInit, &recordingHook{name: "slow", calls: calls, block: block})
	exec := hooks.NewExecutor(reg, nil, time.Hour)
	m := NewMachine("agent-1", exec, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- m.Initialize(context.Background()) }()

	// Give the goroutine a chance to register the in-flight transition.
	var cancelled bool
	for i := 0; i < 1000 && !cancelled; i++ {
		cancelled = m.CancelTransition(Uninitialized, Ready)
		if !cancelled {
			time.Sleep(time.Millisecond)
		}
	}
	if !cancelled {
		t.Fatal("CancelTransition() = false, want true once the transition is in flight")
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("Initialize() error = nil, want context cancellation error")
		}
	case <-time.After(time.Second):
		t.Fatal("Initialize() did not return after CancelTransition")
	}
	if m.State() != Uninitialized {
		t.Fatalf("State() = %v, want Uninitialized (transition was cancelled)", m.State())
	}
}

func TestMachine_CancelTransition_NoOpWhenNotInFlight(t *testing.T) {
	m := NewMachine("agent-1", nil, nil)
	if m.CancelTransition(Ready, Running) {
		t.Fatal("CancelTransition() = true, want false when no such transition is in flight")
	}
}

func TestMachine_Health(t *testing.T) {
	m := NewMachine("agent-1", nil, nil)
	_ = m.Initialize(context.Background())
	_ = m.Start(context.Background())

	time.Sleep(2 * time.Millisecond)
	h := m.Health()
	if h.State != Running {
		t.Fatalf("Health().State = %v, want Running", h.State)
	}
	if h.Uptime <= 0 {
		t.Errorf("Health().Uptime = %v, want > 0", h.Uptime)
	}
}
