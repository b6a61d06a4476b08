package hooks

import (
	"context"
	"testing"
)

type fakeHook struct {
	name     string
	priority int
}

func (f *fakeHook) Metadata() Metadata           { return Metadata{Name: f.name, Priority: f.priority} }
func (f *fakeHook) ShouldExecute(*HookContext) bool { return true }
func (f *fakeHook) Execute(context.Context, *HookContext) (HookResult, error) {
	return Continue(), nil
}

func names(hooks []Hook) []string {
	out := make([]string, len(hooks))
	for i, h := range hooks {
		out[i] = h.Metadata().Name
	}
	return out
}

func TestRegistry_RegistrationOrderWithEqualPriority(t *testing.T) {
	r := NewRegistry()
	r.Register(PointStepPre, &fakeHook{name: "a"})
	r.Register(PointStepPre, &fakeHook{name: "b"})
	r.Register(PointStepPre, &fakeHook{name: "c"})

	got := names(r.List(PointStepPre))
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("List() = %v, want %v", got, want)
		}
	}
}

func TestRegistry_HigherPriorityRunsFirst(t *testing.T) {
	r := NewRegistry()
	r.Register(PointStepPre, &fakeHook{name: "low", priority: 1})
	r.Register(PointStepPre, &fakeHook{name: "high", priority: 10})
	r.Register(PointStepPre, &fakeHook{name: "mid", priority: 5})

	got := names(r.List(PointStepPre))
	want := []string{"high", "mid", "low"}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("List() = %v, want %v", got, want)
		}
	}
}

func TestRegistry_ReRegisterReplacesInPlace(t *testing.T) {
	r := NewRegistry()
	r.Register(PointStepPre, &fakeHook{name: "a"})
	r.Register(PointStepPre, &fakeHook{name: "b"})
	r.Register(PointStepPre, &fakeHook{name: "c"})

	// Re-register "a" with the same priority; it keeps its original seq,
	// so it stays ahead of its equal-priority siblings instead of moving
	// to the end.
	r.Register(PointStepPre, &fakeHook{name: "a", priority: 0})

	got := names(r.List(PointStepPre))
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("List() after re-register = %v, want %v", got, want)
		}
	}

	if list := r.List(PointStepPre); len(list) != 3 {
		t.Fatalf("List() length = %d, want 3 (re-register must not duplicate)", len(list))
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	r.Register(PointStepPre, &fakeHook{name: "a"})
	r.Register(PointStepPre, &fakeHook{name: "b"})

	r.Unregister(PointStepPre, "a")

	got := names(r.List(PointStepPre))
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("List() after Unregister = %v, want [b]", got)
	}
}

func TestRegistry_Points(t *testing.T) {
	r := NewRegistry()
	r.Register(PointStepPre, &fakeHook{name: "a"})
	r.Register(PointOnError, &fakeHook{name: "b"})

	points := r.Points()
	if len(points) != 2 {
		t.Fatalf("Points() = %v, want 2 entries", points)
	}
}

func TestRegistry_ListSnapshotIsolation(t *testing.T) {
	r := NewRegistry()
	r.Register(PointStepPre, &fakeHook{name: "a"})

	snapshot := r.List(PointStepPre)
	r.Register(PointStepPre, &fakeHook{name: "b"})

	if len(snapshot) != 1 {
		t.Fatalf("earlier List() snapshot mutated by later Register(), got len %d", len(snapshot))
	}
}
