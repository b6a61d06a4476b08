package backup

import (
	"context"
	"testing"

	"github.com/agentfabric/corefabric/state"
)

func newTestStateManager(t *testing.T) *state.Manager {
	t.Helper()
	m := state.NewManager(state.NewMemoryBackend(), nil)
	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return m
}

func TestCoordinator_CaptureRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newTestStateManager(t)

	if err := m.Set(ctx, state.Session("s1"), "foo", map[string]any{"a": 1.0}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := m.Set(ctx, state.Global(), "bar", "baz"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	co := NewCoordinator(m)
	data, err := co.Capture(ctx, "backup-1", "")
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	m2 := newTestStateManager(t)
	co2 := NewCoordinator(m2)
	if err := co2.Restore(ctx, data, nil); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	v, ok, err := m2.Get(ctx, state.Session("s1"), "foo")
	if err != nil || !ok {
		t.Fatalf("Get() ok=%v err=%v", ok, err)
	}
	asMap, ok := v.(map[string]any)
	if !ok || asMap["a"] != 1.0 {
		t.Errorf("Get() = %v, want map[a:1]", v)
	}

	v2, ok, err := m2.Get(ctx, state.Global(), "bar")
	if err != nil || !ok || v2 != "baz" {
		t.Errorf("Get(bar) = %v, ok=%v, err=%v, want baz", v2, ok, err)
	}
}

func TestCoordinator_CaptureWithGzip(t *testing.T) {
	ctx := context.Background()
	m := newTestStateManager(t)
	if err := m.Set(ctx, state.Global(), "k", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	co := NewCoordinator(m, WithCompressor(NewCompressor(AlgorithmGzip)))
	data, err := co.Capture(ctx, "backup-1", "")
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	m2 := newTestStateManager(t)
	co2 := NewCoordinator(m2, WithCompressor(NewCompressor(AlgorithmGzip)))
	if err := co2.Restore(ctx, data, nil); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	v, ok, err := m2.Get(ctx, state.Global(), "k")
	if err != nil || !ok || v != "v" {
		t.Errorf("Get(k) = %v, ok=%v, err=%v, want v", v, ok, err)
	}
}

func TestCoordinator_RestoreReportsProgress(t *testing.T) {
	ctx := context.Background()
	m := newTestStateManager(t)
	for i := 0; i < 3; i++ {
		if err := m.Set(ctx, state.Global(), string(rune('a'+i)), i); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	co := NewCoordinator(m)
	data, err := co.Capture(ctx, "backup-1", "")
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	m2 := newTestStateManager(t)
	co2 := NewCoordinator(m2)
	var calls []int
	if err := co2.Restore(ctx, data, func(completed, total int) {
		calls = append(calls, completed)
		if total != 3 {
			t.Errorf("progress total = %d, want 3", total)
		}
	}); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if len(calls) != 3 {
		t.Fatalf("progress callback fired %d times, want 3", len(calls))
	}
}

func TestCoordinator_IncrementalCaptureRecordsParentID(t *testing.T) {
	ctx := context.Background()
	m := newTestStateManager(t)
	if err := m.Set(ctx, state.Global(), "k", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	co := NewCoordinator(m)
	full, err := co.Capture(ctx, "backup-1", "")
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	snap, err := decode(full, nil)
	if err != nil {
		t.Fatalf("decode() error = %v", err)
	}
	if snap.ParentID != "" {
		t.Errorf("ParentID = %q, want empty for a root backup", snap.ParentID)
	}

	incremental, err := co.Capture(ctx, "backup-2", "backup-1")
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	snap2, err := decode(incremental, nil)
	if err != nil {
		t.Fatalf("decode() error = %v", err)
	}
	if snap2.ParentID != "backup-1" {
		t.Errorf("ParentID = %q, want backup-1", snap2.ParentID)
	}
}
