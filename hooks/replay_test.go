package hooks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/agentfabric/corefabric/events"
)

type replayableHook struct {
	name string
}

func (h *replayableHook) Metadata() Metadata           { return Metadata{Name: h.name} }
func (h *replayableHook) ShouldExecute(*HookContext) bool { return true }

func (h *replayableHook) Execute(context.Context, *HookContext) (HookResult, error) {
	return Continue(), nil
}

func (h *replayableHook) ReplayID(hctx *HookContext) string {
	id, _ := hctx.Get("replay_id")
	s, _ := id.(string)
	return s
}

func (h *replayableHook) SerializeContext(hctx *HookContext) ([]byte, error) {
	return json.Marshal(hctx)
}

func (h *replayableHook) DeserializeContext(data []byte) (*HookContext, error) {
	var hctx HookContext
	if err := json.Unmarshal(data, &hctx); err != nil {
		return nil, err
	}
	return &hctx, nil
}

func TestReplayStore_SaveLoadRoundTrip(t *testing.T) {
	persistence := events.NewMemoryPersistence()
	store := NewReplayStore(persistence)
	hook := &replayableHook{name: "r"}

	hctx := &HookContext{Point: PointStepPre, CorrelationID: "corr-1", Data: map[string]any{"replay_id": "step-1", "value": "v1"}}
	if err := store.Save(context.Background(), hook, hctx); err != nil {
		t.Fatalf("Save() err = %v", err)
	}

	loaded, ok, err := store.Load(context.Background(), hook, "corr-1", "step-1")
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v, %v, want ok=true, err=nil", loaded, ok, err)
	}
	if loaded.CorrelationID != "corr-1" {
		t.Fatalf("loaded.CorrelationID = %q, want corr-1", loaded.CorrelationID)
	}
	if v, _ := loaded.Get("value"); v != "v1" {
		t.Fatalf("loaded value = %v, want v1", v)
	}
}

func TestReplayStore_LoadMissing(t *testing.T) {
	store := NewReplayStore(events.NewMemoryPersistence())
	hook := &replayableHook{name: "r"}

	_, ok, err := store.Load(context.Background(), hook, "corr-x", "missing")
	if err != nil {
		t.Fatalf("Load() err = %v, want nil", err)
	}
	if ok {
		t.Fatal("Load() ok = true, want false for missing replay context")
	}
}

func TestExecutor_Replay(t *testing.T) {
	persistence := events.NewMemoryPersistence()
	store := NewReplayStore(persistence)
	hook := &replayableHook{name: "r"}

	hctx := &HookContext{Point: PointStepPre, CorrelationID: "corr-1", Data: map[string]any{"replay_id": "step-1", "value": "v1"}}
	if err := store.Save(context.Background(), hook, hctx); err != nil {
		t.Fatalf("Save() err = %v", err)
	}

	e := NewExecutor(NewRegistry(), nil, time.Second)

	var mutatedTo any
	result, err := e.Replay(context.Background(), store, hook, "corr-1", "step-1", func(h *HookContext) {
		h.Set("value", "mutated")
		mutatedTo, _ = h.Get("value")
	})
	if err != nil {
		t.Fatalf("Replay() err = %v, want nil", err)
	}
	if result.Kind != ResultContinue {
		t.Fatalf("Replay() result = %+v, want Continue", result)
	}
	if mutatedTo != "mutated" {
		t.Fatalf("mutate callback did not observe its own write: %v", mutatedTo)
	}
}

func TestExecutor_Replay_MissingContext(t *testing.T) {
	store := NewReplayStore(events.NewMemoryPersistence())
	hook := &replayableHook{name: "r"}
	e := NewExecutor(NewRegistry(), nil, time.Second)

	if _, err := e.Replay(context.Background(), store, hook, "corr-x", "missing", nil); err == nil {
		t.Fatal("Replay() err = nil, want error for missing replay context")
	}
}

func TestTimeline(t *testing.T) {
	persistence := events.NewMemoryPersistence()
	store := NewReplayStore(persistence)
	hook := &replayableHook{name: "r"}

	for _, id := range []string{"step-1", "step-2"} {
		hctx := &HookContext{Point: PointStepPre, CorrelationID: "corr-1", Data: map[string]any{"replay_id": id}}
		if err := store.Save(context.Background(), hook, hctx); err != nil {
			t.Fatalf("Save(%s) err = %v", id, err)
		}
	}

	records, err := Timeline(context.Background(), persistence, "corr-1")
	if err != nil {
		t.Fatalf("Timeline() err = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Timeline() returned %d records, want 2", len(records))
	}
}
