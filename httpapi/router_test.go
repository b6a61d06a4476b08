package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agentfabric/corefabric/backup"
	"github.com/agentfabric/corefabric/events"
	"github.com/agentfabric/corefabric/lifecycle"
	"github.com/agentfabric/corefabric/metrics"
	"github.com/agentfabric/corefabric/state"
)

func newTestRouter(t *testing.T) (*Router, *events.Bus, *state.Manager) {
	t.Helper()
	reg := metrics.New("fabric_test_" + t.Name())

	bus := events.New(events.WithPersistence(events.NewMemoryPersistence()), events.WithMetrics(reg))

	sm := state.NewManager(state.NewMemoryBackend(), reg)
	if err := sm.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	coord := backup.NewCoordinator(sm, backup.WithMetrics(reg))

	machine := lifecycle.NewMachine("agent-1", nil, reg)
	_ = machine.Initialize(context.Background())

	rt := &Router{
		Bus:         bus,
		Coordinator: coord,
		Machines: func(agentID string) (*lifecycle.Machine, bool) {
			if agentID == "agent-1" {
				return machine, true
			}
			return nil, false
		},
		Metrics: reg,
	}
	return rt, bus, sm
}

func TestRouter_Healthz(t *testing.T) {
	rt, _, _ := newTestRouter(t)
	srv := httptest.NewServer(rt.NewMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestRouter_EventsByCorrelation(t *testing.T) {
	rt, bus, _ := newTestRouter(t)
	ctx := context.Background()
	evt := events.NewEvent("workflow.step.completed", "test", map[string]any{"ok": true}).WithCorrelationID("corr-1")
	if res := bus.Publish(ctx, evt); res.Outcome != events.Accepted {
		t.Fatalf("Publish() outcome = %v, want Accepted", res.Outcome)
	}

	srv := httptest.NewServer(rt.NewMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/events/by-correlation/corr-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got []events.UniversalEvent
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got) != 1 || got[0].CorrelationID != "corr-1" {
		t.Fatalf("got %+v, want one event with correlation_id corr-1", got)
	}
}

func TestRouter_EventsByPattern_RequiresQueryParam(t *testing.T) {
	rt, _, _ := newTestRouter(t)
	srv := httptest.NewServer(rt.NewMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/events/by-pattern")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRouter_BackupCaptureAndRestore(t *testing.T) {
	rt, _, sm := newTestRouter(t)
	ctx := context.Background()
	if err := sm.Set(ctx, state.Global(), "k", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	srv := httptest.NewServer(rt.NewMux())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/backups/capture", "application/json", strings.NewReader(`{"backup_id":"b1"}`))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("capture status = %d, want 200", resp.StatusCode)
	}

	restoreResp, err := http.Post(srv.URL+"/v1/backups/restore", "application/octet-stream", resp.Body)
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	defer restoreResp.Body.Close()
	if restoreResp.StatusCode != http.StatusOK {
		t.Fatalf("restore status = %d, want 200", restoreResp.StatusCode)
	}
}

func TestRouter_AgentHealth(t *testing.T) {
	rt, _, _ := newTestRouter(t)
	srv := httptest.NewServer(rt.NewMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/agents/agent-1/health")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got agentHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.State != string(lifecycle.Ready) {
		t.Errorf("State = %q, want %q", got.State, lifecycle.Ready)
	}
}

func TestRouter_AgentHealth_UnknownAgent(t *testing.T) {
	rt, _, _ := newTestRouter(t)
	srv := httptest.NewServer(rt.NewMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/agents/does-not-exist/health")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	rt, _, _ := newTestRouter(t)
	srv := httptest.NewServer(rt.NewMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
