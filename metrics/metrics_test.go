package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNew_RegistersAllFamiliesUnderNamespace(t *testing.T) {
	reg := New("fabric_test")

	reg.HookInvocations.WithLabelValues("demo-hook", "before_start", "success").Inc()
	reg.LifecycleState.WithLabelValues("agent-1", "ready").Set(1)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Handler() status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "fabric_test_hooks_invocations_total") {
		t.Error("exposition output missing fabric_test_hooks_invocations_total")
	}
	if !strings.Contains(body, "fabric_test_lifecycle_state") {
		t.Error("exposition output missing fabric_test_lifecycle_state")
	}
}

func TestNew_DistinctRegistriesDoNotCollide(t *testing.T) {
	a := New("fabric_a")
	b := New("fabric_b")
	a.HookInvocations.WithLabelValues("h", "p", "success").Inc()
	b.HookInvocations.WithLabelValues("h", "p", "success").Inc()
	// Registering the same metric names under two separate
	// prometheus.Registry instances must not panic (MustRegister already
	// ran in New without a collision), and both stay independently
	// queryable.
	reqA := httptest.NewRequest("GET", "/metrics", nil)
	recA := httptest.NewRecorder()
	a.Handler().ServeHTTP(recA, reqA)
	if !strings.Contains(recA.Body.String(), "fabric_a_hooks_invocations_total") {
		t.Error("registry a missing its own metric")
	}
	if strings.Contains(recA.Body.String(), "fabric_b_hooks_invocations_total") {
		t.Error("registry a leaked registry b's metric")
	}
}
