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

package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentfabric/corefabric/hooks"
	"github.com/agentfabric/corefabric/metrics"
)

// edgeKey identifies an in-flight transition by the edge it's traversing.
type edgeKey struct {
	from State
	to   State
}

// Machine is a per-agent lifecycle state machine. Its current state is
// held behind mu; every transition runs its pre-hook chain, flips the
// state under lock, runs its post-hook chain, and reports metrics — in
// that order, exactly as the teacher's CheckpointHooks run a BeforeX,
// do the thing, then run an AfterX, logging but never failing on a hook
// error. A Machine is safe for concurrent use.
type Machine struct {
	agentID string
	exec    *hooks.Executor
	metrics *metrics.Registry

	mu              sync.Mutex
	state           State
	since           time.Time
	runningSince    time.Time
	recoveryAttempt int

	inFlightMu sync.Mutex
	inFlight   map[edgeKey]context.CancelFunc
}

// NewMachine creates a Machine for agentID starting in Uninitialized.
// exec and metricsReg may both be nil, disabling hooks and metrics
// reporting respectively.
func NewMachine(agentID string, exec *hooks.Executor, metricsReg *metrics.Registry) *Machine {
	return &Machine{
		agentID:  agentID,
		exec:     exec,
		metrics:  metricsReg,
		state:    Uninitialized,
		since:    time.Now(),
		inFlight: make(map[edgeKey]context.CancelFunc),
	}
}

// State returns the machine's current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Uptime reports how long the machine has continuously been in Running,
// or zero if it is not currently running.
func (m *Machine) Uptime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Running {
		return 0
	}
	return time.Since(m.runningSince)
}

// Health summarizes the machine's current state for health reporting.
type Health struct {
	State            State
	Since            time.Time
	Uptime           time.Duration
	RecoveryAttempts int
}

// Health snapshots the machine's state, how long it's been there, and
// how many auto-recovery attempts have run since the last successful
// recovery.
func (m *Machine) Health() Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := Health{State: m.state, Since: m.since, RecoveryAttempts: m.recoveryAttempt}
	if m.state == Running {
		h.Uptime = time.Since(m.runningSince)
	}
	return h
}

func (m *Machine) Initialize(ctx context.Context) error { return m.apply(ctx, "initialize") }
func (m *Machine) Start(ctx context.Context) error      { return m.apply(ctx, "start") }
func (m *Machine) Pause(ctx context.Context) error      { return m.apply(ctx, "pause") }
func (m *Machine) Resume(ctx context.Context) error     { return m.apply(ctx, "resume") }
func (m *Machine) Stop(ctx context.Context) error       { return m.apply(ctx, "stop") }
func (m *Machine) Terminate(ctx context.Context) error  { return m.apply(ctx, "terminate") }

// Fail drives the machine into Error from any state except Terminated,
// where it returns an *InvalidTransitionError. err
// is attached to the on_error hook context's "error" field so hooks can
// inspect it.
func (m *Machine) Fail(ctx context.Context, err error) error {
	return m.applyWithData(ctx, "error", map[string]any{"error": errString(err)})
}

// Recover drives the machine from Error back to Ready. Callers doing
// automatic retries should use RecoverWithBackoff instead of calling
// this directly in a loop.
func (m *Machine) Recover(ctx context.Context) error {
	return m.apply(ctx, "recover")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (m *Machine) apply(ctx context.Context, action string) error {
	return m.applyWithData(ctx, action, nil)
}

// applyWithData runs the named transition: validate → pre-hook chain →
// flip state under lock → post-hook chain → metrics. Hook failures are
// logged and otherwise ignored; they never block or fail a transition.
func (m *Machine) applyWithData(ctx context.Context, action string, extra map[string]any) error {
	e, ok := edges[action]
	if !ok {
		return fmt.Errorf("lifecycle: unknown action %q", action)
	}

	m.mu.Lock()
	from := m.state
	m.mu.Unlock()

	if !e.allows(from) {
		return &InvalidTransitionError{Action: action, From: from}
	}

	tctx, cancel := context.WithCancel(ctx)
	key := edgeKey{from: from, to: e.to}
	m.inFlightMu.Lock()
	m.inFlight[key] = cancel
	m.inFlightMu.Unlock()
	defer func() {
		m.inFlightMu.Lock()
		delete(m.inFlight, key)
		m.inFlightMu.Unlock()
		cancel()
	}()

	data := map[string]any{"agent_id": m.agentID, "action": action, "from": from.String(), "to": e.to.String()}
	for k, v := range extra {
		data[k] = v
	}

	m.runHooks(tctx, e.pre, data)

	select {
	case <-tctx.Done():
		m.recordTransition(from, e.to, "cancelled")
		return tctx.Err()
	default:
	}

	m.mu.Lock()
	m.state = e.to
	m.since = time.Now()
	if e.to == Running {
		m.runningSince = m.since
	}
	if e.to == Ready && action == "recover" {
		m.recoveryAttempt = 0
	}
	m.mu.Unlock()

	if e.post != "" {
		m.runHooks(ctx, e.post, data)
	}

	m.recordTransition(from, e.to, "success")
	return nil
}

func (m *Machine) runHooks(ctx context.Context, point hooks.HookPoint, data map[string]any) {
	if m.exec == nil {
		return
	}
	hctx := &hooks.HookContext{Point: point, CorrelationID: m.agentID, Data: data}
	if _, err := m.exec.RunChain(ctx, hctx); err != nil {
		slog.Warn("lifecycle: hook chain failed, continuing transition", "agent_id", m.agentID, "point", point, "error", err)
	}
}

func (m *Machine) recordTransition(from, to State, result string) {
	if m.metrics == nil {
		return
	}
	m.metrics.LifecycleTransitions.WithLabelValues(from.String(), to.String(), result).Inc()
	for _, s := range []State{Uninitialized, Ready, Running, Paused, Error, Terminated} {
		v := 0.0
		if s == to && result == "success" {
			v = 1.0
		}
		m.metrics.LifecycleState.WithLabelValues(m.agentID, s.String()).Set(v)
	}
}

// CancelTransition cancels the in-flight transition from from to to, if
// one is currently running its hook chain; otherwise it's a no-op and
// reports false.
func (m *Machine) CancelTransition(from, to State) bool {
	m.inFlightMu.Lock()
	cancel, ok := m.inFlight[edgeKey{from: from, to: to}]
	m.inFlightMu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}
