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
	"time"

	"github.com/agentfabric/corefabric/internal/backoff"
)

// RecoveryConfig bounds auto-recovery: at most MaxAttempts calls to
// recover, spaced by BaseDelay and doubled on each retry when
// Exponential is set — the same shape workflow's Retry error strategy
// uses, via the shared internal/backoff helper.
type RecoveryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Exponential bool
}

// HealthCheck optionally validates that recovery actually worked (e.g.
// pinging whatever dependency put the agent into Error). A nil
// HealthCheck means the recover transition succeeding is itself
// sufficient.
type HealthCheck func(ctx context.Context) error

// RecoverWithBackoff retries Recover up to cfg.MaxAttempts times. An
// attempt fails when the recover transition errors or healthCheck
// fails; a failing healthCheck re-fails the machine back into Error
// before the next attempt, while a recover transition error leaves the
// state as it was. It waits
// backoff.Duration(cfg.BaseDelay, attempt, cfg.Exponential) between
// tries. It returns nil on the first attempt that both
// transitions to Ready and passes healthCheck.
func (m *Machine) RecoverWithBackoff(ctx context.Context, cfg RecoveryConfig, healthCheck HealthCheck) error {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		m.mu.Lock()
		m.recoveryAttempt = attempt
		m.mu.Unlock()

		err := m.Recover(ctx)
		if err == nil && healthCheck != nil {
			err = healthCheck(ctx)
			if err != nil {
				// healthCheck failed after a successful recover transition:
				// drive back to Error so the next attempt starts from a
				// valid state.
				_ = m.Fail(ctx, err)
			}
		}

		if err == nil {
			m.recordRecoveryOutcome("success")
			return nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		delay := backoff.Duration(cfg.BaseDelay, attempt, cfg.Exponential)
		select {
		case <-ctx.Done():
			m.recordRecoveryOutcome("cancelled")
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	m.recordRecoveryOutcome("exhausted")
	return fmt.Errorf("lifecycle: recovery exhausted after %d attempts: %w", maxAttempts, lastErr)
}

func (m *Machine) recordRecoveryOutcome(outcome string) {
	if m.metrics == nil {
		return
	}
	m.metrics.LifecycleRecoveryAttempts.WithLabelValues(outcome).Inc()
}
