package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRecoverWithBackoff_SucceedsOnFirstAttempt(t *testing.T) {
	m := NewMachine("agent-1", nil, nil)
	_ = m.Initialize(context.Background())
	_ = m.Fail(context.Background(), errors.New("boom"))

	err := m.RecoverWithBackoff(context.Background(), RecoveryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("RecoverWithBackoff() error = %v", err)
	}
	if m.State() != Ready {
		t.Fatalf("State() = %v, want Ready", m.State())
	}
}

func TestRecoverWithBackoff_RetriesUntilHealthCheckPasses(t *testing.T) {
	m := NewMachine("agent-1", nil, nil)
	_ = m.Initialize(context.Background())
	_ = m.Fail(context.Background(), errors.New("boom"))

	attempts := 0
	healthCheck := func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("dependency still down")
		}
		return nil
	}

	err := m.RecoverWithBackoff(context.Background(), RecoveryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond}, healthCheck)
	if err != nil {
		t.Fatalf("RecoverWithBackoff() error = %v", err)
	}
	if attempts != 3 {
		t.Fatalf("healthCheck called %d times, want 3", attempts)
	}
	if m.State() != Ready {
		t.Fatalf("State() = %v, want Ready", m.State())
	}
}

func TestRecoverWithBackoff_ExhaustsAttempts(t *testing.T) {
	m := NewMachine("agent-1", nil, nil)
	_ = m.Initialize(context.Background())
	_ = m.Fail(context.Background(), errors.New("boom"))

	healthCheck := func(context.Context) error { return errors.New("still down") }

	err := m.RecoverWithBackoff(context.Background(), RecoveryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}, healthCheck)
	if err == nil {
		t.Fatal("RecoverWithBackoff() error = nil, want exhaustion error")
	}
	if m.State() != Error {
		t.Fatalf("State() = %v, want Error after exhausting recovery attempts", m.State())
	}
}

func TestRecoverWithBackoff_ExponentialDelayGrows(t *testing.T) {
	m := NewMachine("agent-1", nil, nil)
	_ = m.Initialize(context.Background())
	_ = m.Fail(context.Background(), errors.New("boom"))

	healthCheck := func(context.Context) error { return errors.New("still down") }
	start := time.Now()
	_ = m.RecoverWithBackoff(context.Background(), RecoveryConfig{
		MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, Exponential: true,
	}, healthCheck)
	elapsed := time.Since(start)

	// Two waits of 10ms then 20ms = 30ms minimum between three attempts.
	if elapsed < 25*time.Millisecond {
		t.Errorf("elapsed = %v, want at least ~30ms from exponential backoff", elapsed)
	}
}

func TestRecoverWithBackoff_CancelledContext(t *testing.T) {
	m := NewMachine("agent-1", nil, nil)
	_ = m.Initialize(context.Background())
	_ = m.Fail(context.Background(), errors.New("boom"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	healthCheck := func(context.Context) error { return errors.New("still down") }
	err := m.RecoverWithBackoff(ctx, RecoveryConfig{MaxAttempts: 3, BaseDelay: time.Hour}, healthCheck)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RecoverWithBackoff() error = %v, want context.Canceled", err)
	}
}
