package events

import (
	"testing"
	"time"
)

func TestFlowController_Reserve(t *testing.T) {
	fc := NewFlowController(2, time.Minute)

	if got := fc.Reserve("src").Outcome; got != Accepted {
		t.Errorf("Reserve() #1 = %v, want Accepted", got)
	}
	if got := fc.Reserve("src").Outcome; got != Accepted {
		t.Errorf("Reserve() #2 = %v, want Accepted", got)
	}
	if got := fc.Reserve("src").Outcome; got != RateLimited {
		t.Errorf("Reserve() #3 = %v, want RateLimited", got)
	}
}

func TestFlowController_Release(t *testing.T) {
	fc := NewFlowController(1, time.Minute)
	fc.Reserve("src")
	fc.Release("src")
	if got := fc.Reserve("src").Outcome; got != Accepted {
		t.Errorf("Reserve() after Release() = %v, want Accepted", got)
	}
}

func TestFlowController_DisabledWhenNonPositiveLimit(t *testing.T) {
	fc := NewFlowController(0, time.Minute)
	for i := 0; i < 10; i++ {
		if got := fc.Reserve("src").Outcome; got != Accepted {
			t.Errorf("Reserve() with disabled limiter = %v, want Accepted", got)
		}
	}
}

func TestFlowController_PerSourceIsolation(t *testing.T) {
	fc := NewFlowController(1, time.Minute)
	fc.Reserve("a")
	if got := fc.Reserve("b").Outcome; got != Accepted {
		t.Errorf("Reserve() for distinct source = %v, want Accepted", got)
	}
}
