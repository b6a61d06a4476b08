package lifecycle

import "testing"

func TestEdges_TerminateAllowedFromEveryState(t *testing.T) {
	e := edges["terminate"]
	for _, s := range []State{Uninitialized, Ready, Running, Paused, Error, Terminated} {
		if !e.allows(s) {
			t.Errorf("terminate.allows(%v) = false, want true", s)
		}
	}
}

func TestEdges_ErrorAllowedFromEveryNonTerminalState(t *testing.T) {
	e := edges["error"]
	for _, s := range []State{Uninitialized, Ready, Running, Paused, Error} {
		if !e.allows(s) {
			t.Errorf("error.allows(%v) = false, want true", s)
		}
	}
	if e.allows(Terminated) {
		t.Error("error.allows(Terminated) = true, want false")
	}
}

func TestInvalidTransitionError_Message(t *testing.T) {
	err := &InvalidTransitionError{Action: "start", From: Uninitialized}
	want := "lifecycle: start is not valid from state uninitialized"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
