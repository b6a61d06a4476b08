package events

import "testing"

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern   string
		eventType string
		want      bool
	}{
		{"*", "system.started", true},
		{"*", "anything", true},
		{"system.*", "system.started", true},
		{"system.*", "system.stopped", true},
		{"system.*", "agent.started", false},
		{"agent.*.created", "agent.worker-1.created", true},
		{"agent.*.created", "agent.worker-1.deleted", false},
		{"literal.event", "literal.event", true},
		{"literal.event", "literal.other", false},
		{"a.b.c", "a.b", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.eventType, func(t *testing.T) {
			if got := MatchPattern(tt.pattern, tt.eventType); got != tt.want {
				t.Errorf("MatchPattern(%q, %q) = %v, want %v", tt.pattern, tt.eventType, got, tt.want)
			}
		})
	}
}
