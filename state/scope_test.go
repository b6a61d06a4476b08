package state

import "testing"

func TestScope_StorageKey(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		key   string
		want  string
	}{
		{"global", Global(), "foo", "global::foo"},
		{"session", Session("sess-1"), "foo", "session:sess-1:foo"},
		{"agent", Agent("agent-1"), "bar", "agent:agent-1:bar"},
		{"custom", Custom("tenant-a"), "baz", "custom:tenant-a:baz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.scope.StorageKey(tt.key); got != tt.want {
				t.Errorf("StorageKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseStorageKey(t *testing.T) {
	tests := []struct {
		name       string
		storageKey string
		wantTag    ScopeTag
		wantDisc   string
		wantKey    string
		wantErr    bool
	}{
		{"global", "global::foo", ScopeGlobal, "", "foo", false},
		{"session", "session:sess-1:foo", ScopeSession, "sess-1", "foo", false},
		{"key_with_colons", "agent:a1:some:nested:key", ScopeAgent, "a1", "some:nested:key", false},
		{"malformed", "not-a-key", "", "", "", true},
		{"unknown_tag", "bogus:x:y", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, key, err := ParseStorageKey(tt.storageKey)
			if tt.wantErr {
				if err == nil {
					t.Fatal("ParseStorageKey() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStorageKey() error = %v", err)
			}
			if scope.Tag != tt.wantTag || scope.Discriminator != tt.wantDisc || key != tt.wantKey {
				t.Errorf("ParseStorageKey() = %v, %v, %v, want %v, %v, %v",
					scope.Tag, scope.Discriminator, key, tt.wantTag, tt.wantDisc, tt.wantKey)
			}
		})
	}
}

func TestScope_RoundTrip(t *testing.T) {
	scopes := []Scope{Global(), Session("s1"), Agent("a1"), Custom("c1")}
	for _, s := range scopes {
		storageKey := s.StorageKey("my-key")
		gotScope, gotKey, err := ParseStorageKey(storageKey)
		if err != nil {
			t.Fatalf("ParseStorageKey(%q) error = %v", storageKey, err)
		}
		if gotScope != s || gotKey != "my-key" {
			t.Errorf("round trip of %v = %v, %v, want %v, my-key", s, gotScope, gotKey, s)
		}
	}
}
