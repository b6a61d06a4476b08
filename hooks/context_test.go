package hooks

import "testing"

func TestHookContext_Decode(t *testing.T) {
	ctx := &HookContext{Data: map[string]any{
		"from": "ready",
		"to":   "running",
	}}

	var transition struct {
		From string `mapstructure:"from"`
		To   string `mapstructure:"to"`
	}
	if err := ctx.Decode(&transition); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if transition.From != "ready" || transition.To != "running" {
		t.Errorf("Decode() = %+v, want From=ready To=running", transition)
	}
}

func TestHookContext_GetSet(t *testing.T) {
	ctx := &HookContext{}
	ctx.Set("key", "value")
	v, ok := ctx.Get("key")
	if !ok || v != "value" {
		t.Errorf("Get() = %v, %v, want value, true", v, ok)
	}
}
