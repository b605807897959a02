package runner

import "testing"

func TestStepContext_InputOverridesMerged(t *testing.T) {
	sc := NewStepContext(1, "a",
		map[string]any{"k": "input"},
		map[string]any{"k": "merged", "other": 1},
	)

	v, ok := sc.Get("k")
	if !ok || v != "input" {
		t.Errorf("expected input to override merged, got %v", v)
	}

	v, ok = sc.Get("other")
	if !ok || v != 1 {
		t.Errorf("expected merged value visible, got %v", v)
	}
}

func TestStepContext_GetDefault(t *testing.T) {
	sc := NewStepContext(1, "a", nil, nil)

	if got := sc.GetDefault("missing", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %v", got)
	}

	sc.Set("present", 42)
	if got := sc.GetDefault("present", 0); got != 42 {
		t.Errorf("expected 42, got %v", got)
	}
}

func TestStepContext_DataIsCopy(t *testing.T) {
	sc := NewStepContext(1, "a", map[string]any{"k": 1}, nil)

	data := sc.Data()
	data["k"] = 999

	if v, _ := sc.Get("k"); v != 1 {
		t.Errorf("expected internal state untouched, got %v", v)
	}
}
