package graph

import (
	"errors"
	"testing"
)

func linearGraph(t *testing.T) *Graph {
	t.Helper()

	g, err := New("linear", "a", "c", map[string]Transition{
		"a": {Next: "b"},
		"b": {Next: "c"},
		"c": {},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return g
}

func fanOutGraph(t *testing.T) *Graph {
	t.Helper()

	g, err := New("parallel", "start", "end", map[string]Transition{
		"start": {
			FanOut: &FanOut{
				Group:  "work",
				Steps:  []string{"left", "right"},
				JoinTo: "end",
			},
		},
		"left":  {},
		"right": {},
		"end":   {},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return g
}

// Validation Tests

func TestNew_UnknownNextStep(t *testing.T) {
	_, err := New("bad", "a", "b", map[string]Transition{
		"a": {Next: "missing"},
		"b": {},
	})
	if !errors.Is(err, ErrUnknownStep) {
		t.Errorf("expected ErrUnknownStep, got %v", err)
	}
}

func TestNew_UnknownFanOutMember(t *testing.T) {
	_, err := New("bad", "a", "b", map[string]Transition{
		"a": {
			FanOut: &FanOut{Group: "g", Steps: []string{"ghost"}, JoinTo: "b"},
		},
		"b": {},
	})
	if !errors.Is(err, ErrUnknownStep) {
		t.Errorf("expected ErrUnknownStep, got %v", err)
	}
}

func TestNew_UnknownInitial(t *testing.T) {
	_, err := New("bad", "nope", "a", map[string]Transition{
		"a": {},
	})
	if !errors.Is(err, ErrUnknownStep) {
		t.Errorf("expected ErrUnknownStep, got %v", err)
	}
}

func TestNew_DuplicateJoinGroup(t *testing.T) {
	_, err := New("bad", "a", "d", map[string]Transition{
		"a": {
			FanOut: &FanOut{Group: "g", Steps: []string{"b"}, JoinTo: "c"},
		},
		"b": {},
		"c": {
			FanOut: &FanOut{Group: "g", Steps: []string{"d"}, JoinTo: "d"},
		},
		"d": {},
	})
	if !errors.Is(err, ErrDuplicateJoinGroup) {
		t.Errorf("expected ErrDuplicateJoinGroup, got %v", err)
	}
}

func TestNew_BothNextAndFanOut(t *testing.T) {
	_, err := New("bad", "a", "b", map[string]Transition{
		"a": {
			Next:   "b",
			FanOut: &FanOut{Group: "g", Steps: []string{"b"}, JoinTo: "b"},
		},
		"b": {},
	})
	if !errors.Is(err, ErrInvalidGraph) {
		t.Errorf("expected ErrInvalidGraph, got %v", err)
	}
}

func TestNew_Cycle(t *testing.T) {
	_, err := New("bad", "a", "b", map[string]Transition{
		"a": {Next: "b"},
		"b": {Next: "a"},
	})
	if !errors.Is(err, ErrCyclicGraph) {
		t.Errorf("expected ErrCyclicGraph, got %v", err)
	}
}

func TestNew_CycleThroughJoin(t *testing.T) {
	// join-цель ведёт обратно в участника своей же группы
	_, err := New("bad", "a", "c", map[string]Transition{
		"a": {
			FanOut: &FanOut{Group: "g", Steps: []string{"b"}, JoinTo: "c"},
		},
		"b": {},
		"c": {Next: "b"},
	})
	if !errors.Is(err, ErrCyclicGraph) {
		t.Errorf("expected ErrCyclicGraph, got %v", err)
	}
}

// Navigation Tests

func TestTransitionFor(t *testing.T) {
	g := linearGraph(t)

	tr, ok := g.TransitionFor("a")
	if !ok {
		t.Fatal("transition for a not found")
	}
	if tr.Next != "b" {
		t.Errorf("expected next b, got %q", tr.Next)
	}

	tr, ok = g.TransitionFor("c")
	if !ok {
		t.Fatal("transition for c not found")
	}
	if !tr.IsLeaf() {
		t.Error("terminal step should be a leaf")
	}

	if _, ok := g.TransitionFor("nope"); ok {
		t.Error("unknown step should not resolve")
	}
}

func TestResolveJoinTarget(t *testing.T) {
	g := fanOutGraph(t)

	target, ok := g.ResolveJoinTarget("work")
	if !ok {
		t.Fatal("join group work not found")
	}
	if target != "end" {
		t.Errorf("expected end, got %q", target)
	}

	if _, ok := g.ResolveJoinTarget("nope"); ok {
		t.Error("unknown group should not resolve")
	}
}

func TestInitialTerminal(t *testing.T) {
	g := fanOutGraph(t)

	if g.Initial() != "start" {
		t.Errorf("expected start, got %q", g.Initial())
	}
	if g.Terminal() != "end" {
		t.Errorf("expected end, got %q", g.Terminal())
	}
}

func TestSteps_Sorted(t *testing.T) {
	g := fanOutGraph(t)

	steps := g.Steps()
	if len(steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(steps))
	}
	for i := 1; i < len(steps); i++ {
		if steps[i-1] >= steps[i] {
			t.Errorf("steps not sorted: %v", steps)
		}
	}
}

// Registry Tests

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(linearGraph(t))

	g, err := r.Get("linear")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.ProcessType() != "linear" {
		t.Errorf("expected linear, got %q", g.ProcessType())
	}

	_, err = r.Get("unknown")
	if !errors.Is(err, ErrUnknownProcessType) {
		t.Errorf("expected ErrUnknownProcessType, got %v", err)
	}
}
