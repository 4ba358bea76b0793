package dag

import "testing"

// TestCriticalPathLengths_FiveTaskFanIn reproduces the literal scenario
// from the scheduler spec: T1→T3, T2→T3, T3→T5, T4→T5 (arrows read "is a
// dependency of"). Expected CPL: T5=0, T3=1, T4=1, T1=2, T2=2.
func TestCriticalPathLengths_FiveTaskFanIn(t *testing.T) {
	d := buildDAG(t, []nodeSpec{
		{id: "T1", priority: 0},
		{id: "T2", priority: 0},
		{id: "T4", priority: 0},
		{id: "T3", priority: 0, deps: []string{"T1", "T2"}},
		{id: "T5", priority: 0, deps: []string{"T3", "T4"}},
	})

	cpl, err := d.CriticalPathLengths()
	if err != nil {
		t.Fatalf("CriticalPathLengths: %v", err)
	}

	want := map[string]int{"T1": 2, "T2": 2, "T3": 1, "T4": 1, "T5": 0}
	for id, wantLen := range want {
		if got := cpl[id]; got != wantLen {
			t.Errorf("CPL(%s) = %d, want %d", id, got, wantLen)
		}
	}
}

func TestCriticalPathLengths_LeafHasZero(t *testing.T) {
	d := buildDAG(t, []nodeSpec{{id: "solo", priority: 0}})
	cpl, err := d.CriticalPathLengths()
	if err != nil {
		t.Fatalf("CriticalPathLengths: %v", err)
	}
	if cpl["solo"] != 0 {
		t.Errorf("CPL(solo) = %d, want 0", cpl["solo"])
	}
}

func TestCriticalPathLengths_Cycle(t *testing.T) {
	d := New()
	_ = d.AddNode("a", 0)
	_ = d.AddNode("b", 0)
	d.adjacency["a"]["b"] = true
	d.reverse["b"]["a"] = true
	d.adjacency["b"]["a"] = true
	d.reverse["a"]["b"] = true

	if _, err := d.CriticalPathLengths(); err == nil {
		t.Fatal("expected error for cyclic graph")
	}
}

func TestDependentsAndDependencies(t *testing.T) {
	d := buildDAG(t, []nodeSpec{
		{id: "base", priority: 0},
		{id: "mid", priority: 0, deps: []string{"base"}},
		{id: "top", priority: 0, deps: []string{"mid"}},
	})

	if got := d.Dependents("base"); len(got) != 1 || got[0] != "mid" {
		t.Errorf("Dependents(base) = %v, want [mid]", got)
	}
	if got := d.Dependencies("top"); len(got) != 1 || got[0] != "mid" {
		t.Errorf("Dependencies(top) = %v, want [mid]", got)
	}
	if got := d.Dependents("top"); got != nil {
		t.Errorf("Dependents(top) = %v, want nil", got)
	}
}

func TestHasPathAndRemoveEdge(t *testing.T) {
	d := buildDAG(t, []nodeSpec{
		{id: "a", priority: 0},
		{id: "b", priority: 0, deps: []string{"a"}},
	})
	if !d.HasPath("b", "a") {
		t.Error("expected HasPath(b, a) to be true")
	}
	d.RemoveEdge("b", "a")
	if d.HasPath("b", "a") {
		t.Error("expected HasPath(b, a) to be false after RemoveEdge")
	}
}
