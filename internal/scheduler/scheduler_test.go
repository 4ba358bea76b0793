package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/forgetool/forge/internal/diagnostics"
)

// chainFunc returns a TaskFunc where any name in failNames reports
// Failure, and all others report Success after writing their name.
func chainFunc(failNames map[string]bool) TaskFunc {
	return func(_ context.Context, name string, _ bool, w io.Writer) (Status, []diagnostics.Diagnostic, error) {
		fmt.Fprintf(w, "running %s\n", name)
		if failNames[name] {
			return Failure, []diagnostics.Diagnostic{{Message: "boom"}}, nil
		}
		return Success, nil, nil
	}
}

func TestExecute_RunsInDependencyOrder(t *testing.T) {
	var out bytes.Buffer
	s := New(4, &out)
	for _, n := range []string{"a", "b", "c"} {
		if err := s.AddTask(n); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}
	// c depends on b depends on a.
	if err := s.AddDependencies("b", []string{"a"}); err != nil {
		t.Fatalf("AddDependencies: %v", err)
	}
	if err := s.AddDependencies("c", []string{"b"}); err != nil {
		t.Fatalf("AddDependencies: %v", err)
	}

	var mu sync.Mutex
	var finishOrder []string
	err := s.Execute(context.Background(), func(ctx context.Context, name string, incrementalAllowed bool, w io.Writer) (Status, []diagnostics.Diagnostic, error) {
		mu.Lock()
		finishOrder = append(finishOrder, name)
		mu.Unlock()
		return Success, nil, nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := []string{"a", "b", "c"}
	if len(finishOrder) != len(want) {
		t.Fatalf("finishOrder = %v, want %v", finishOrder, want)
	}
	for i, n := range want {
		if finishOrder[i] != n {
			t.Errorf("finishOrder[%d] = %q, want %q", i, finishOrder[i], n)
		}
	}
}

func TestExecute_FailurePropagatesBlockedToDescendants(t *testing.T) {
	var out bytes.Buffer
	s := New(4, &out)
	for _, n := range []string{"a", "b", "c", "d"} {
		if err := s.AddTask(n); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}
	// b depends on a; c depends on b; d is independent.
	if err := s.AddDependencies("b", []string{"a"}); err != nil {
		t.Fatalf("AddDependencies: %v", err)
	}
	if err := s.AddDependencies("c", []string{"b"}); err != nil {
		t.Fatalf("AddDependencies: %v", err)
	}

	err := s.Execute(context.Background(), chainFunc(map[string]bool{"a": true}))
	if err == nil {
		t.Fatal("expected Execute to return an error when a task fails")
	}

	stA, _ := s.Status("a")
	stB, _ := s.Status("b")
	stC, _ := s.Status("c")
	stD, _ := s.Status("d")

	if stA != Failure {
		t.Errorf("a status = %v, want Failure", stA)
	}
	if stB != Blocked {
		t.Errorf("b status = %v, want Blocked", stB)
	}
	if stC != Blocked {
		t.Errorf("c status = %v, want Blocked", stC)
	}
	if stD != Success {
		t.Errorf("d status = %v, want Success (independent of the failed chain)", stD)
	}
}

func TestExecute_SkippedDoesNotInvalidateDependents(t *testing.T) {
	var out bytes.Buffer
	s := New(2, &out)
	for _, n := range []string{"a", "b"} {
		if err := s.AddTask(n); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}
	if err := s.AddDependencies("b", []string{"a"}); err != nil {
		t.Fatalf("AddDependencies: %v", err)
	}

	var bSawIncremental bool
	err := s.Execute(context.Background(), func(ctx context.Context, name string, incrementalAllowed bool, w io.Writer) (Status, []diagnostics.Diagnostic, error) {
		if name == "a" {
			return Skipped, nil, nil
		}
		bSawIncremental = incrementalAllowed
		return Success, nil, nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	stA, _ := s.Status("a")
	stB, _ := s.Status("b")
	if stA != Skipped {
		t.Errorf("a status = %v, want Skipped", stA)
	}
	if stB != Success {
		t.Errorf("b status = %v, want Success", stB)
	}
	if !bSawIncremental {
		t.Error("b should still see incrementalAllowed = true: a's Skipped must not invalidate its dependents")
	}
}

func TestExecute_SuccessInvalidatesDependentsIncrementalEligibility(t *testing.T) {
	var out bytes.Buffer
	s := New(2, &out)
	for _, n := range []string{"a", "b"} {
		if err := s.AddTask(n); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}
	if err := s.AddDependencies("b", []string{"a"}); err != nil {
		t.Fatalf("AddDependencies: %v", err)
	}

	var bSawIncremental bool
	err := s.Execute(context.Background(), func(ctx context.Context, name string, incrementalAllowed bool, w io.Writer) (Status, []diagnostics.Diagnostic, error) {
		if name == "a" {
			return Success, nil, nil
		}
		bSawIncremental = incrementalAllowed
		return Success, nil, nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if bSawIncremental {
		t.Error("b should see incrementalAllowed = false: a's real Success must invalidate its dependents")
	}
}

func TestAddDependencies_UnknownTaskErrors(t *testing.T) {
	var out bytes.Buffer
	s := New(1, &out)
	if err := s.AddTask("a"); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := s.AddDependencies("a", []string{"ghost"}); err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestAddTask_DuplicateNameErrors(t *testing.T) {
	var out bytes.Buffer
	s := New(1, &out)
	if err := s.AddTask("a"); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := s.AddTask("a"); err == nil {
		t.Fatal("expected error for duplicate task name")
	}
}

func TestExecute_RespectsConcurrencyCap(t *testing.T) {
	var out bytes.Buffer
	s := New(2, &out)
	names := []string{"a", "b", "c", "d", "e", "f"}
	for _, n := range names {
		if err := s.AddTask(n); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}

	var mu sync.Mutex
	current, maxSeen := 0, 0
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := s.Execute(context.Background(), func(ctx context.Context, name string, incrementalAllowed bool, w io.Writer) (Status, []diagnostics.Diagnostic, error) {
			mu.Lock()
			current++
			if current > maxSeen {
				maxSeen = current
			}
			mu.Unlock()
			<-release
			mu.Lock()
			current--
			mu.Unlock()
			return Success, nil, nil
		})
		if err != nil {
			t.Errorf("Execute: %v", err)
		}
	}()

	// Release tasks one at a time; the cap of 2 bounds how many wait here.
	for range names {
		release <- struct{}{}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if maxSeen > 2 {
		t.Errorf("maxSeen concurrency = %d, want <= 2", maxSeen)
	}
}
