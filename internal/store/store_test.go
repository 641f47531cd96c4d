package store

import (
	"testing"

	"github.com/taktoa/language-boogie/internal/value"
)

func TestGetOnUnknownNameIsAbsent(t *testing.T) {
	s := New()
	if _, ok := s.Get("x"); ok {
		t.Error("fresh store should have nothing cached")
	}
}

func TestBeginFinishCachesValue(t *testing.T) {
	s := New()
	s, err := s.Begin("x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s = s.Finish("x", value.NewInt(7))

	got, ok := s.Get("x")
	if !ok || !value.Equal(got, value.NewInt(7)) {
		t.Errorf("got %v, ok=%v, want 7", got, ok)
	}
	if s.IsPending("x") {
		t.Error("Finish should clear pending")
	}
}

func TestBeginTwiceWithoutFinishIsACycle(t *testing.T) {
	s := New()
	s, err := s.Begin("x")
	if err != nil {
		t.Fatalf("unexpected error on first Begin: %v", err)
	}
	_, err = s.Begin("x")
	if err == nil {
		t.Fatal("expected a CycleError on the second Begin")
	}
	if _, ok := err.(*CycleError); !ok {
		t.Errorf("expected *CycleError, got %T", err)
	}
}

func TestAbandonAllowsRetry(t *testing.T) {
	s := New()
	s, _ = s.Begin("x")
	s = s.Abandon("x")

	s2, err := s.Begin("x")
	if err != nil {
		t.Fatalf("retry after Abandon should not be a cycle: %v", err)
	}
	s2 = s2.Finish("x", value.NewBool(true))
	got, ok := s2.Get("x")
	if !ok || !value.Equal(got, value.NewBool(true)) {
		t.Errorf("got %v, ok=%v", got, ok)
	}
}

func TestAttachDefinitionIsPersistentAcrossBranches(t *testing.T) {
	s := New()
	s = s.AttachDefinition("f", Definition{Body: nil})

	branchA := s.AttachDefinition("f", Definition{Body: nil})
	branchB := s

	if len(branchA.Definitions("f")) != 2 {
		t.Errorf("branchA should see both definitions, got %d", len(branchA.Definitions("f")))
	}
	if len(branchB.Definitions("f")) != 1 {
		t.Errorf("branchB should be unaffected by branchA's attach, got %d", len(branchB.Definitions("f")))
	}
}

func TestIndependentNamesDoNotInterfere(t *testing.T) {
	s := New()
	s, _ = s.Begin("x")
	// y is untouched; beginning it should not report a cycle.
	s2, err := s.Begin("y")
	if err != nil {
		t.Fatalf("unexpected cycle on unrelated name: %v", err)
	}
	if !s2.IsPending("x") {
		t.Error("x should still be pending")
	}
}
