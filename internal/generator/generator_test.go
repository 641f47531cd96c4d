package generator

import (
	"math/rand"
	"sort"
	"testing"
)

func TestDeterministicDrawsDefaults(t *testing.T) {
	d := Deterministic{}
	if got := d.Ints([]int64{5, 6, 7}); len(got) != 1 || got[0] != 5 {
		t.Errorf("Ints = %v, want [5]", got)
	}
	if got := d.Bools(); len(got) != 1 || got[0] {
		t.Errorf("Bools = %v, want [false]", got)
	}
	// Goto successors are all offered, so a default run can fall through an
	// unsatisfiable branch to the next label.
	if got := d.Indices(3); len(got) != 3 {
		t.Errorf("Indices = %v, want all three successors", got)
	}
}

func TestStreamOffersEveryAlternative(t *testing.T) {
	s := Stream{}
	dom := []int64{5, 6, 7}
	got := s.Ints(dom)
	if len(got) != len(dom) {
		t.Fatalf("Ints = %v, want all of %v", got, dom)
	}
	for i := range dom {
		if got[i] != dom[i] {
			t.Errorf("Ints[%d] = %d, want %d (natural order preserved)", i, got[i], dom[i])
		}
	}

	idx := s.Indices(4)
	if len(idx) != 4 {
		t.Fatalf("Indices(4) = %v, want 4 entries", idx)
	}
}

func TestStreamDoesNotAliasItsInputDomain(t *testing.T) {
	dom := []int64{1, 2, 3}
	got := Stream{}.Ints(dom)
	got[0] = 99
	if dom[0] != 1 {
		t.Error("Stream.Ints must return a copy, not alias the caller's slice")
	}
}

func TestRandomPermutesButKeepsAllElements(t *testing.T) {
	r := Random{Shuffle: rand.New(rand.NewSource(1)).Shuffle}
	dom := []int64{1, 2, 3, 4, 5}
	got := r.Ints(dom)

	sortedGot := append([]int64{}, got...)
	sort.Slice(sortedGot, func(i, j int) bool { return sortedGot[i] < sortedGot[j] })
	for i, v := range sortedGot {
		if v != dom[i] {
			t.Fatalf("Random.Ints dropped or duplicated elements: got %v from %v", got, dom)
		}
	}
}

func TestAllBoolValuesHasBothValues(t *testing.T) {
	got := AllBoolValues()
	if len(got) != 2 || got[0] == got[1] {
		t.Errorf("AllBoolValues = %v, want [false true]", got)
	}
}
