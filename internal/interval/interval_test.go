package interval

import "testing"

func TestMeetNarrows(t *testing.T) {
	a := Range(0, 10)
	b := Range(5, 20)
	got := Meet(a, b)
	want := Range(5, 10)
	if !LessOrEqual(got, want) || !LessOrEqual(want, got) {
		t.Errorf("Meet(%v, %v) = %v, want %v", a, b, got, want)
	}
}

func TestMeetDisjointIsBottom(t *testing.T) {
	got := Meet(Range(0, 1), Range(5, 6))
	if !got.IsBottom() {
		t.Errorf("Meet of disjoint ranges = %v, want bottom", got)
	}
}

func TestJoinWidens(t *testing.T) {
	got := Join(Range(0, 1), Range(5, 6))
	if !LessOrEqual(Range(0, 1), got) || !LessOrEqual(Range(5, 6), got) {
		t.Errorf("Join(%v) does not cover both operands", got)
	}
}

func TestBottomAbsorbsInMeet(t *testing.T) {
	if !Meet(Bottom(), Top()).IsBottom() {
		t.Error("Meet(bottom, top) should be bottom")
	}
}

func TestValuesEnumeratesInclusive(t *testing.T) {
	got := Range(0, 3).Values()
	want := []int64{0, 1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestRefinementNeverEnlarges(t *testing.T) {
	// Repeatedly meeting with a fixed interval must only ever narrow,
	// never enlarge.
	cur := Top()
	steps := []Interval{Range(-100, 100), Range(0, 50), Range(10, 40)}
	for _, s := range steps {
		next := Meet(cur, s)
		if !LessOrEqual(next, cur) {
			t.Fatalf("refinement enlarged: %v -> %v", cur, next)
		}
		cur = next
	}
}
