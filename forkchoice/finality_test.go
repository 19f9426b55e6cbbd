package forkchoice

import "testing"

func TestFinalityThreshold(t *testing.T) {
	cases := []struct {
		total uint64
		want  uint64
	}{
		{total: 3, want: 3},
		{total: 4, want: 3},
		{total: 6, want: 5},
		{total: 100, want: 67},
		{total: 300, want: 201},
		{total: 1, want: 1},
	}
	for _, c := range cases {
		if got := FinalityThreshold(c.total); got != c.want {
			t.Errorf("FinalityThreshold(%d) = %d, want %d", c.total, got, c.want)
		}
	}
}

func TestNoTwoDisjointMajorities(t *testing.T) {
	// 2*threshold must exceed the total weight for every W, so two
	// disjoint sets cannot both finalize.
	for w := uint64(1); w <= 10_000; w++ {
		if 2*FinalityThreshold(w) <= w {
			t.Fatalf("W=%d: two disjoint sets of weight %d could both finalize", w, FinalityThreshold(w))
		}
	}
}

func TestMeetsFinality(t *testing.T) {
	if MeetsFinality(66, 100) {
		t.Fatalf("66/100 must not finalize (threshold 67)")
	}
	if !MeetsFinality(67, 100) {
		t.Fatalf("67/100 must finalize")
	}
	if MeetsFinality(1, 0) {
		t.Fatalf("zero total weight must never finalize")
	}
}

func TestTallyFinalityIgnoresDuplicateVoters(t *testing.T) {
	votes := []FinalityVote{
		{Address: "mn1", Weight: 40},
		{Address: "mn2", Weight: 30},
		{Address: "mn1", Weight: 40}, // replayed vote
	}
	voted, finalized := TallyFinality(votes, 100)
	if voted != 70 {
		t.Fatalf("voted = %d, want 70 (duplicate mn1 counted once)", voted)
	}
	if !finalized {
		t.Fatalf("70/100 should finalize")
	}

	voted, finalized = TallyFinality(votes[:2], 100)
	if voted != 70 || !finalized {
		t.Fatalf("70/100 should finalize, got voted=%d finalized=%v", voted, finalized)
	}

	_, finalized = TallyFinality(votes[:1], 100)
	if finalized {
		t.Fatalf("40/100 must not finalize")
	}
}
