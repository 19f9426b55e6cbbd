package forkchoice

// FinalityThreshold returns the minimum voting weight required to
// finalize at total voting weight w: floor(2w/3)+1. Two disjoint sets
// both meeting the threshold would need combined weight 2*(floor(2w/3)+1)
// > w, so at most one finalizing majority can exist at a time.
func FinalityThreshold(w uint64) uint64 {
	return 2*w/3 + 1
}

// MeetsFinality reports whether voted weight suffices to finalize
// against total weight w. Zero total weight never finalizes.
func MeetsFinality(voted, w uint64) bool {
	if w == 0 {
		return false
	}
	return voted >= FinalityThreshold(w)
}

// FinalityVote records one masternode's endorsement of a block hash.
type FinalityVote struct {
	Address string
	Weight  uint64
}

// TallyFinality sums distinct voters' weights for a block and reports
// whether they reach the finality threshold for total weight w.
// Duplicate addresses count once, first-wins, so a masternode cannot
// double-vote its own weight.
func TallyFinality(votes []FinalityVote, w uint64) (voted uint64, finalized bool) {
	seen := make(map[string]struct{}, len(votes))
	for _, v := range votes {
		if _, dup := seen[v.Address]; dup {
			continue
		}
		seen[v.Address] = struct{}{}
		voted += v.Weight
	}
	return voted, MeetsFinality(voted, w)
}
