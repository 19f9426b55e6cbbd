package reorg

import "github.com/timecoin/timecoind/wire"

// MissingRanges computes the contiguous [From, To] height ranges within
// [from, to] that are absent from have, suitable for a wire.RequestBlocks
// during the RequestingBlocks phase. have need only
// contain the heights already present locally or already received in this
// resolution; heights outside [from, to] are ignored.
func MissingRanges(from, to uint64, have map[uint64]struct{}) []wire.HeightRange {
	var ranges []wire.HeightRange
	if to < from {
		return ranges
	}

	inGap := false
	var gapStart uint64
	for h := from; ; h++ {
		_, present := have[h]
		if !present && !inGap {
			inGap = true
			gapStart = h
		} else if present && inGap {
			ranges = append(ranges, wire.HeightRange{From: gapStart, To: h - 1})
			inGap = false
		}
		if h == to {
			break
		}
	}
	if inGap {
		ranges = append(ranges, wire.HeightRange{From: gapStart, To: to})
	}
	return ranges
}
