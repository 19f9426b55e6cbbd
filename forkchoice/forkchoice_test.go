package forkchoice

import (
	"testing"
	"time"
)

var now = time.Unix(1_700_000_000, 0)

func TestResolveRejectsFutureTimestamp(t *testing.T) {
	our := Tip{Height: 100, Hash: [32]byte{1}, Timestamp: now.Unix()}
	peer := Tip{Height: 101, Hash: [32]byte{2}, Timestamp: now.Add(61 * time.Second).Unix()}
	d := Resolve(our, peer, now)
	if d.AcceptPeerChain {
		t.Fatalf("expected rejection of tip with timestamp beyond tolerance")
	}
}

func TestResolveAcceptsTimestampAtTolerance(t *testing.T) {
	our := Tip{Height: 100, Hash: [32]byte{1}, Timestamp: now.Unix()}
	peer := Tip{Height: 101, Hash: [32]byte{2}, Timestamp: now.Add(60 * time.Second).Unix()}
	d := Resolve(our, peer, now)
	if !d.AcceptPeerChain {
		t.Fatalf("expected acceptance at exactly the tolerance boundary, got %+v", d)
	}
}

func TestResolveSameHeightIdenticalHashNotAFork(t *testing.T) {
	hash := [32]byte{9}
	our := Tip{Height: 100, Hash: hash, StakeWeight: 50}
	peer := Tip{Height: 100, Hash: hash, StakeWeight: 50}
	d := Resolve(our, peer, now)
	if d.AcceptPeerChain {
		t.Fatalf("expected no acceptance for identical tip")
	}
}

func TestResolveSameHeightHigherStakeWins(t *testing.T) {
	our := Tip{Height: 100, Hash: [32]byte{1}, StakeWeight: 50}
	peer := Tip{Height: 100, Hash: [32]byte{2}, StakeWeight: 100}
	d := Resolve(our, peer, now)
	if !d.AcceptPeerChain {
		t.Fatalf("expected peer with higher stake to win")
	}
	if d.StakeOverride {
		t.Fatalf("same-height stake comparison is not a 'stake override'")
	}
}

func TestResolveSameHeightEqualStakeBreaksByHash(t *testing.T) {
	our := Tip{Height: 100, Hash: [32]byte{5}, StakeWeight: 50}
	peer := Tip{Height: 100, Hash: [32]byte{2}, StakeWeight: 50}
	d := Resolve(our, peer, now)
	if !d.AcceptPeerChain {
		t.Fatalf("expected peer with lexicographically smaller hash to win")
	}
}

func TestResolveSmallGapStakeOverride(t *testing.T) {
	// Peer is 2 blocks behind but holds >= 2x our stake weight: peer wins.
	our := Tip{Height: 102, Hash: [32]byte{1}, StakeWeight: 40}
	peer := Tip{Height: 100, Hash: [32]byte{2}, StakeWeight: 80}
	d := Resolve(our, peer, now)
	if !d.AcceptPeerChain || !d.StakeOverride {
		t.Fatalf("expected stake override in favor of shorter, heavier-staked peer, got %+v", d)
	}
}

func TestResolveSmallGapInsufficientStakeLongerWins(t *testing.T) {
	our := Tip{Height: 102, Hash: [32]byte{1}, StakeWeight: 60}
	peer := Tip{Height: 100, Hash: [32]byte{2}, StakeWeight: 80}
	d := Resolve(our, peer, now)
	if d.AcceptPeerChain {
		t.Fatalf("expected our longer chain to win when peer's stake ratio is insufficient, got %+v", d)
	}
	if d.StakeOverride {
		t.Fatalf("did not expect stake override")
	}
}

func TestResolveLargeGapPureLongestChain(t *testing.T) {
	our := Tip{Height: 100, Hash: [32]byte{1}, StakeWeight: 1_000_000}
	peer := Tip{Height: 105, Hash: [32]byte{2}, StakeWeight: 1}
	d := Resolve(our, peer, now)
	if !d.AcceptPeerChain {
		t.Fatalf("expected pure longest-chain rule to ignore stake beyond override depth")
	}
	if d.StakeOverride {
		t.Fatalf("did not expect stake override for large gap")
	}
}

func TestResolveLargeGapOurChainLonger(t *testing.T) {
	our := Tip{Height: 110, Hash: [32]byte{1}, StakeWeight: 1}
	peer := Tip{Height: 100, Hash: [32]byte{2}, StakeWeight: 1_000_000}
	d := Resolve(our, peer, now)
	if d.AcceptPeerChain {
		t.Fatalf("expected our longer chain to be retained regardless of peer stake")
	}
}

func TestResolveExactlyAtOverrideDepthBoundary(t *testing.T) {
	our := Tip{Height: 102, Hash: [32]byte{1}, StakeWeight: 10}
	peer := Tip{Height: 100, Hash: [32]byte{2}, StakeWeight: 100}
	d := Resolve(our, peer, now)
	if !d.AcceptPeerChain || !d.StakeOverride {
		t.Fatalf("expected delta-height of exactly 2 to still use override rule, got %+v", d)
	}
}

func TestResolveStakeOverrideExactRatioBoundary(t *testing.T) {
	// 1.99x the taller chain's stake is not enough; exactly 2x is.
	our := Tip{Height: 101, Hash: [32]byte{1}, StakeWeight: 100}
	peer := Tip{Height: 100, Hash: [32]byte{2}, StakeWeight: 199}
	if d := Resolve(our, peer, now); d.AcceptPeerChain {
		t.Fatalf("199 vs 100 stake must not override, got %+v", d)
	}
	peer.StakeWeight = 200
	d := Resolve(our, peer, now)
	if !d.AcceptPeerChain || !d.StakeOverride {
		t.Fatalf("200 vs 100 stake must override, got %+v", d)
	}
}

func TestResolveSmallGapZeroStakesLongerWins(t *testing.T) {
	our := Tip{Height: 101, Hash: [32]byte{1}}
	peer := Tip{Height: 100, Hash: [32]byte{2}}
	d := Resolve(our, peer, now)
	if d.AcceptPeerChain || d.StakeOverride {
		t.Fatalf("unstaked shorter chain must not override, got %+v", d)
	}
}
