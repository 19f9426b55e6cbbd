// Package forkchoice implements the stake-weighted, depth-bounded chain
// selection rule used to decide whether to accept a peer's reported chain
// tip over our own. The rule is a pure function of the two tips and the
// wall clock, with no hidden state: longest chain wins, except that
// within a small height window a chain with at least twice the stake can
// override a slightly-taller one.
package forkchoice

import (
	"bytes"
	"time"
)

// Stake may override height only within MaxStakeOverrideDepth blocks,
// and only with at least MinStakeOverrideRatio times the taller chain's
// stake. Tips timestamped further than TimestampTolerance into the
// future are rejected outright.
const (
	MaxStakeOverrideDepth = 2
	MinStakeOverrideRatio = 2
	TimestampTolerance    = 60 * time.Second
)

// Tip describes one side's view of its chain head.
type Tip struct {
	Height      uint64
	Hash        [32]byte
	Timestamp   int64
	StakeWeight uint64
}

// Decision is the result of evaluating a peer's tip against our own.
type Decision struct {
	AcceptPeerChain bool
	StakeOverride   bool
	Reason          string
}

// Resolve decides whether to adopt the peer's chain. It is a pure
// function: given the same (our, peer, now) it always returns the same
// Decision.
func Resolve(our, peer Tip, now time.Time) Decision {
	if peer.Timestamp > now.Add(TimestampTolerance).Unix() {
		return Decision{AcceptPeerChain: false, Reason: "peer tip timestamp too far in the future"}
	}

	var deltaH int64
	if peer.Height >= our.Height {
		deltaH = int64(peer.Height - our.Height)
	} else {
		deltaH = int64(our.Height - peer.Height)
	}

	switch {
	case deltaH == 0:
		return resolveSameHeight(our, peer)
	case deltaH <= MaxStakeOverrideDepth:
		return resolveSmallGap(our, peer)
	default:
		return resolveLargeGap(our, peer)
	}
}

func resolveSameHeight(our, peer Tip) Decision {
	if our.Hash == peer.Hash {
		return Decision{AcceptPeerChain: false, Reason: "identical tip, not a fork"}
	}
	if peer.StakeWeight != our.StakeWeight && (peer.StakeWeight != 0 || our.StakeWeight != 0) {
		if peer.StakeWeight > our.StakeWeight {
			return Decision{AcceptPeerChain: true, Reason: "equal height, peer has greater stake weight"}
		}
		return Decision{AcceptPeerChain: false, Reason: "equal height, our stake weight is greater or equal"}
	}
	// Equal stake (or both zero): break by lexicographically smaller hash.
	if bytes.Compare(peer.Hash[:], our.Hash[:]) < 0 {
		return Decision{AcceptPeerChain: true, Reason: "equal height and stake, peer hash is lexicographically smaller"}
	}
	return Decision{AcceptPeerChain: false, Reason: "equal height and stake, our hash is lexicographically smaller or equal"}
}

func resolveSmallGap(our, peer Tip) Decision {
	var shorter, taller Tip
	var peerIsShorter bool
	if peer.Height < our.Height {
		shorter, taller = peer, our
		peerIsShorter = true
	} else {
		shorter, taller = our, peer
		peerIsShorter = false
	}

	// A zero-stake shorter chain never overrides: 0 >= 2*0 would
	// otherwise let an unstaked fork beat a longer unstaked chain.
	if shorter.StakeWeight > 0 && shorter.StakeWeight >= MinStakeOverrideRatio*taller.StakeWeight {
		// Shorter chain wins via stake override.
		return Decision{
			AcceptPeerChain: peerIsShorter,
			StakeOverride:   true,
			Reason:          "shorter chain holds at least 2x the stake weight of the taller chain",
		}
	}
	// Longer chain wins.
	return Decision{
		AcceptPeerChain: !peerIsShorter,
		Reason:          "within override depth but stake ratio insufficient, longer chain wins",
	}
}

func resolveLargeGap(our, peer Tip) Decision {
	return Decision{
		AcceptPeerChain: peer.Height > our.Height,
		Reason:          "gap exceeds stake-override depth, pure longest-chain rule applies",
	}
}
