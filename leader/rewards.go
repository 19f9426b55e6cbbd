package leader

import (
	"errors"
	"math/big"
	"sort"

	"github.com/timecoin/timecoind/chain"
	"github.com/timecoin/timecoind/heartbeat"
	"github.com/timecoin/timecoind/vcrypto"
)

// Sentinel errors for reward-schedule and attestation-root verification.
var (
	ErrRewardScheduleMismatch  = errors.New("leader: masternode_rewards does not match the tier schedule")
	ErrAttestationRootMismatch = errors.New("leader: attestation_root does not cover the block's verified heartbeats")
)

// TierWeights assigns each masternode tier a relative share of the block
// reward: free-tier masternodes earn nothing, and each paid tier up from
// bronze doubles the prior tier's share.
var TierWeights = map[chain.MasternodeTier]uint64{
	chain.TierFree:   0,
	chain.TierBronze: 1,
	chain.TierSilver: 2,
	chain.TierGold:   4,
}

// RewardCandidate is one masternode eligible for a share of a block's
// reward, keyed by the tier its registry profile currently holds.
type RewardCandidate struct {
	Address string
	Tier    chain.MasternodeTier
}

// ComputeRewardSchedule distributes totalReward across candidates in
// proportion to their tier weight, using the largest-remainder method so
// the distributed amounts always sum to exactly totalReward. Free-tier (or
// otherwise zero-weight) candidates receive nothing. Ties in the
// remainder step are broken by ascending address, so the computation is
// deterministic given the same candidate set.
func ComputeRewardSchedule(totalReward uint64, candidates []RewardCandidate) []chain.RewardEntry {
	var totalWeight uint64
	for _, c := range candidates {
		totalWeight += TierWeights[c.Tier]
	}
	if totalWeight == 0 || totalReward == 0 {
		return nil
	}

	type share struct {
		addr      string
		base      uint64
		remainder *big.Int
	}

	total := new(big.Int).SetUint64(totalReward)
	weightSum := new(big.Int).SetUint64(totalWeight)

	shares := make([]share, 0, len(candidates))
	var distributed uint64
	for _, c := range candidates {
		w := TierWeights[c.Tier]
		if w == 0 {
			continue
		}
		num := new(big.Int).Mul(total, new(big.Int).SetUint64(w))
		base := new(big.Int).Quo(num, weightSum)
		rem := new(big.Int).Mod(num, weightSum)
		shares = append(shares, share{addr: c.Address, base: base.Uint64(), remainder: rem})
		distributed += base.Uint64()
	}

	leftover := totalReward - distributed
	sort.SliceStable(shares, func(i, j int) bool {
		cmp := shares[i].remainder.Cmp(shares[j].remainder)
		if cmp != 0 {
			return cmp > 0
		}
		return shares[i].addr < shares[j].addr
	})
	for i := uint64(0); i < leftover && i < uint64(len(shares)); i++ {
		shares[i].base++
	}

	entries := make([]chain.RewardEntry, 0, len(shares))
	for _, s := range shares {
		if s.base == 0 {
			continue
		}
		entries = append(entries, chain.RewardEntry{Address: s.addr, Amount: s.base})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Address < entries[j].Address })
	return entries
}

// VerifyRewardSchedule reports whether actual matches the tier schedule
// computed for totalReward across candidates.
func VerifyRewardSchedule(totalReward uint64, candidates []RewardCandidate, actual []chain.RewardEntry) error {
	expected := ComputeRewardSchedule(totalReward, candidates)

	got := make(map[string]uint64, len(actual))
	for _, r := range actual {
		got[r.Address] += r.Amount
	}
	want := make(map[string]uint64, len(expected))
	for _, r := range expected {
		want[r.Address] += r.Amount
	}

	if len(got) != len(want) {
		return ErrRewardScheduleMismatch
	}
	for addr, amount := range want {
		if got[addr] != amount {
			return ErrRewardScheduleMismatch
		}
	}
	return nil
}

// ComputeAttestationRoot derives the root that BlockHeader.AttestationRoot
// must equal: the BLAKE3 merkle root over the hashes of every heartbeat in
// the block's TimeAttestations that has reached quorum (at least
// minWitnesses distinct witnesses), in the order they appear in the block.
// Heartbeats that never reached quorum are not part of the committed set
// and so do not contribute to the root.
func ComputeAttestationRoot(attestations []chain.AttestedHeartbeat, minWitnesses int) chain.Hash {
	leaves := make([][]byte, 0, len(attestations))
	for _, ah := range attestations {
		if !ah.IsVerified(minWitnesses) {
			continue
		}
		h := heartbeat.HeartbeatHash(ah.Heartbeat)
		leaves = append(leaves, h[:])
	}
	if len(leaves) == 0 {
		return chain.Hash{}
	}
	return chain.Hash(vcrypto.MerkleRoot(leaves))
}

// VerifyAttestationRoot checks that a block's header.AttestationRoot
// covers exactly the set of verified heartbeats referenced in its
// TimeAttestations.
func VerifyAttestationRoot(b *chain.Block, minWitnesses int) error {
	want := ComputeAttestationRoot(b.TimeAttestations, minWitnesses)
	if want != b.Header.AttestationRoot {
		return ErrAttestationRootMismatch
	}
	return nil
}
