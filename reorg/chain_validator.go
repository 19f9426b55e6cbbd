package reorg

import (
	"context"
	"errors"

	"github.com/timecoin/timecoind/chain"
	"github.com/timecoin/timecoind/leader"
	"github.com/timecoin/timecoind/metrics"
	"github.com/timecoin/timecoind/vdf"
)

// Sentinel errors for block-level chain validation.
var (
	ErrPrevHashMismatch     = errors.New("reorg: block's previous_hash does not match the preceding block")
	ErrMerkleRootMismatch   = errors.New("reorg: block's merkle_root does not match its transactions")
	ErrMissingDelayProof    = errors.New("reorg: block carries no VDF delay proof")
	ErrVDFProofInvalid      = errors.New("reorg: VDF delay proof failed verification")
	ErrMissingElectionProof = errors.New("reorg: block carries no VRF election proof")
	ErrUnknownLeader        = errors.New("reorg: block's claimed leader is not in the registry snapshot")
)

// ChainValidator is the concrete BlockValidator the ValidatingChain
// phase drives: it checks prev-hash linkage against a
// precomputed height->hash map (seeded with the common ancestor and every
// other block under validation, so each block's check is self-contained
// and safe to run concurrently via ValidateChain's errgroup), the merkle
// root, the VDF delay proof, the VRF leader proof, every transaction's
// signatures, the masternode reward schedule, and the attestation root.
type ChainValidator struct {
	hashes       map[uint64]chain.Hash
	candidates   map[string]leader.Candidate
	vdfConfig    vdf.Config
	minWitnesses int
}

// NewChainValidator builds a ChainValidator for one candidate chain
// segment: ancestorHeight/ancestorHash anchor the prev-hash walk, blocks
// is the full candidate segment (ancestor exclusive) so every block's own
// hash can be precomputed once up front, candidates is the registry
// snapshot active leader elections are checked against, and vdfConfig/
// minWitnesses mirror the node's live consensus parameters.
func NewChainValidator(ancestorHeight uint64, ancestorHash chain.Hash, blocks []*chain.Block, candidates []leader.Candidate, vdfConfig vdf.Config, minWitnesses int) *ChainValidator {
	hashes := make(map[uint64]chain.Hash, len(blocks)+1)
	hashes[ancestorHeight] = ancestorHash
	for _, b := range blocks {
		hashes[b.Header.Height] = b.Header.Hash()
	}

	byAddr := make(map[string]leader.Candidate, len(candidates))
	for _, c := range candidates {
		byAddr[c.Address] = c
	}

	return &ChainValidator{
		hashes:       hashes,
		candidates:   byAddr,
		vdfConfig:    vdfConfig,
		minWitnesses: minWitnesses,
	}
}

// ValidateBlock independently checks one block. It never mutates shared
// state, so it is safe to call concurrently across distinct blocks that
// share the same precomputed hashes map.
func (v *ChainValidator) ValidateBlock(ctx context.Context, b *chain.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer metrics.NewTimer(metrics.BlockProcessTime).Stop()

	prevHash, ok := v.hashes[b.Header.Height-1]
	if !ok || prevHash != b.Header.PreviousHash {
		return ErrPrevHashMismatch
	}

	if b.ComputeMerkleRoot() != b.Header.MerkleRoot {
		return ErrMerkleRootMismatch
	}

	// Both proofs are optional on the wire (a presence byte) and are not
	// covered by the header hash, so a peer could strip them from an
	// otherwise-valid block. Their absence is therefore a validation
	// failure, not a skip: every production block must carry its leader's
	// election proof, and a delay proof whenever the VDF is enabled.
	if b.Delay == nil {
		if v.vdfConfig.Iterations > 0 {
			return ErrMissingDelayProof
		}
	} else {
		input := vdf.GenerateInput(b.Header.Height, [32]byte(b.Header.PreviousHash), [32]byte(b.Header.MerkleRoot), b.Header.Timestamp)
		proof := &vdf.Proof{
			Output:      b.Delay.Output,
			Iterations:  b.Delay.Iterations,
			Checkpoints: b.Delay.Checkpoints,
		}
		if !vdf.Verify(input[:], proof, v.vdfConfig) {
			return ErrVDFProofInvalid
		}
	}

	if b.Election == nil {
		return ErrMissingElectionProof
	}
	leaderCandidate, ok := v.candidates[b.Header.Leader]
	if !ok {
		return ErrUnknownLeader
	}
	if err := leader.VerifyLeaderProof(leaderCandidate.PublicKey, b.Election.Output, b.Election.Proof, b.Header.PreviousHash, b.Header.Height); err != nil {
		return err
	}

	for _, tx := range b.Transactions {
		if err := chain.VerifyTransactionSignatures(tx); err != nil {
			return err
		}
	}

	rewardCandidates := make([]leader.RewardCandidate, 0, len(v.candidates))
	for _, c := range v.candidates {
		rewardCandidates = append(rewardCandidates, leader.RewardCandidate{Address: c.Address, Tier: c.Tier})
	}
	if err := leader.VerifyRewardSchedule(b.Header.BlockReward, rewardCandidates, b.MasternodeRewards); err != nil {
		return err
	}

	if err := leader.VerifyAttestationRoot(b, v.minWitnesses); err != nil {
		return err
	}

	return nil
}
