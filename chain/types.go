// Package chain defines the canonical data model of the masternode core:
// block headers, blocks, transactions, heartbeats, masternode profiles, and
// the derived consensus structures (VDF/ECVRF proofs, chain tips). Headers
// and transactions cache their
// hashes behind an atomic pointer, so Hash()/ID() are cheap after the
// first call.
package chain

import (
	"sync/atomic"

	"github.com/timecoin/timecoind/vcrypto"
)

// Hash is a 32-byte digest used throughout the core.
type Hash [32]byte

// PublicKey is a 32-byte Ed25519 public key.
type PublicKey [32]byte

// Signature is a 64-byte Ed25519 signature.
type Signature [64]byte

// BlockHeader is the immutable per-block header.
type BlockHeader struct {
	Version              uint32
	Height               uint64
	PreviousHash         Hash
	MerkleRoot           Hash
	Timestamp            int64 // signed seconds
	BlockReward          uint64
	Leader               string
	AttestationRoot      Hash
	MasternodeTierCounts [4]uint32 // Free, Bronze, Silver, Gold

	hash atomic.Pointer[Hash]
}

// Hash returns the SHA-256 hash of the header's canonical encoding,
// caching the result.
func (h *BlockHeader) Hash() Hash {
	if cached := h.hash.Load(); cached != nil {
		return *cached
	}
	enc, err := EncodeHeader(h)
	if err != nil {
		// Encoding a well-formed header never fails; a panic here would
		// indicate a programming error in EncodeHeader itself.
		panic(err)
	}
	hash := Hash(vcrypto.Hash256(enc))
	h.hash.Store(&hash)
	return hash
}

// RewardEntry pays `Amount` to `Address` as a masternode reward.
type RewardEntry struct {
	Address string
	Amount  uint64
}

// ElectionProof is the winning leader's ECVRF output and proof for the
// slot, evaluated over leader.ElectionInput(previous_hash, slot).
type ElectionProof struct {
	Output [32]byte
	Proof  []byte
}

// DelayProof is the VDF proof gating block production, evaluated over
// vdf.GenerateInput(height, previous_hash, merkle_root, timestamp).
type DelayProof struct {
	Output      [32]byte
	Iterations  uint64
	Checkpoints [][32]byte
}

// Block is a header plus its ordered transactions, masternode reward
// distribution, the time attestations referenced by AttestationRoot, and
// the leader's election/delay proofs.
type Block struct {
	Header            *BlockHeader
	Transactions      []*Transaction
	MasternodeRewards []RewardEntry
	TimeAttestations  []AttestedHeartbeat
	Election          *ElectionProof
	Delay             *DelayProof
}

// ComputeMerkleRoot returns the BLAKE3 merkle root over the block's
// transaction IDs.
func (b *Block) ComputeMerkleRoot() Hash {
	leaves := make([][]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		txid := tx.ID()
		leaves[i] = txid[:]
	}
	return Hash(vcrypto.MerkleRoot(leaves))
}

// TotalRewards sums the masternode reward distribution.
func (b *Block) TotalRewards() uint64 {
	var total uint64
	for _, r := range b.MasternodeRewards {
		total += r.Amount
	}
	return total
}

// OutPoint references a prior transaction's output by (txid, vout).
type OutPoint struct {
	TxID Hash
	Vout uint32
}

// TxInput spends a prior unspent output.
type TxInput struct {
	PreviousOutput OutPoint
	ScriptSig      []byte
	Sequence       uint32
}

// TxOutput is a value locked by a script.
type TxOutput struct {
	Value        uint64
	ScriptPubKey []byte
}

// Transaction is a UTXO-model transaction.
type Transaction struct {
	Version   uint32
	Inputs    []TxInput
	Outputs   []TxOutput
	LockTime  uint32
	Timestamp int64

	id atomic.Pointer[Hash]
}

// ID returns the transaction's hash (its txid), caching the result.
func (tx *Transaction) ID() Hash {
	if cached := tx.id.Load(); cached != nil {
		return *cached
	}
	enc, err := EncodeTransaction(tx)
	if err != nil {
		panic(err)
	}
	id := Hash(vcrypto.Hash256(enc))
	tx.id.Store(&id)
	return id
}

// IsCoinbase reports whether tx has no inputs, the convention this repo
// uses for masternode/coinbase reward transactions. Coinbase transactions
// are excluded from the finalized-transaction set during reorgs.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 0
}

// MasternodeTier is the reward/stake tier a masternode occupies.
type MasternodeTier uint8

const (
	TierFree MasternodeTier = iota
	TierBronze
	TierSilver
	TierGold
)

func (t MasternodeTier) String() string {
	switch t {
	case TierFree:
		return "free"
	case TierBronze:
		return "bronze"
	case TierSilver:
		return "silver"
	case TierGold:
		return "gold"
	default:
		return "unknown"
	}
}

// MasternodeStatus is the lifecycle state of a MasternodeProfile.
type MasternodeStatus uint8

const (
	StatusRegistered MasternodeStatus = iota
	StatusActive
	StatusInactive
	StatusDeregistered
)

// MasternodeProfile tracks a single masternode's tier, stake, and liveness.
type MasternodeProfile struct {
	Address                string
	PublicKey              PublicKey
	Tier                   MasternodeTier
	StakeWeight            uint64
	VerifiedHeartbeatCount uint64
	CollateralLocked       uint64
	Status                 MasternodeStatus
}

// ChainTip describes the head of a locally-observed chain.
type ChainTip struct {
	Height               uint64
	Hash                 Hash
	CumulativeStakeWeight uint64
	TipTimestamp         int64
}
