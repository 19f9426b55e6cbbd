package reorg

import (
	"context"
	"errors"
	"fmt"

	"github.com/timecoin/timecoind/chain"
	"github.com/timecoin/timecoind/leader"
	"github.com/timecoin/timecoind/metrics"
	"github.com/timecoin/timecoind/store"
	"github.com/timecoin/timecoind/vdf"
	"github.com/timecoin/timecoind/wire"
)

// ErrIncompleteChain is returned when the candidate chain handed to Apply
// has a gap, a height below the common ancestor, or does not end at the
// resolution's TargetHeight.
var ErrIncompleteChain = errors.New("reorg: candidate chain is not a gap-free run to the target height")

// Coordinator drives one reorg.Driver instance through real chain data:
// finding the common ancestor against the local store, requesting the
// missing height ranges, validating every received block, and finally
// rolling the local store back to the common ancestor and reapplying the
// candidate chain. The Driver's phase transitions remain the single
// source of truth for resolution state; Coordinator only supplies the
// chain-data work each transition requires before it is called.
type Coordinator struct {
	driver       *Driver
	blocks       store.BlockStore
	peer         PeerHashes
	vdfCfg       vdf.Config
	minWitnesses int
}

// NewCoordinator builds a Coordinator over an existing Driver and the
// node's block store. peer supplies the out-of-band hash-at-height
// lookups the ancestor walk needs.
func NewCoordinator(driver *Driver, blocks store.BlockStore, peer PeerHashes, vdfCfg vdf.Config, minWitnesses int) *Coordinator {
	return &Coordinator{driver: driver, blocks: blocks, peer: peer, vdfCfg: vdfCfg, minWitnesses: minWitnesses}
}

// FindAncestor runs the FindingCommonAncestor phase: it walks the local
// store against peer's reported hashes and, on success, advances the
// resolution to RequestingBlocks via Driver.SetCommonAncestor.
func (c *Coordinator) FindAncestor(ctx context.Context, id string, peerTipHeight uint64) (uint64, error) {
	height, err := FindCommonAncestor(ctx, c.blocks, c.peer, peerTipHeight)
	if err != nil {
		c.driver.Fail(id, fmt.Sprintf("common ancestor search: %v", err))
		return 0, err
	}
	if err := c.driver.SetCommonAncestor(id, height); err != nil {
		return 0, err
	}
	return height, nil
}

// MissingRangesFor computes the height ranges still needed to fill the
// RequestingBlocks phase, given the heights already received for this
// resolution.
func (c *Coordinator) MissingRangesFor(ancestorHeight, targetHeight uint64, have map[uint64]struct{}) []wire.HeightRange {
	return MissingRanges(ancestorHeight+1, targetHeight, have)
}

// ValidateAndAdvance runs the ValidatingChain phase: it builds a
// ChainValidator anchored at (ancestorHeight, ancestorHash), validates
// every block in blocks concurrently, and on success advances the
// resolution to PerformingReorg via Driver.BlocksReceived followed by
// Driver.ChainValidated. blocks must be a gap-free, height-ascending run
// from ancestorHeight+1 to the resolution's TargetHeight.
func (c *Coordinator) ValidateAndAdvance(ctx context.Context, id string, ancestorHeight uint64, ancestorHash chain.Hash, blocks []*chain.Block, candidates []leader.Candidate) error {
	s, ok := c.driver.Get(id)
	if !ok {
		return ErrUnknownResolution
	}
	if err := validateContiguous(ancestorHeight, s.TargetHeight, blocks); err != nil {
		c.driver.Fail(id, err.Error())
		return err
	}

	validator := NewChainValidator(ancestorHeight, ancestorHash, blocks, candidates, c.vdfCfg, c.minWitnesses)
	if err := ValidateChain(ctx, blocks, validator); err != nil {
		c.driver.Fail(id, fmt.Sprintf("chain validation: %v", err))
		return err
	}

	if err := c.driver.BlocksReceived(id); err != nil {
		return err
	}
	if err := c.driver.ChainValidated(id); err != nil {
		return err
	}
	return nil
}

func validateContiguous(ancestorHeight, targetHeight uint64, blocks []*chain.Block) error {
	if uint64(len(blocks)) != targetHeight-ancestorHeight {
		return ErrIncompleteChain
	}
	want := ancestorHeight + 1
	for _, b := range blocks {
		if b.Header.Height != want {
			return ErrIncompleteChain
		}
		want++
	}
	return nil
}

// FinalizedTxIDs walks the local chain from ancestorHeight+1 to the
// current tip and collects every non-coinbase transaction id: the set of
// finalized transactions the candidate chain must preserve. Coinbase
// transactions are excluded since each chain mints its own.
func (c *Coordinator) FinalizedTxIDs(ancestorHeight uint64) ([]chain.Hash, error) {
	localBest, ok, err := c.blocks.BestHeight()
	if err != nil {
		return nil, err
	}
	var finalized []chain.Hash
	if !ok {
		return finalized, nil
	}
	for h := ancestorHeight + 1; h <= localBest; h++ {
		b, err := c.blocks.GetBlock(h)
		if err != nil {
			return nil, err
		}
		for _, tx := range b.Transactions {
			if tx.IsCoinbase() {
				continue
			}
			finalized = append(finalized, tx.ID())
		}
	}
	return finalized, nil
}

// Apply runs the PerformingReorg phase's defining behavior. It first
// enforces finalized-transaction protection against real chain data:
// every non-coinbase txid in local blocks (ancestorHeight, tip] must
// reappear somewhere in the candidate chain, or the resolution fails and
// the store is left untouched. Only then does it roll the local block
// store back to the common ancestor, reapply the candidate chain in
// order, and call Driver.Complete. The underlying store.BlockStore
// exposes no transaction/batch primitive, so the rollback/reapply is a
// best-effort, non-atomic sequence: on a storage error partway through,
// the store is left at whatever point the failure occurred and the
// resolution is marked Failed rather than Complete, surfacing the error
// to the caller for a node restart / resync rather than silently
// claiming success.
func (c *Coordinator) Apply(id string, ancestorHeight uint64, newChain []*chain.Block) error {
	finalized, err := c.FinalizedTxIDs(ancestorHeight)
	if err != nil {
		c.driver.Fail(id, fmt.Sprintf("collect finalized txids: %v", err))
		return err
	}
	newChainTxIDs := make(map[chain.Hash]struct{})
	for _, b := range newChain {
		for _, tx := range b.Transactions {
			newChainTxIDs[tx.ID()] = struct{}{}
		}
	}
	if err := c.driver.CheckFinalizedProtection(id, finalized, newChainTxIDs); err != nil {
		return err
	}

	localBest, ok, err := c.blocks.BestHeight()
	if err != nil {
		c.driver.Fail(id, fmt.Sprintf("read local best height: %v", err))
		return err
	}
	if ok {
		for h := localBest; h > ancestorHeight; h-- {
			if err := c.blocks.DeleteBlock(h); err != nil {
				c.driver.Fail(id, fmt.Sprintf("rollback delete height %d: %v", h, err))
				return err
			}
		}
	}

	if err := c.blocks.SetBestHeight(ancestorHeight); err != nil {
		c.driver.Fail(id, fmt.Sprintf("rewind tip to %d: %v", ancestorHeight, err))
		return err
	}

	for _, b := range newChain {
		if err := c.blocks.PutBlock(b); err != nil {
			c.driver.Fail(id, fmt.Sprintf("reapply height %d: %v", b.Header.Height, err))
			return err
		}
		metrics.BlocksInserted.Inc()
		metrics.ChainHeight.Set(int64(b.Header.Height))
	}
	metrics.ReorgsDetected.Inc()

	return c.driver.Complete(id)
}
