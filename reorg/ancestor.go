package reorg

import (
	"context"
	"errors"

	"github.com/timecoin/timecoind/chain"
	"github.com/timecoin/timecoind/store"
)

// ErrNoCommonAncestor is returned when the local chain and the peer's
// claimed chain share no common block down to height 0, which should
// never happen for two chains built on the same genesis block.
var ErrNoCommonAncestor = errors.New("reorg: no common ancestor found with peer")

// PeerHashes is the narrow, caller-supplied collaborator FindCommonAncestor
// queries for the peer's view of the chain at a given height. It is
// deliberately not part of wire.Transport: Transport's RequestBlocks is a
// fire-and-forget gossip-style request, while walking the ancestor search
// needs a synchronous per-height answer. Callers typically implement this
// over a request/response exchange layered on top of Transport.
type PeerHashes interface {
	HashAtHeight(ctx context.Context, height uint64) (chain.Hash, bool, error)
}

// FindCommonAncestor walks backward from the lower of the local and peer
// tip heights, comparing block hashes at each height, until it finds the
// highest height at which both chains agree. It descends linearly rather than via
// binary search since a divergent chain may re-agree below the fork point
// only at the shared genesis, and a linear walk is the simplest
// correct algorithm when no assumption about a single fork point is made.
func FindCommonAncestor(ctx context.Context, local store.BlockStore, peer PeerHashes, peerTipHeight uint64) (uint64, error) {
	localBest, ok, err := local.BestHeight()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNoCommonAncestor
	}

	height := localBest
	if peerTipHeight < height {
		height = peerTipHeight
	}

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		localBlock, err := local.GetBlock(height)
		if err != nil {
			return 0, err
		}
		peerHash, ok, err := peer.HashAtHeight(ctx, height)
		if err != nil {
			return 0, err
		}
		if ok && localBlock.Header.Hash() == peerHash {
			return height, nil
		}
		if height == 0 {
			return 0, ErrNoCommonAncestor
		}
		height--
	}
}
