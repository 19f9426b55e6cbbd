package reorg

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/timecoin/timecoind/chain"
)

// BlockValidator independently validates one received block: prev-hash
// linkage, merkle root, VDF proof, VRF leader proof, transaction
// signatures, and reward correctness. Implementations are expected to be safe for concurrent use
// across distinct blocks, since ValidateChain calls them in parallel.
type BlockValidator interface {
	ValidateBlock(ctx context.Context, b *chain.Block) error
}

// BlockValidatorFunc adapts a plain function to BlockValidator.
type BlockValidatorFunc func(ctx context.Context, b *chain.Block) error

func (f BlockValidatorFunc) ValidateBlock(ctx context.Context, b *chain.Block) error {
	return f(ctx, b)
}

// ValidateChain independently validates every block in the candidate
// chain concurrently, since each block's validation (merkle root, VDF
// proof, VRF proof, signatures, reward correctness) depends only on that
// block and its already-trusted predecessor's hash, not on the other
// blocks under validation. It returns the first validation error
// encountered, cancelling the remaining in-flight validations via ctx.
func ValidateChain(ctx context.Context, blocks []*chain.Block, v BlockValidator) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, b := range blocks {
		b := b
		g.Go(func() error {
			return v.ValidateBlock(ctx, b)
		})
	}
	return g.Wait()
}
