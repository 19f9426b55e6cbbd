package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/timecoin/timecoind/chain"
	"github.com/timecoin/timecoind/leader"
	"github.com/timecoin/timecoind/reorg"
	"github.com/timecoin/timecoind/store"
	"github.com/timecoin/timecoind/vcrypto"
	"github.com/timecoin/timecoind/vdf"
)

// scenarioNode is one simulated masternode for the end-to-end consensus
// scenarios: its own keypair and its own local block store, so each
// node's view of the chain can be checked independently.
type scenarioNode struct {
	address string
	pub     chain.PublicKey
	priv    []byte
	db      *store.DB
	blocks  store.BlockStore
}

func newScenarioNode(t *testing.T, address string) *scenarioNode {
	t.Helper()
	pub, priv, err := vcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key for %s: %v", address, err)
	}
	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store for %s: %v", address, err)
	}
	t.Cleanup(func() { db.Close() })

	var pk chain.PublicKey
	copy(pk[:], pub)
	return &scenarioNode{address: address, pub: pk, priv: priv, db: db, blocks: db.BlockStore()}
}

func genesisBlock() *chain.Block {
	return &chain.Block{Header: &chain.BlockHeader{Height: 0}}
}

// electBlock runs one round of leader election among candidates and builds
// the resulting block carrying txs, with no reward/attestation entries
// (both BlockReward and TimeAttestations are empty, so the tier schedule
// and attestation-root checks trivially hold).
func electBlock(t *testing.T, candidates []leader.Candidate, keys map[string][]byte, prevHash chain.Hash, height uint64, ts int64, txs []*chain.Transaction) (*chain.Block, string) {
	t.Helper()

	tickets := make([]leader.Ticket, 0, len(candidates))
	for _, c := range candidates {
		tickets = append(tickets, leader.ComputeTicket(keys[c.Address], c, prevHash, height))
	}
	winner, err := leader.Elect(tickets)
	if err != nil {
		t.Fatalf("elect round %d: %v", height, err)
	}

	header := &chain.BlockHeader{
		Height:       height,
		PreviousHash: prevHash,
		Timestamp:    ts,
		Leader:       winner.Address,
	}
	block := &chain.Block{
		Header:       header,
		Transactions: txs,
		Election:     &chain.ElectionProof{Output: winner.Output, Proof: winner.Proof},
	}
	header.MerkleRoot = block.ComputeMerkleRoot()
	return block, winner.Address
}

// signedTransaction builds a non-coinbase transaction spending a made-up
// outpoint, with its single input's ScriptSig (pubkey || signature)
// signed by n's key over the transaction's signing preimage.
func signedTransaction(t *testing.T, n *scenarioNode, ts int64) *chain.Transaction {
	t.Helper()
	tx := &chain.Transaction{
		Version:   1,
		Inputs:    []chain.TxInput{{PreviousOutput: chain.OutPoint{TxID: chain.Hash{0xEE}, Vout: 0}}},
		Outputs:   []chain.TxOutput{{Value: 10, ScriptPubKey: []byte("pay")}},
		Timestamp: ts,
	}
	sig := vcrypto.Sign(n.priv, chain.TransactionSigningPreimage(tx))
	tx.Inputs[0].ScriptSig = append(append([]byte{}, n.pub[:]...), sig...)
	return tx
}

// TestHappyPath3NodeConsensus runs three equal-stake nodes through 30
// election rounds: every block is accepted by
// every node (gossip is lossless and immediate in this simulation), each
// node leads close to 10/30 rounds, and all three chain tips agree at
// the end.
func TestHappyPath3NodeConsensus(t *testing.T) {
	addrs := []string{"nodeA", "nodeB", "nodeC"}
	nodes := make(map[string]*scenarioNode, 3)
	keys := make(map[string][]byte, 3)
	candidates := make([]leader.Candidate, 0, 3)

	for _, a := range addrs {
		n := newScenarioNode(t, a)
		nodes[a] = n
		keys[a] = n.priv
		candidates = append(candidates, leader.Candidate{
			Address: a, PublicKey: n.pub, StakeWeight: 100, Tier: chain.TierGold,
		})
	}

	genesis := genesisBlock()
	for _, a := range addrs {
		if err := nodes[a].blocks.PutBlock(genesis); err != nil {
			t.Fatalf("seed genesis on %s: %v", a, err)
		}
	}

	const rounds = 30
	prevHash := genesis.Header.Hash()
	ts := int64(1_700_000_000)
	leaderCounts := make(map[string]int, 3)

	for slot := uint64(1); slot <= rounds; slot++ {
		block, winnerAddr := electBlock(t, candidates, keys, prevHash, slot, ts, nil)
		leaderCounts[winnerAddr]++

		winnerPub := nodes[winnerAddr].pub
		for _, a := range addrs {
			if err := leader.VerifyLeaderProof(winnerPub, block.Election.Output, block.Election.Proof, prevHash, slot); err != nil {
				t.Fatalf("node %s failed to verify round %d leader proof: %v", a, slot, err)
			}
			if err := nodes[a].blocks.PutBlock(block); err != nil {
				t.Fatalf("node %s failed to accept round %d block: %v", a, slot, err)
			}
		}

		prevHash = block.Header.Hash()
		ts += 30
	}

	for _, a := range addrs {
		count := leaderCounts[a]
		if count < 10-4 || count > 10+4 {
			t.Errorf("node %s led %d/%d rounds, want within 4 of 10", a, count, rounds)
		}
	}

	var refHash chain.Hash
	for i, a := range addrs {
		best, ok, err := nodes[a].blocks.BestHeight()
		if err != nil || !ok {
			t.Fatalf("node %s best height: ok=%v err=%v", a, ok, err)
		}
		if best != rounds {
			t.Fatalf("node %s tip height = %d, want %d", a, best, rounds)
		}
		blk, err := nodes[a].blocks.GetBlock(best)
		if err != nil {
			t.Fatalf("node %s get tip block: %v", a, err)
		}
		h := blk.Header.Hash()
		if i == 0 {
			refHash = h
			continue
		}
		if h != refHash {
			t.Fatalf("node %s tip hash diverges from %s", a, addrs[0])
		}
	}
}

// storePeerHashes adapts a store.BlockStore to reorg.PeerHashes, the
// narrow collaborator FindCommonAncestor queries for a peer's view of the
// chain, for the case where the "peer" in this simulation is simply
// another node's local store.
type storePeerHashes struct {
	blocks store.BlockStore
}

func (p storePeerHashes) HashAtHeight(ctx context.Context, height uint64) (chain.Hash, bool, error) {
	b, err := p.blocks.GetBlock(height)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return chain.Hash{}, false, nil
		}
		return chain.Hash{}, false, err
	}
	return b.Header.Hash(), true, nil
}

// TestMinorityPartitionRecovery simulates a partition: a two-node
// majority {A,B} produces three blocks while the isolated
// minority node C produces one conflicting block of its own; on
// reconnect, C's reorg.Coordinator finds the common ancestor below the
// fork, validates the majority's three blocks, and rolls its local store
// back and forward onto them. C's diverging block carries a finalized
// (non-coinbase) transaction that the majority chain also includes in a
// different block, so Apply's finalized-transaction protection passes on
// set membership, not position. A second resolution attempt after
// convergence must find the ancestor already at the tip, so no further
// reorg work is triggered.
func TestMinorityPartitionRecovery(t *testing.T) {
	nodeA := newScenarioNode(t, "nodeA")
	nodeB := newScenarioNode(t, "nodeB")
	nodeC := newScenarioNode(t, "nodeC")

	genesis := genesisBlock()
	genesisHash := genesis.Header.Hash()
	for _, n := range []*scenarioNode{nodeA, nodeB, nodeC} {
		if err := n.blocks.PutBlock(genesis); err != nil {
			t.Fatalf("seed genesis on %s: %v", n.address, err)
		}
	}

	// The transaction both sides of the partition confirmed: it sits in
	// C's local height-1 block, so C treats it as finalized and the
	// majority chain must carry it somewhere for the reorg to proceed.
	ts := int64(1_700_000_000)
	sharedTx := signedTransaction(t, nodeC, ts)

	majorityCandidates := []leader.Candidate{
		{Address: nodeA.address, PublicKey: nodeA.pub, StakeWeight: 100, Tier: chain.TierGold},
		{Address: nodeB.address, PublicKey: nodeB.pub, StakeWeight: 100, Tier: chain.TierGold},
	}
	majorityKeys := map[string][]byte{nodeA.address: nodeA.priv, nodeB.address: nodeB.priv}

	prevHash := genesisHash
	var majorityBlocks []*chain.Block
	for height := uint64(1); height <= 3; height++ {
		// The majority confirms sharedTx later than C did, at height 2.
		var txs []*chain.Transaction
		if height == 2 {
			txs = []*chain.Transaction{sharedTx}
		}
		block, _ := electBlock(t, majorityCandidates, majorityKeys, prevHash, height, ts, txs)
		if err := nodeA.blocks.PutBlock(block); err != nil {
			t.Fatalf("nodeA accept height %d: %v", height, err)
		}
		if err := nodeB.blocks.PutBlock(block); err != nil {
			t.Fatalf("nodeB accept height %d: %v", height, err)
		}
		majorityBlocks = append(majorityBlocks, block)
		prevHash = block.Header.Hash()
		ts += 30
	}
	majorityTipHash := prevHash

	// Minority node C, isolated from A/B, produces its own diverging
	// height-1 block referencing only itself as a candidate.
	minorityCandidates := []leader.Candidate{
		{Address: nodeC.address, PublicKey: nodeC.pub, StakeWeight: 50, Tier: chain.TierSilver},
	}
	minorityKeys := map[string][]byte{nodeC.address: nodeC.priv}
	minorityBlock, _ := electBlock(t, minorityCandidates, minorityKeys, genesisHash, 1, ts+1000, []*chain.Transaction{sharedTx})
	if err := nodeC.blocks.PutBlock(minorityBlock); err != nil {
		t.Fatalf("nodeC accept its own height 1 block: %v", err)
	}
	if minorityBlock.Header.Hash() == majorityBlocks[0].Header.Hash() {
		t.Fatal("expected the minority and majority height-1 blocks to diverge")
	}

	driver := reorg.NewDriver(reorg.MaxConcurrentResolutions)
	peer := storePeerHashes{blocks: nodeA.blocks}
	coordinator := reorg.NewCoordinator(driver, nodeC.blocks, peer, vdf.DisabledConfig(), 0)

	ctx := context.Background()
	startTime := time.Unix(1_700_001_000, 0)
	const resolutionID = "nodeC-reconnect"
	if _, err := driver.Start(resolutionID, nodeA.address, 3, majorityTipHash, startTime); err != nil {
		t.Fatalf("start resolution: %v", err)
	}

	ancestorHeight, err := coordinator.FindAncestor(ctx, resolutionID, 3)
	if err != nil {
		t.Fatalf("find common ancestor: %v", err)
	}
	if ancestorHeight != 0 {
		t.Fatalf("expected common ancestor at height 0 (genesis), got %d", ancestorHeight)
	}

	missing := coordinator.MissingRangesFor(ancestorHeight, 3, map[uint64]struct{}{})
	if len(missing) != 1 || missing[0].From != 1 || missing[0].To != 3 {
		t.Fatalf("expected a single [1,3] missing range, got %+v", missing)
	}

	if err := coordinator.ValidateAndAdvance(ctx, resolutionID, ancestorHeight, genesisHash, majorityBlocks, majorityCandidates); err != nil {
		t.Fatalf("validate candidate chain: %v", err)
	}

	finalized, err := coordinator.FinalizedTxIDs(ancestorHeight)
	if err != nil {
		t.Fatalf("collect finalized txids: %v", err)
	}
	if len(finalized) != 1 || finalized[0] != sharedTx.ID() {
		t.Fatalf("expected C's finalized set to be exactly {sharedTx}, got %v", finalized)
	}

	if err := coordinator.Apply(resolutionID, ancestorHeight, majorityBlocks); err != nil {
		t.Fatalf("apply reorg: %v", err)
	}

	s, _ := driver.Get(resolutionID)
	if s.Phase != reorg.PhaseComplete {
		t.Fatalf("expected resolution Complete, got %v", s.Phase)
	}

	best, ok, err := nodeC.blocks.BestHeight()
	if err != nil || !ok || best != 3 {
		t.Fatalf("nodeC tip after reorg: height=%d ok=%v err=%v", best, ok, err)
	}
	tip, err := nodeC.blocks.GetBlock(best)
	if err != nil {
		t.Fatalf("nodeC get tip: %v", err)
	}
	if tip.Header.Hash() != majorityTipHash {
		t.Fatalf("nodeC tip hash does not match the majority chain after reorg")
	}

	// A second resolution attempt after convergence must find the
	// ancestor already at the tip, so nothing further is requested or
	// reapplied: no second reorg occurs on a re-run.
	const secondResolutionID = "nodeC-reconnect-again"
	if _, err := driver.Start(secondResolutionID, nodeA.address, 3, majorityTipHash, startTime); err != nil {
		t.Fatalf("start second resolution: %v", err)
	}
	secondAncestor, err := coordinator.FindAncestor(ctx, secondResolutionID, 3)
	if err != nil {
		t.Fatalf("second find common ancestor: %v", err)
	}
	if secondAncestor != 3 {
		t.Fatalf("expected second resolution's ancestor to already be at the tip (3), got %d", secondAncestor)
	}
	if again := coordinator.MissingRangesFor(secondAncestor, 3, map[uint64]struct{}{}); len(again) != 0 {
		t.Fatalf("expected no missing ranges on re-run, got %+v", again)
	}
}

// TestFinalizedTxProtectionBlocksReorg drives the same partition shape
// but with a finalized transaction only the local chain confirmed: the
// candidate chain omits it, so Apply must refuse the reorg and leave the
// local store untouched.
func TestFinalizedTxProtectionBlocksReorg(t *testing.T) {
	nodeA := newScenarioNode(t, "nodeA")
	nodeC := newScenarioNode(t, "nodeC")

	genesis := genesisBlock()
	genesisHash := genesis.Header.Hash()
	for _, n := range []*scenarioNode{nodeA, nodeC} {
		if err := n.blocks.PutBlock(genesis); err != nil {
			t.Fatalf("seed genesis on %s: %v", n.address, err)
		}
	}

	ts := int64(1_700_000_000)
	localOnlyTx := signedTransaction(t, nodeC, ts)

	peerCandidates := []leader.Candidate{
		{Address: nodeA.address, PublicKey: nodeA.pub, StakeWeight: 100, Tier: chain.TierGold},
	}
	peerKeys := map[string][]byte{nodeA.address: nodeA.priv}

	prevHash := genesisHash
	var peerBlocks []*chain.Block
	for height := uint64(1); height <= 3; height++ {
		block, _ := electBlock(t, peerCandidates, peerKeys, prevHash, height, ts, nil)
		if err := nodeA.blocks.PutBlock(block); err != nil {
			t.Fatalf("nodeA accept height %d: %v", height, err)
		}
		peerBlocks = append(peerBlocks, block)
		prevHash = block.Header.Hash()
		ts += 30
	}

	localCandidates := []leader.Candidate{
		{Address: nodeC.address, PublicKey: nodeC.pub, StakeWeight: 50, Tier: chain.TierSilver},
	}
	localKeys := map[string][]byte{nodeC.address: nodeC.priv}
	localBlock, _ := electBlock(t, localCandidates, localKeys, genesisHash, 1, ts+1000, []*chain.Transaction{localOnlyTx})
	if err := nodeC.blocks.PutBlock(localBlock); err != nil {
		t.Fatalf("nodeC accept its own height 1 block: %v", err)
	}
	localTipHash := localBlock.Header.Hash()

	driver := reorg.NewDriver(reorg.MaxConcurrentResolutions)
	coordinator := reorg.NewCoordinator(driver, nodeC.blocks, storePeerHashes{blocks: nodeA.blocks}, vdf.DisabledConfig(), 0)

	ctx := context.Background()
	const resolutionID = "nodeC-protected"
	if _, err := driver.Start(resolutionID, nodeA.address, 3, prevHash, time.Unix(1_700_001_000, 0)); err != nil {
		t.Fatalf("start resolution: %v", err)
	}
	ancestorHeight, err := coordinator.FindAncestor(ctx, resolutionID, 3)
	if err != nil {
		t.Fatalf("find common ancestor: %v", err)
	}
	if err := coordinator.ValidateAndAdvance(ctx, resolutionID, ancestorHeight, genesisHash, peerBlocks, peerCandidates); err != nil {
		t.Fatalf("validate candidate chain: %v", err)
	}

	if err := coordinator.Apply(resolutionID, ancestorHeight, peerBlocks); !errors.Is(err, reorg.ErrFinalizedTxMissing) {
		t.Fatalf("expected ErrFinalizedTxMissing from Apply, got %v", err)
	}

	s, _ := driver.Get(resolutionID)
	if s.Phase != reorg.PhaseFailed || s.FailureReason != "finalized-tx protection" {
		t.Fatalf("expected resolution Failed with finalized-tx reason, got %+v", s)
	}

	// The refused reorg must not have touched the local chain.
	best, ok, err := nodeC.blocks.BestHeight()
	if err != nil || !ok || best != 1 {
		t.Fatalf("nodeC tip after refused reorg: height=%d ok=%v err=%v", best, ok, err)
	}
	tip, err := nodeC.blocks.GetBlock(best)
	if err != nil {
		t.Fatalf("nodeC get tip: %v", err)
	}
	if tip.Header.Hash() != localTipHash {
		t.Fatalf("nodeC tip changed despite refused reorg")
	}
}
