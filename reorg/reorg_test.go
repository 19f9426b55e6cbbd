package reorg

import (
	"testing"
	"time"

	"github.com/timecoin/timecoind/chain"
)

var now = time.Unix(1_700_000_000, 0)

func TestStartRefusesAtCapacity(t *testing.T) {
	d := NewDriver(2)
	if _, err := d.Start("r1", "peer1", 100, chain.Hash{1}, now); err != nil {
		t.Fatalf("start r1: %v", err)
	}
	if _, err := d.Start("r2", "peer2", 100, chain.Hash{2}, now); err != nil {
		t.Fatalf("start r2: %v", err)
	}
	if _, err := d.Start("r3", "peer3", 100, chain.Hash{3}, now); err != ErrAtCapacity {
		t.Fatalf("expected ErrAtCapacity, got %v", err)
	}
}

func TestFullHappyPathTransitions(t *testing.T) {
	d := NewDriver(MaxConcurrentResolutions)
	if _, err := d.Start("r1", "peer1", 110, chain.Hash{1}, now); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := d.SetCommonAncestor("r1", 100); err != nil {
		t.Fatalf("set common ancestor: %v", err)
	}
	s, _ := d.Get("r1")
	if s.Phase != PhaseRequestingBlocks {
		t.Fatalf("expected RequestingBlocks, got %v", s.Phase)
	}

	if err := d.BlocksReceived("r1"); err != nil {
		t.Fatalf("blocks received: %v", err)
	}
	if err := d.ChainValidated("r1"); err != nil {
		t.Fatalf("chain validated: %v", err)
	}
	s, _ = d.Get("r1")
	if s.Phase != PhasePerformingReorg {
		t.Fatalf("expected PerformingReorg, got %v", s.Phase)
	}

	finalized := []chain.Hash{{0xAA}, {0xBB}}
	newChainTxIDs := map[chain.Hash]struct{}{{0xAA}: {}, {0xBB}: {}, {0xCC}: {}}
	if err := d.CheckFinalizedProtection("r1", finalized, newChainTxIDs); err != nil {
		t.Fatalf("finalized protection check: %v", err)
	}

	if err := d.Complete("r1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	s, _ = d.Get("r1")
	if s.Phase != PhaseComplete {
		t.Fatalf("expected Complete, got %v", s.Phase)
	}
}

func TestOutOfOrderTransitionRejected(t *testing.T) {
	d := NewDriver(MaxConcurrentResolutions)
	d.Start("r1", "peer1", 110, chain.Hash{1}, now)

	if err := d.BlocksReceived("r1"); err != ErrWrongPhase {
		t.Fatalf("expected ErrWrongPhase skipping SetCommonAncestor, got %v", err)
	}
}

func TestFinalizedTransactionProtectionRejectsReorg(t *testing.T) {
	d := NewDriver(MaxConcurrentResolutions)
	d.Start("r1", "peer1", 110, chain.Hash{1}, now)
	d.SetCommonAncestor("r1", 100)
	d.BlocksReceived("r1")
	d.ChainValidated("r1")

	finalized := []chain.Hash{{0xAA}, {0xBB}}
	newChainTxIDs := map[chain.Hash]struct{}{{0xAA}: {}} // missing 0xBB

	if err := d.CheckFinalizedProtection("r1", finalized, newChainTxIDs); err != ErrFinalizedTxMissing {
		t.Fatalf("expected ErrFinalizedTxMissing, got %v", err)
	}
	s, _ := d.Get("r1")
	if s.Phase != PhaseFailed || s.FailureReason != "finalized-tx protection" {
		t.Fatalf("expected resolution marked Failed with finalized-tx reason, got %+v", s)
	}
}

func TestSweepTimesOutExpiredResolutions(t *testing.T) {
	d := NewDriver(MaxConcurrentResolutions)
	d.Start("r1", "peer1", 110, chain.Hash{1}, now)

	timedOut := d.Sweep(now.Add(Deadline + time.Second))
	if len(timedOut) != 1 || timedOut[0] != "r1" {
		t.Fatalf("expected r1 to be timed out, got %v", timedOut)
	}
	s, _ := d.Get("r1")
	if s.Phase != PhaseFailed || s.FailureReason != "timeout" {
		t.Fatalf("expected Failed/timeout, got %+v", s)
	}
}

func TestSweepFreesCapacityForNewResolutions(t *testing.T) {
	d := NewDriver(1)
	d.Start("r1", "peer1", 110, chain.Hash{1}, now)
	if _, err := d.Start("r2", "peer2", 110, chain.Hash{2}, now); err != ErrAtCapacity {
		t.Fatalf("expected ErrAtCapacity, got %v", err)
	}

	d.Fail("r1", "validation failed")
	if _, err := d.Start("r2", "peer2", 110, chain.Hash{2}, now); err != nil {
		t.Fatalf("expected capacity freed after r1 failed, got %v", err)
	}
}

func TestActiveCountExcludesTerminal(t *testing.T) {
	d := NewDriver(MaxConcurrentResolutions)
	d.Start("r1", "peer1", 110, chain.Hash{1}, now)
	d.Start("r2", "peer2", 110, chain.Hash{2}, now)
	if d.ActiveCount() != 2 {
		t.Fatalf("expected 2 active, got %d", d.ActiveCount())
	}
	d.Fail("r1", "some reason")
	if d.ActiveCount() != 1 {
		t.Fatalf("expected 1 active after failing r1, got %d", d.ActiveCount())
	}
}

func TestFinalizedProtectionAllowsReordering(t *testing.T) {
	// The new chain carries every finalized txid, just in a different
	// order and spread across different blocks. Only membership matters.
	d := NewDriver(MaxConcurrentResolutions)
	d.Start("r1", "peer1", 110, chain.Hash{1}, now)
	d.SetCommonAncestor("r1", 100)
	d.BlocksReceived("r1")
	d.ChainValidated("r1")

	finalized := []chain.Hash{{0xA1}, {0xB2}, {0xC3}}
	reordered := map[chain.Hash]struct{}{{0xC3}: {}, {0xA1}: {}, {0xB2}: {}, {0xD4}: {}}
	if err := d.CheckFinalizedProtection("r1", finalized, reordered); err != nil {
		t.Fatalf("reordered finalized set must pass protection: %v", err)
	}
}
