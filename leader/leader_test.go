package leader

import (
	"testing"
	"time"

	"github.com/timecoin/timecoind/chain"
	"github.com/timecoin/timecoind/vcrypto"
	"github.com/timecoin/timecoind/vdf"
)

type keypair struct {
	pub  chain.PublicKey
	priv []byte
}

func newKeypair(t *testing.T) keypair {
	t.Helper()
	pub, priv, err := vcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var pk chain.PublicKey
	copy(pk[:], pub)
	return keypair{pub: pk, priv: priv}
}

func TestElectPicksLowestTicket(t *testing.T) {
	tickets := []Ticket{
		{Address: "a", Value: 0.5},
		{Address: "b", Value: 0.1},
		{Address: "c", Value: 0.9},
	}
	winner, err := Elect(tickets)
	if err != nil {
		t.Fatalf("elect: %v", err)
	}
	if winner.Address != "b" {
		t.Fatalf("expected b to win with lowest ticket, got %s", winner.Address)
	}
}

func TestElectTieBrokenByPubkey(t *testing.T) {
	low := Ticket{Address: "low", PublicKey: chain.PublicKey{0x01}, Value: 0.5}
	high := Ticket{Address: "high", PublicKey: chain.PublicKey{0x02}, Value: 0.5}
	winner, err := Elect([]Ticket{high, low})
	if err != nil {
		t.Fatalf("elect: %v", err)
	}
	if winner.Address != "low" {
		t.Fatalf("expected lexicographically lower pubkey to win tie, got %s", winner.Address)
	}
}

func TestElectNoCandidates(t *testing.T) {
	if _, err := Elect(nil); err != ErrNoActiveMasternodes {
		t.Fatalf("expected ErrNoActiveMasternodes, got %v", err)
	}
}

func TestComputeTicketZeroStakeIsIneligible(t *testing.T) {
	kp := newKeypair(t)
	var prevHash chain.Hash
	candidate := Candidate{Address: "zero-stake", PublicKey: kp.pub, StakeWeight: 0}
	ticket := ComputeTicket(kp.priv, candidate, prevHash, 1)

	other := Candidate{Address: "staked", PublicKey: kp.pub, StakeWeight: 100}
	otherTicket := ComputeTicket(kp.priv, other, prevHash, 1)

	winner, err := Elect([]Ticket{ticket, otherTicket})
	if err != nil {
		t.Fatalf("elect: %v", err)
	}
	if winner.Address != "staked" {
		t.Fatalf("expected zero-stake candidate to be ineligible, winner=%s", winner.Address)
	}
}

func TestComputeTicketDeterministic(t *testing.T) {
	kp := newKeypair(t)
	var prevHash chain.Hash
	prevHash[0] = 7
	candidate := Candidate{Address: "a", PublicKey: kp.pub, StakeWeight: 10}

	t1 := ComputeTicket(kp.priv, candidate, prevHash, 5)
	t2 := ComputeTicket(kp.priv, candidate, prevHash, 5)
	if t1.Output != t2.Output || t1.Value != t2.Value {
		t.Fatalf("expected deterministic ticket computation")
	}

	t3 := ComputeTicket(kp.priv, candidate, prevHash, 6)
	if t1.Output == t3.Output {
		t.Fatalf("expected different slots to produce different outputs")
	}
}

func TestCanProposeGates(t *testing.T) {
	cfg := vdf.Config{MinBlockTime: 30 * time.Second}
	prevTs := int64(1_700_000_000)

	err := CanPropose(CanProposeParams{
		Now:                    time.Unix(prevTs+30, 0),
		PrevBlockTimestamp:     prevTs,
		VDFConfig:              cfg,
		VerifiedHeartbeatCount: 5,
		LivenessFloor:          3,
	})
	if err != nil {
		t.Fatalf("expected eligible leader to pass, got %v", err)
	}

	err = CanPropose(CanProposeParams{
		Now:                    time.Unix(prevTs+10, 0),
		PrevBlockTimestamp:     prevTs,
		VDFConfig:              cfg,
		VerifiedHeartbeatCount: 5,
		LivenessFloor:          3,
	})
	if err != ErrVDFGateNotOpen {
		t.Fatalf("expected ErrVDFGateNotOpen, got %v", err)
	}

	err = CanPropose(CanProposeParams{
		Now:                    time.Unix(prevTs+30, 0),
		PrevBlockTimestamp:     prevTs,
		VDFConfig:              cfg,
		VerifiedHeartbeatCount: 1,
		LivenessFloor:          3,
	})
	if err != ErrLivenessFloor {
		t.Fatalf("expected ErrLivenessFloor, got %v", err)
	}
}

func TestVerifyElectionAcceptsHonestWinner(t *testing.T) {
	kpA := newKeypair(t)
	kpB := newKeypair(t)
	var prevHash chain.Hash
	prevHash[0] = 1

	candA := Candidate{Address: "a", PublicKey: kpA.pub, StakeWeight: 100}
	candB := Candidate{Address: "b", PublicKey: kpB.pub, StakeWeight: 100}
	candidates := []Candidate{candA, candB}

	ticketA := ComputeTicket(kpA.priv, candA, prevHash, 1)
	ticketB := ComputeTicket(kpB.priv, candB, prevHash, 1)

	winner, err := Elect([]Ticket{ticketA, ticketB})
	if err != nil {
		t.Fatalf("elect: %v", err)
	}

	announcements := map[string]Ticket{"a": ticketA, "b": ticketB}
	if err := VerifyElection(winner.Address, candidates, announcements, prevHash, 1); err != nil {
		t.Fatalf("expected honest winner to verify, got %v", err)
	}

	loser := "a"
	if winner.Address == "a" {
		loser = "b"
	}
	if err := VerifyElection(loser, candidates, announcements, prevHash, 1); err != ErrNotMinimumTicket {
		t.Fatalf("expected ErrNotMinimumTicket for claimed loser, got %v", err)
	}
}

func TestVerifyElectionRejectsBadProof(t *testing.T) {
	kpA := newKeypair(t)
	var prevHash chain.Hash
	candA := Candidate{Address: "a", PublicKey: kpA.pub, StakeWeight: 100}
	ticketA := ComputeTicket(kpA.priv, candA, prevHash, 1)
	ticketA.Proof[0] ^= 0xFF // corrupt

	announcements := map[string]Ticket{"a": ticketA}
	if err := VerifyElection("a", []Candidate{candA}, announcements, prevHash, 1); err != ErrVRFVerifyFailed {
		t.Fatalf("expected ErrVRFVerifyFailed, got %v", err)
	}
}
