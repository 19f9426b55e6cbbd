// Package leader implements ECVRF-based weighted leader election and the
// gate-then-propose control flow that governs when an elected masternode
// may actually produce a block. Every candidate computes a stake-scaled
// lottery ticket from a shared seed; the lowest ticket wins, and the
// winner still has to clear the VDF timing gate and a verified-heartbeat
// liveness floor before proposing.
package leader

import (
	"bytes"
	"errors"
	"time"

	"github.com/timecoin/timecoind/chain"
	"github.com/timecoin/timecoind/metrics"
	"github.com/timecoin/timecoind/vcrypto"
	"github.com/timecoin/timecoind/vdf"
)

const electionDomain = "leader"

// Sentinel errors for election and eligibility checks.
var (
	ErrNoActiveMasternodes = errors.New("leader: no active masternodes in registry")
	ErrVDFGateNotOpen      = errors.New("leader: minimum inter-block interval has not elapsed")
	ErrLivenessFloor       = errors.New("leader: insufficient verified heartbeat count")
	ErrNotElected          = errors.New("leader: caller is not the elected leader for this slot")
	ErrVRFVerifyFailed     = errors.New("leader: VRF proof failed verification")
	ErrNotMinimumTicket    = errors.New("leader: claimed leader does not hold the minimum ticket")
)

// Candidate is one registry entry considered for a given election.
type Candidate struct {
	Address     string
	PublicKey   chain.PublicKey
	StakeWeight uint64
	Tier        chain.MasternodeTier
}

// Ticket is one candidate's computed VRF output and lottery ticket for a
// given slot.
type Ticket struct {
	Address   string
	PublicKey chain.PublicKey
	Output    [32]byte
	Proof     []byte
	Value     float64 // u_i = v_i.as_u64() / stake_weight_i; lower wins
}

// ElectionInput is the message each masternode evaluates its VRF over:
// "leader" ‖ prev_hash ‖ slot_le.
func ElectionInput(prevHash chain.Hash, slot uint64) []byte {
	buf := make([]byte, 0, len(electionDomain)+32+8)
	buf = append(buf, electionDomain...)
	buf = append(buf, prevHash[:]...)
	buf = appendUint64LE(buf, slot)
	return buf
}

func appendUint64LE(buf []byte, v uint64) []byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return append(buf, b[:]...)
}

// ComputeTicket evaluates a single candidate's VRF output for the election
// and derives its lottery ticket. StakeWeight of zero is treated as
// ineligible (infinite ticket) rather than dividing by zero.
func ComputeTicket(sk []byte, candidate Candidate, prevHash chain.Hash, slot uint64) Ticket {
	input := ElectionInput(prevHash, slot)
	output, proof := vcrypto.Evaluate(sk, input)

	value := vcrypto.LotteryValue(output)
	ticket := Ticket{
		Address:   candidate.Address,
		PublicKey: candidate.PublicKey,
		Output:    output,
		Proof:     proof,
	}
	if candidate.StakeWeight == 0 {
		ticket.Value = float64(1<<63) * 2 // effectively infinite, never wins
		return ticket
	}
	ticket.Value = float64(value) / float64(candidate.StakeWeight)
	return ticket
}

// Elect picks the winning ticket among tickets: lowest Value wins, ties
// broken by lexicographically-lower public key bytes.
func Elect(tickets []Ticket) (Ticket, error) {
	if len(tickets) == 0 {
		return Ticket{}, ErrNoActiveMasternodes
	}
	winner := tickets[0]
	for _, t := range tickets[1:] {
		if t.Value < winner.Value {
			winner = t
			continue
		}
		if t.Value == winner.Value && bytes.Compare(t.PublicKey[:], winner.PublicKey[:]) < 0 {
			winner = t
		}
	}
	metrics.LeaderElections.Inc()
	return winner, nil
}

// CanProposeParams bundles the inputs to the gate-then-propose eligibility
// check.
type CanProposeParams struct {
	Now                   time.Time
	PrevBlockTimestamp    int64
	VDFConfig             vdf.Config
	VerifiedHeartbeatCount uint64
	LivenessFloor         uint64
}

// CanPropose reports whether the elected leader is currently allowed to
// produce a block: the VDF minimum-interval gate must be open, and the
// leader's own verified-heartbeat count must clear the configured floor.
func CanPropose(p CanProposeParams) error {
	if !vdf.CanCreateBlock(p.Now, p.PrevBlockTimestamp, p.VDFConfig) {
		return ErrVDFGateNotOpen
	}
	if p.VerifiedHeartbeatCount < p.LivenessFloor {
		return ErrLivenessFloor
	}
	return nil
}

// VerifyElection checks that the claimed leader's VRF proof is valid under
// its registry public key, and that its ticket is the minimum among every
// other active candidate's announced VRF output for the same election
// (the registry snapshot taken at prevHash, exactly as the elector used).
// announcements must contain one entry per active candidate, each
// independently VRF-verified by the caller via vcrypto.VerifyProof before being
// passed in here.
func VerifyElection(claimedLeader string, candidates []Candidate, announcements map[string]Ticket, prevHash chain.Hash, slot uint64) error {
	defer metrics.NewTimer(metrics.LeaderElectionLatency).Stop()

	claimed, ok := announcements[claimedLeader]
	if !ok {
		return ErrNotElected
	}

	input := ElectionInput(prevHash, slot)
	var claimedPub chain.PublicKey
	var claimedStake uint64
	found := false
	for _, c := range candidates {
		if c.Address == claimedLeader {
			claimedPub = c.PublicKey
			claimedStake = c.StakeWeight
			found = true
			break
		}
	}
	if !found || claimedStake == 0 {
		return ErrNotElected
	}
	if !vcrypto.VerifyProof(claimedPub[:], input, claimed.Output, claimed.Proof) {
		return ErrVRFVerifyFailed
	}

	tickets := make([]Ticket, 0, len(candidates))
	for _, c := range candidates {
		t, ok := announcements[c.Address]
		if !ok {
			continue
		}
		value := float64(vcrypto.LotteryValue(t.Output)) / float64(c.StakeWeight)
		if c.StakeWeight == 0 {
			value = float64(1<<63) * 2
		}
		tickets = append(tickets, Ticket{Address: c.Address, PublicKey: c.PublicKey, Output: t.Output, Value: value})
	}

	winner, err := Elect(tickets)
	if err != nil {
		return err
	}
	if winner.Address != claimedLeader {
		return ErrNotMinimumTicket
	}
	return nil
}

// VerifyLeaderProof cryptographically verifies only the claimed leader's
// own VRF output and proof against its registry public key. It does not
// check minimality against other candidates' tickets, since a received
// block only carries the winning leader's own announcement; full
// committee-minimality verification (VerifyElection) requires every active
// candidate's announcement and is only available to the node that ran the
// election locally. Reorg chain validation uses this narrower check when
// replaying blocks received from a peer.
func VerifyLeaderProof(leaderPub chain.PublicKey, output [32]byte, proof []byte, prevHash chain.Hash, slot uint64) error {
	input := ElectionInput(prevHash, slot)
	if !vcrypto.VerifyProof(leaderPub[:], input, output, proof) {
		return ErrVRFVerifyFailed
	}
	return nil
}
