// Package wire defines the message types exchanged between the consensus
// core and its transport layer, plus the Transport interface the core
// calls through. No socket code lives here: the transport implementation
// is supplied by the caller.
package wire

import (
	"context"

	"github.com/timecoin/timecoind/chain"
)

// ChainTipReport is a peer's self-reported chain head, the core's primary
// input to fork-choice evaluation.
type ChainTipReport struct {
	Peer        string
	Height      uint64
	Hash        chain.Hash
	Timestamp   int64
	StakeWeight uint64
}

// BlockMessage carries a full block, either gossiped or sent in response
// to a RequestBlocks.
type BlockMessage struct {
	Peer  string
	Block *chain.Block
}

// HeartbeatMessage carries a freshly-signed liveness claim.
type HeartbeatMessage struct {
	Peer      string
	Heartbeat chain.SignedHeartbeat
}

// AttestationMessage carries a witness countersignature over a heartbeat.
type AttestationMessage struct {
	Peer       string
	Attestation chain.WitnessAttestation
}

// HeightRange is an inclusive [From, To] range of block heights to
// request from a peer.
type HeightRange struct {
	From uint64
	To   uint64
}

// RequestBlocks asks Peer for every block height in Ranges.
type RequestBlocks struct {
	Peer   string
	Ranges []HeightRange
}

// Transport is the narrow interface the consensus core calls through to
// exchange messages with the network. Implementations own connection
// lifecycle, framing, and peer discovery; the core only ever sees these
// six operations.
type Transport interface {
	// RequestBlocks asks a specific peer for one or more height ranges.
	RequestBlocks(ctx context.Context, req RequestBlocks) error

	// BroadcastBlock gossips a newly produced or accepted block to all
	// connected peers.
	BroadcastBlock(ctx context.Context, block *chain.Block) error

	// BroadcastHeartbeat gossips a signed heartbeat.
	BroadcastHeartbeat(ctx context.Context, hb chain.SignedHeartbeat) error

	// BroadcastAttestation gossips a witness attestation.
	BroadcastAttestation(ctx context.Context, att chain.WitnessAttestation) error

	// Peers returns the currently connected peer addresses.
	Peers() []string

	// Ping measures round-trip latency to peer, used for response-rate
	// sampling by the health monitor.
	Ping(ctx context.Context, peer string) (latency int64, err error)
}
