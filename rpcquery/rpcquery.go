// Package rpcquery defines the narrow read-only query surface the RPC
// layer wraps 1-to-1: current height, best hash,
// hash-at-height, peer list, masternode list/status, mempool info, and
// consensus info. The request/response RPC transport itself, like the
// wire transport, is an external collaborator out of scope for this
// module; only the Backend interface it calls through is defined here, so
// the transport package depends on a narrow interface instead of reaching
// into app.Node's concrete subsystems directly. The one transport piece
// kept here is PushHub (push.go), a WebSocket fan-out for push events.
package rpcquery

import (
	"time"

	"github.com/timecoin/timecoind/chain"
	"github.com/timecoin/timecoind/forkchoice"
	"github.com/timecoin/timecoind/health"
)

// PeerInfo describes one connected peer for the peer-list query.
type PeerInfo struct {
	Address     string
	PingTime    time.Duration
	Priority    string
	SuccessRate float64
}

// MasternodeInfo is the RPC-facing projection of a MasternodeProfile.
type MasternodeInfo struct {
	Address               string
	Tier                  string
	StakeWeight           uint64
	VerifiedHeartbeatCount uint64
	Status                string
	CollateralLocked      uint64
}

// MempoolInfo summarizes pending-transaction state. Mempool management
// itself lives in the out-of-scope transaction pool; this struct is the
// shape the RPC layer reports, populated by whatever pool the caller
// wires in.
type MempoolInfo struct {
	Size  int
	Bytes int64
}

// ConsensusInfo reports the current consensus-health snapshot plus the
// finality arithmetic for the active masternode set.
type ConsensusInfo struct {
	HealthScore       float64
	ForkProbability   float64
	Action            string
	AvgAgreement      float64
	OpenForkEvents    int
	TotalStakeWeight  uint64
	FinalityThreshold uint64
}

// Backend is the read-only query surface the RPC layer calls through.
// Every method must be safe for concurrent use and must not block on
// network I/O; it only reads in-memory or local-store state.
type Backend interface {
	CurrentHeight() (uint64, error)
	BestHash() (chain.Hash, error)
	HashAtHeight(height uint64) (chain.Hash, error)
	Peers() ([]PeerInfo, error)
	Masternodes() ([]MasternodeInfo, error)
	MasternodeStatus(address string) (MasternodeInfo, error)
	Mempool() (MempoolInfo, error)
	Consensus() (ConsensusInfo, error)
}

// tierName and statusName render chain's tagged-variant enums as the
// lowercase strings the RPC/CLI layers display.
func tierName(t chain.MasternodeTier) string {
	return t.String()
}

func statusName(s chain.MasternodeStatus) string {
	switch s {
	case chain.StatusRegistered:
		return "registered"
	case chain.StatusActive:
		return "active"
	case chain.StatusInactive:
		return "inactive"
	case chain.StatusDeregistered:
		return "deregistered"
	default:
		return "unknown"
	}
}

// ProjectMasternode converts a stored profile into its RPC-facing form.
func ProjectMasternode(p *chain.MasternodeProfile) MasternodeInfo {
	return MasternodeInfo{
		Address:                p.Address,
		Tier:                   tierName(p.Tier),
		StakeWeight:            p.StakeWeight,
		VerifiedHeartbeatCount: p.VerifiedHeartbeatCount,
		Status:                 statusName(p.Status),
		CollateralLocked:       p.CollateralLocked,
	}
}

// ProjectConsensus converts a health.Prediction into the RPC-facing
// ConsensusInfo, pulling in the average agreement ratio, the count of
// forkEvents still open, and the active set's total stake weight since
// those aren't part of Prediction itself.
func ProjectConsensus(pred health.Prediction, avgAgreement float64, openForkEvents int, totalStake uint64) ConsensusInfo {
	return ConsensusInfo{
		HealthScore:       pred.HealthScore,
		ForkProbability:   pred.ForkProbability,
		Action:            pred.Action.String(),
		AvgAgreement:      avgAgreement,
		OpenForkEvents:    openForkEvents,
		TotalStakeWeight:  totalStake,
		FinalityThreshold: forkchoice.FinalityThreshold(totalStake),
	}
}
