package app

import (
	"fmt"

	"github.com/timecoin/timecoind/chain"
	"github.com/timecoin/timecoind/rpcquery"
)

// Backend returns an rpcquery.Backend view over this node, for the RPC
// layer to wrap 1-to-1. The concrete type is unexported: callers depend
// on the interface only.
func (n *Node) Backend() rpcquery.Backend { return nodeBackend{n: n} }

type nodeBackend struct{ n *Node }

func (b nodeBackend) CurrentHeight() (uint64, error) {
	h, _, err := b.n.db.BlockStore().BestHeight()
	return h, err
}

func (b nodeBackend) BestHash() (chain.Hash, error) {
	height, ok, err := b.n.db.BlockStore().BestHeight()
	if err != nil {
		return chain.Hash{}, err
	}
	if !ok {
		return chain.Hash{}, fmt.Errorf("app: no blocks stored")
	}
	return b.HashAtHeight(height)
}

func (b nodeBackend) HashAtHeight(height uint64) (chain.Hash, error) {
	blk, err := b.n.db.BlockStore().GetBlock(height)
	if err != nil {
		return chain.Hash{}, err
	}
	return blk.Header.Hash(), nil
}

func (b nodeBackend) Peers() ([]rpcquery.PeerInfo, error) {
	snaps := b.n.reconnector.Snapshot()
	out := make([]rpcquery.PeerInfo, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, rpcquery.PeerInfo{
			Address:     s.Address,
			PingTime:    s.ConnectTime,
			Priority:    s.Priority.String(),
			SuccessRate: s.SuccessRate,
		})
	}
	return out, nil
}

func (b nodeBackend) Masternodes() ([]rpcquery.MasternodeInfo, error) {
	profiles, err := b.n.db.MasternodeRegistry().List()
	if err != nil {
		return nil, err
	}
	out := make([]rpcquery.MasternodeInfo, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, rpcquery.ProjectMasternode(p))
	}
	return out, nil
}

func (b nodeBackend) MasternodeStatus(address string) (rpcquery.MasternodeInfo, error) {
	p, err := b.n.db.MasternodeRegistry().Get(address)
	if err != nil {
		return rpcquery.MasternodeInfo{}, err
	}
	return rpcquery.ProjectMasternode(p), nil
}

// Mempool reports an empty pool: this node has no transaction pool
// wired in, so it always reports zero.
func (b nodeBackend) Mempool() (rpcquery.MempoolInfo, error) {
	return rpcquery.MempoolInfo{}, nil
}

func (b nodeBackend) Consensus() (rpcquery.ConsensusInfo, error) {
	pred := b.n.health.Predict()
	height, _, err := b.n.db.BlockStore().BestHeight()
	if err != nil {
		return rpcquery.ConsensusInfo{}, err
	}
	avgAgreement := b.n.health.AgreementRatio(height)
	openForks := 0
	for _, ev := range b.n.health.ForkEvents() {
		if ev.Open {
			openForks++
		}
	}
	profiles, err := b.n.db.MasternodeRegistry().List()
	if err != nil {
		return rpcquery.ConsensusInfo{}, err
	}
	var totalStake uint64
	for _, p := range profiles {
		if p.Status == chain.StatusActive {
			totalStake += p.StakeWeight
		}
	}
	return rpcquery.ProjectConsensus(pred, avgAgreement, openForks, totalStake), nil
}
