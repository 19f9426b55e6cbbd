package app

import (
	"context"
	"net/http"
	"time"

	"github.com/timecoin/timecoind/chain"
	"github.com/timecoin/timecoind/dedup"
	"github.com/timecoin/timecoind/health"
	"github.com/timecoin/timecoind/heartbeat"
	"github.com/timecoin/timecoind/metrics"
	"github.com/timecoin/timecoind/store"
)

// sweepService periodically sweeps bounded-history state across the
// node's subsystems: expired reorg resolutions and aged heartbeat-ring
// entries. Without it both structures would retain every entry they
// ever accepted up to their hard caps instead of aging out on schedule.
type sweepService struct {
	node   *Node
	cancel context.CancelFunc
}

func (s *sweepService) Name() string { return "sweep" }

func (s *sweepService) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.node.reorgs.Sweep(now)
				s.node.heartbeats.Sweep(now)
			}
		}
	}()
	return nil
}

func (s *sweepService) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// dedupRotationService periodically rotates the node's gossip dedup
// filter into a fresh, empty Bloom table on a fixed wall-clock interval,
// independent of how close it is to its capacity bound.
type dedupRotationService struct {
	filter *dedup.Filter
	cancel context.CancelFunc
}

func (s *dedupRotationService) Name() string { return "dedup-rotation" }

func (s *dedupRotationService) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		ticker := time.NewTicker(dedup.RotationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.filter.Rotate()
			}
		}
	}()
	return nil
}

func (s *dedupRotationService) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// masternodeLifecycleService periodically re-derives every registered
// masternode's lifecycle status (registered -> active -> inactive ->
// deregistered) from the heartbeat ring's verified-heartbeat bookkeeping
// and writes back the ones that changed.
type masternodeLifecycleService struct {
	registry  store.MasternodeRegistry
	ring      *heartbeat.Ring
	timeout   time.Duration
	interval  time.Duration
	log       interface{ Warn(string, ...any) }
	cancel    context.CancelFunc
}

func (s *masternodeLifecycleService) Name() string { return "masternode-lifecycle" }

func (s *masternodeLifecycleService) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	interval := s.interval
	if interval <= 0 {
		interval = masternodeLifecycleInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.sweep(now)
			}
		}
	}()
	return nil
}

func (s *masternodeLifecycleService) sweep(now time.Time) {
	profiles, err := s.registry.List()
	if err != nil {
		if s.log != nil {
			s.log.Warn("masternode lifecycle: list registry failed", "error", err)
		}
		return
	}
	active := 0
	for _, p := range profiles {
		lastVerified, everVerified := s.ring.LastVerifiedAt(p.Address)
		next := heartbeat.DeriveStatus(p.Status, lastVerified, everVerified, now, s.timeout)
		if next != p.Status {
			p.Status = next
			if err := s.registry.Put(p); err != nil && s.log != nil {
				s.log.Warn("masternode lifecycle: persist status failed", "address", p.Address, "error", err)
			}
		}
		if p.Status == chain.StatusActive {
			active++
		}
	}
	metrics.ActiveMasternodes.Set(int64(active))
}

func (s *masternodeLifecycleService) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// consensusHealthService periodically republishes the consensus-health
// monitor's latest prediction and the reconnector's peer count as
// gauges, and counts each prediction that recommends a recovery action.
type consensusHealthService struct {
	node   *Node
	cancel context.CancelFunc
}

func (s *consensusHealthService) Name() string { return "consensus-health" }

func (s *consensusHealthService) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pred := s.node.health.Predict()
				metrics.ConsensusHealthScore.Set(int64(pred.HealthScore * 100))
				metrics.ConsensusForkProbability.Set(int64(pred.ForkProbability * 100))
				if pred.Action != health.ActionNone {
					metrics.ConsensusActionsTriggered.Inc()
				}
				metrics.PeersConnected.Set(int64(len(s.node.reconnector.Snapshot())))
			}
		}
	}()
	return nil
}

func (s *consensusHealthService) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// metricsService serves the Prometheus exporter's /metrics endpoint on
// a dedicated listener, separate from any RPC server.
type metricsService struct {
	exporter metricsHandler
	addr     string
	srv      *http.Server
}

type metricsHandler = interface {
	Handler() http.Handler
}

func (m *metricsService) Name() string { return "metrics" }

func (m *metricsService) Start() error {
	m.srv = &http.Server{
		Addr:    m.addr,
		Handler: m.exporter.Handler(),
	}
	go m.srv.ListenAndServe()
	return nil
}

func (m *metricsService) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.srv.Shutdown(ctx)
}

// storeChecker reports the chain store as healthy whenever BestHeight
// can be queried without error.
type storeChecker struct {
	db *store.DB
}

func (c storeChecker) Check() *SubsystemHealth {
	_, _, err := c.db.BlockStore().BestHeight()
	if err != nil {
		return &SubsystemHealth{Status: StatusUnhealthy, Message: err.Error()}
	}
	return &SubsystemHealth{Status: StatusHealthy}
}

// heartbeatChecker reports the heartbeat ring as degraded once it nears
// its bounded capacity, since that signals the sweep service isn't
// keeping up with inbound heartbeat volume.
type heartbeatChecker struct {
	ring interface{ Len() int }
}

func (c heartbeatChecker) Check() *SubsystemHealth {
	n := c.ring.Len()
	if n >= 950 {
		return &SubsystemHealth{Status: StatusDegraded, Message: "heartbeat ring near capacity"}
	}
	return &SubsystemHealth{Status: StatusHealthy}
}

// reorgChecker reports the reorg driver as degraded once it is running
// at its concurrency cap, since new resolutions will be refused until
// one completes or times out.
type reorgChecker struct {
	driver interface{ ActiveCount() int }
}

func (c reorgChecker) Check() *SubsystemHealth {
	n := c.driver.ActiveCount()
	if n >= 5 {
		return &SubsystemHealth{Status: StatusDegraded, Message: "reorg driver at concurrency cap"}
	}
	return &SubsystemHealth{Status: StatusHealthy}
}
