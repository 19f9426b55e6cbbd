// Package app wires together the consensus, storage, and networking
// packages into a single running masternode process: the chain store,
// heartbeat ring, consensus-health monitor, reorg driver, peer-anomaly
// detector, and reconnection controller, all owned by one Node and
// started/stopped together.
package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/timecoin/timecoind/dedup"
	"github.com/timecoin/timecoind/health"
	"github.com/timecoin/timecoind/heartbeat"
	"github.com/timecoin/timecoind/log"
	"github.com/timecoin/timecoind/metrics"
	"github.com/timecoin/timecoind/netctl"
	"github.com/timecoin/timecoind/nodecfg"
	"github.com/timecoin/timecoind/peerscore"
	"github.com/timecoin/timecoind/reorg"
	"github.com/timecoin/timecoind/store"
	"github.com/timecoin/timecoind/vdf"
	"github.com/timecoin/timecoind/wire"
)

// ErrAlreadyRunning is returned by Start when the node is already running.
var ErrAlreadyRunning = errors.New("app: node already running")

// ErrDataDirLocked is returned when another process already holds the
// data directory lock.
var ErrDataDirLocked = errors.New("app: data directory is locked by another process")

// sweepInterval is how often the periodic maintenance service sweeps
// bounded-history state (expired reorg resolutions, aged heartbeats).
const sweepInterval = 30 * time.Second

// masternodeLifecycleInterval is how often registered masternode profiles
// are re-evaluated against the heartbeat ring's liveness bookkeeping.
const masternodeLifecycleInterval = time.Minute

// Node is the top-level timecoind process: it owns every long-lived
// subsystem and coordinates their startup and shutdown.
type Node struct {
	cfg nodecfg.Config
	log *log.Logger

	db          *store.DB
	heartbeats  *heartbeat.Ring
	health      *health.Monitor
	reorgs      *reorg.Driver
	peerScore   *peerscore.Detector
	reconnector *netctl.Reconnector
	dedup       *dedup.Filter
	transport   wire.Transport

	registry *metrics.Registry
	exporter *metrics.PrometheusExporter

	lifecycle     *LifecycleManager
	healthChecker *HealthChecker

	datadirLock *flock.Flock

	mu      sync.Mutex
	running bool
	startAt time.Time
}

// Options carries the dependencies New needs beyond nodecfg.Config.
// Transport is optional: a Node with a nil Transport can still serve
// local RPC queries and persist state, it just cannot gossip.
type Options struct {
	Transport wire.Transport
}

// New constructs a Node from the given configuration, opening its
// LevelDB store and building every in-memory subsystem. It does not
// start any background services or acquire the datadir lock; call
// Start for that.
func New(cfg nodecfg.Config, opts Options) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: invalid config: %w", err)
	}
	if err := cfg.InitDataDir(); err != nil {
		return nil, fmt.Errorf("app: init datadir: %w", err)
	}

	logger := log.NewRotating(log.RotatingFileConfig{
		Path:       cfg.LogPath(),
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 28,
		Compress:   true,
	}, log.ParseLevel(cfg.LogLevel)).Module("app")

	db, err := store.Open(cfg.ChainDataPath())
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}
	if _, err := db.MigrateLegacyBlockKeys(); err != nil {
		db.Close()
		return nil, fmt.Errorf("app: migrate legacy block keys: %w", err)
	}

	n := &Node{
		cfg:           cfg,
		log:           logger,
		db:            db,
		heartbeats:    heartbeat.NewRing(24 * time.Hour),
		health:        health.NewMonitor(),
		reorgs:        reorg.NewDriver(reorg.MaxConcurrentResolutions),
		peerScore:     peerscore.NewDetector(5, 10),
		reconnector:   netctl.NewReconnector(),
		dedup:         nil,
		transport:     opts.Transport,
		registry:      metrics.DefaultRegistry,
		lifecycle:     NewLifecycleManager(DefaultLifecycleConfig()),
		healthChecker: NewHealthChecker(),
		datadirLock:   flock.New(filepath.Join(cfg.DataDir, ".lock")),
	}

	dd, err := dedup.New(1_000_000, 0.001)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("app: init dedup filter: %w", err)
	}
	n.dedup = dd

	if cfg.Metrics {
		n.exporter = metrics.NewPrometheusExporter(n.registry, metrics.DefaultPrometheusConfig())
	}

	n.healthChecker.RegisterSubsystem("store", storeChecker{db: db})
	n.healthChecker.RegisterSubsystem("heartbeats", heartbeatChecker{ring: n.heartbeats})
	n.healthChecker.RegisterSubsystem("reorg", reorgChecker{driver: n.reorgs})

	return n, nil
}

// Start acquires the data directory lock and starts every registered
// background service in priority order. Returns ErrAlreadyRunning if
// already started, or ErrDataDirLocked if another process holds the
// lock.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return ErrAlreadyRunning
	}

	locked, err := n.datadirLock.TryLock()
	if err != nil {
		return fmt.Errorf("app: acquire datadir lock: %w", err)
	}
	if !locked {
		return ErrDataDirLocked
	}

	n.registerServicesLocked()

	if err := n.lifecycle.StartAll(); err != nil {
		n.datadirLock.Unlock()
		return err
	}

	n.running = true
	n.startAt = time.Now()
	n.log.Info("node started", "network", n.cfg.Network, "datadir", n.cfg.DataDir)
	return nil
}

// Stop shuts down every running service in reverse start order and
// releases the data directory lock.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return nil
	}

	errs := n.lifecycle.StopAll()
	for _, e := range errs {
		n.log.Warn("service stop error", "error", e)
	}

	if err := n.db.Close(); err != nil {
		n.log.Warn("store close error", "error", err)
	}
	if err := n.datadirLock.Unlock(); err != nil {
		n.log.Warn("datadir unlock error", "error", err)
	}

	n.running = false
	n.log.Info("node stopped")
	if len(errs) > 0 {
		return fmt.Errorf("app: %d services failed to stop cleanly", len(errs))
	}
	return nil
}

// Close releases the chain store without going through the full
// Start/Stop lifecycle. Use this for short-lived, read-only CLI
// invocations (e.g. query subcommands) that never call Start and so
// never acquire the datadir lock or register background services.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return fmt.Errorf("app: Close called on a running node, call Stop instead")
	}
	return n.db.Close()
}

// Running reports whether the node is currently started.
func (n *Node) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

// Uptime returns how long the node has been running.
func (n *Node) Uptime() time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return 0
	}
	return time.Since(n.startAt)
}

// BlockStore returns the node's block storage backend.
func (n *Node) BlockStore() store.BlockStore { return n.db.BlockStore() }

// MasternodeRegistry returns the node's durable masternode profile store.
func (n *Node) MasternodeRegistry() store.MasternodeRegistry { return n.db.MasternodeRegistry() }

// Heartbeats returns the node's heartbeat ring.
func (n *Node) Heartbeats() *heartbeat.Ring { return n.heartbeats }

// HealthMonitor returns the node's consensus-health monitor.
func (n *Node) HealthMonitor() *health.Monitor { return n.health }

// Reorgs returns the node's reorg driver.
func (n *Node) Reorgs() *reorg.Driver { return n.reorgs }

// NewReorgCoordinator builds a reorg.Coordinator over this node's driver
// and block store, for a caller (typically the peer-sync layer, upon
// observing a diverging wire.ChainTipReport) to drive one fork resolution
// against peer's hash-at-height answers. The node does not keep a
// long-lived Coordinator itself since peer and the VDF/witness parameters
// it needs are per-resolution, not per-node.
func (n *Node) NewReorgCoordinator(peer reorg.PeerHashes, vdfCfg vdf.Config, minWitnesses int) *reorg.Coordinator {
	return reorg.NewCoordinator(n.reorgs, n.BlockStore(), peer, vdfCfg, minWitnesses)
}

// PeerScore returns the node's peer anomaly detector.
func (n *Node) PeerScore() *peerscore.Detector { return n.peerScore }

// Dedup returns the node's gossip deduplication filter.
func (n *Node) Dedup() *dedup.Filter { return n.dedup }

// HealthReport returns the current operational health report.
func (n *Node) HealthReport() *HealthReport { return n.healthChecker.CheckAll() }

// registerServicesLocked registers this node's background services with
// the lifecycle manager. Caller must hold n.mu.
func (n *Node) registerServicesLocked() {
	n.lifecycle.Register(&sweepService{node: n}, 10)
	n.lifecycle.Register(&dedupRotationService{filter: n.dedup}, 15)
	n.lifecycle.Register(&masternodeLifecycleService{
		registry: n.db.MasternodeRegistry(),
		ring:     n.heartbeats,
		timeout:  heartbeat.DefaultActivityTimeout,
		interval: masternodeLifecycleInterval,
		log:      n.log,
	}, 25)
	n.lifecycle.Register(&consensusHealthService{node: n}, 30)
	if n.exporter != nil {
		n.lifecycle.Register(&metricsService{exporter: n.exporter, addr: metricsAddr(n.cfg)}, 20)
	}
}

func metricsAddr(cfg nodecfg.Config) string {
	return fmt.Sprintf("127.0.0.1:%d", cfg.RPCPort+1)
}
