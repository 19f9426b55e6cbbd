package metrics

// Pre-defined metrics for timecoind. All metrics live in DefaultRegistry so
// they are globally accessible without passing a registry around.

var (
	// ---- Chain metrics ----

	// ChainHeight tracks the latest block height.
	ChainHeight = DefaultRegistry.Gauge("chain.height")
	// BlockProcessTime records block processing duration in milliseconds.
	BlockProcessTime = DefaultRegistry.Histogram("chain.block_process_ms")
	// BlocksInserted counts blocks successfully appended to the chain.
	BlocksInserted = DefaultRegistry.Counter("chain.blocks_inserted")
	// ReorgsDetected counts chain reorganisation events.
	ReorgsDetected = DefaultRegistry.Counter("chain.reorgs")

	// ---- P2P metrics ----

	// PeersConnected tracks the current number of tracked peers.
	PeersConnected = DefaultRegistry.Gauge("p2p.peers")
	// MessagesChecked counts inbound payloads run through the gossip
	// dedup filter, seen or not.
	MessagesChecked = DefaultRegistry.Counter("p2p.messages_checked")
	// MessagesDeduplicated counts inbound payloads dropped as
	// already-seen.
	MessagesDeduplicated = DefaultRegistry.Counter("p2p.messages_deduplicated")

	// ---- Masternode / heartbeat metrics ----

	// HeartbeatsSubmitted counts heartbeats accepted into the ring.
	HeartbeatsSubmitted = DefaultRegistry.Counter("masternode.heartbeats_submitted")
	// HeartbeatsVerified counts heartbeats that reached witness quorum.
	HeartbeatsVerified = DefaultRegistry.Counter("masternode.heartbeats_verified")
	// ActiveMasternodes tracks the current count of masternodes with a
	// verified heartbeat inside the liveness window.
	ActiveMasternodes = DefaultRegistry.Gauge("masternode.active")

	// ---- Leader election metrics ----

	// LeaderElections counts completed leader-election rounds.
	LeaderElections = DefaultRegistry.Counter("leader.elections")
	// LeaderElectionLatency records ticket computation plus verification
	// time in milliseconds.
	LeaderElectionLatency = DefaultRegistry.Histogram("leader.election_latency_ms")

	// ---- Consensus health metrics ----

	// ConsensusHealthScore tracks the latest health.Predict() health score
	// (scaled 0-100 so it reads naturally as a Prometheus gauge).
	ConsensusHealthScore = DefaultRegistry.Gauge("consensus.health_score")
	// ConsensusForkProbability tracks the latest predicted fork
	// probability, scaled 0-100.
	ConsensusForkProbability = DefaultRegistry.Gauge("consensus.fork_probability")
	// ConsensusActionsTriggered counts health.Action responses other than
	// ActionNone.
	ConsensusActionsTriggered = DefaultRegistry.Counter("consensus.actions_triggered")
)
