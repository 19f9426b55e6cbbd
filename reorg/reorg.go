// Package reorg implements the reorganization driver state machine:
// FindingCommonAncestor -> RequestingBlocks -> ValidatingChain ->
// PerformingReorg -> Complete | Failed. At most MaxConcurrentResolutions
// driver instances run at once; each has a fixed end-to-end deadline.
package reorg

import (
	"errors"
	"sync"
	"time"

	"github.com/timecoin/timecoind/chain"
)

// Driver tuning: a hard cap on concurrent resolutions and a fixed
// end-to-end deadline per resolution.
const (
	MaxConcurrentResolutions = 5
	Deadline                 = 60 * time.Second
)

// Phase is a state in the reorg driver's state machine.
type Phase uint8

const (
	PhaseFindingCommonAncestor Phase = iota
	PhaseRequestingBlocks
	PhaseValidatingChain
	PhasePerformingReorg
	PhaseComplete
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseFindingCommonAncestor:
		return "finding_common_ancestor"
	case PhaseRequestingBlocks:
		return "requesting_blocks"
	case PhaseValidatingChain:
		return "validating_chain"
	case PhasePerformingReorg:
		return "performing_reorg"
	case PhaseComplete:
		return "complete"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Sentinel errors.
var (
	ErrAtCapacity           = errors.New("reorg: at capacity, too many concurrent resolutions")
	ErrUnknownResolution    = errors.New("reorg: unknown resolution id")
	ErrWrongPhase           = errors.New("reorg: resolution is not in the expected phase")
	ErrFinalizedTxMissing   = errors.New("reorg: finalized transaction protection violated")
	ErrResolutionTerminated = errors.New("reorg: resolution already terminated")
)

// State tracks one in-flight fork resolution.
type State struct {
	ID             string
	Peer           string
	TargetHeight   uint64
	TargetHash     chain.Hash
	CommonAncestor *uint64
	Phase          Phase
	FailureReason  string
	StartedAt      time.Time
	Deadline       time.Time
}

// Expired reports whether the resolution's deadline has passed as of now.
func (s *State) Expired(now time.Time) bool {
	return now.After(s.Deadline)
}

func (s *State) terminal() bool {
	return s.Phase == PhaseComplete || s.Phase == PhaseFailed
}

// Driver manages the bounded set of concurrently in-flight resolutions.
type Driver struct {
	mu           sync.RWMutex
	maxConcurrent int
	byID         map[string]*State
}

// NewDriver constructs a Driver allowing up to maxConcurrent active (i.e.
// non-terminal) resolutions at once. A non-positive maxConcurrent falls
// back to MaxConcurrentResolutions.
func NewDriver(maxConcurrent int) *Driver {
	if maxConcurrent <= 0 {
		maxConcurrent = MaxConcurrentResolutions
	}
	return &Driver{
		maxConcurrent: maxConcurrent,
		byID:          make(map[string]*State),
	}
}

func (d *Driver) activeCountLocked() int {
	n := 0
	for _, s := range d.byID {
		if !s.terminal() {
			n++
		}
	}
	return n
}

// Start begins a new resolution against peer's claimed tip, refusing if
// the driver is already at capacity.
func (d *Driver) Start(id, peer string, targetHeight uint64, targetHash chain.Hash, now time.Time) (*State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.activeCountLocked() >= d.maxConcurrent {
		return nil, ErrAtCapacity
	}

	s := &State{
		ID:           id,
		Peer:         peer,
		TargetHeight: targetHeight,
		TargetHash:   targetHash,
		Phase:        PhaseFindingCommonAncestor,
		StartedAt:    now,
		Deadline:     now.Add(Deadline),
	}
	d.byID[id] = s
	return s, nil
}

// Get returns the resolution state for id, if present.
func (d *Driver) Get(id string) (*State, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.byID[id]
	return s, ok
}

// SetCommonAncestor transitions a resolution from FindingCommonAncestor to
// RequestingBlocks once the common ancestor height has been identified.
func (d *Driver) SetCommonAncestor(id string, ancestorHeight uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.byID[id]
	if !ok {
		return ErrUnknownResolution
	}
	if s.Phase != PhaseFindingCommonAncestor {
		return ErrWrongPhase
	}
	s.CommonAncestor = &ancestorHeight
	s.Phase = PhaseRequestingBlocks
	return nil
}

// BlocksReceived transitions a resolution from RequestingBlocks to
// ValidatingChain once the received block set is gap-free up to
// TargetHeight. Callers are responsible for tracking which heights have
// arrived; this method only records the phase transition.
func (d *Driver) BlocksReceived(id string) error {
	return d.transition(id, PhaseRequestingBlocks, PhaseValidatingChain)
}

// ChainValidated transitions a resolution from ValidatingChain to
// PerformingReorg once every received block has independently validated
// (prev-hash linkage, merkle root, VDF proof, VRF leader proof,
// transaction signatures, reward correctness).
func (d *Driver) ChainValidated(id string) error {
	return d.transition(id, PhaseValidatingChain, PhasePerformingReorg)
}

func (d *Driver) transition(id string, from, to Phase) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.byID[id]
	if !ok {
		return ErrUnknownResolution
	}
	if s.Phase != from {
		return ErrWrongPhase
	}
	s.Phase = to
	return nil
}

// CheckFinalizedProtection enforces the finalized-transaction protection
// invariant: every id in finalized (the set of finalized transaction ids
// currently in blocks (common_ancestor, our_tip]) must also appear in
// newChainTxIDs (all txids across the candidate new chain). Coinbase
// transactions are expected to already be excluded from finalized by the
// caller. On violation the resolution is marked Failed and an error is
// returned; on success the resolution's phase is left at PerformingReorg
// for the caller to apply the reorg and call Complete.
func (d *Driver) CheckFinalizedProtection(id string, finalized []chain.Hash, newChainTxIDs map[chain.Hash]struct{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.byID[id]
	if !ok {
		return ErrUnknownResolution
	}
	if s.Phase != PhasePerformingReorg {
		return ErrWrongPhase
	}

	for _, txid := range finalized {
		if _, present := newChainTxIDs[txid]; !present {
			s.Phase = PhaseFailed
			s.FailureReason = "finalized-tx protection"
			return ErrFinalizedTxMissing
		}
	}
	return nil
}

// Complete marks a resolution as finished successfully.
func (d *Driver) Complete(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.byID[id]
	if !ok {
		return ErrUnknownResolution
	}
	if s.Phase != PhasePerformingReorg {
		return ErrWrongPhase
	}
	s.Phase = PhaseComplete
	return nil
}

// Fail marks a resolution as failed with the given reason, from any
// non-terminal phase.
func (d *Driver) Fail(id, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.byID[id]
	if !ok {
		return ErrUnknownResolution
	}
	if s.terminal() {
		return ErrResolutionTerminated
	}
	s.Phase = PhaseFailed
	s.FailureReason = reason
	return nil
}

// Sweep marks every expired, non-terminal resolution Failed (reason
// "timeout"), and deletes every already-terminal resolution whose deadline
// passed more than Deadline ago (so completed/failed entries don't linger
// forever). It returns the ids that were newly timed out.
func (d *Driver) Sweep(now time.Time) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var timedOut []string
	for id, s := range d.byID {
		if !s.terminal() && s.Expired(now) {
			s.Phase = PhaseFailed
			s.FailureReason = "timeout"
			timedOut = append(timedOut, id)
			continue
		}
		if s.terminal() && now.Sub(s.Deadline) > Deadline {
			delete(d.byID, id)
		}
	}
	return timedOut
}

// ActiveCount returns the number of non-terminal resolutions currently
// tracked.
func (d *Driver) ActiveCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activeCountLocked()
}
