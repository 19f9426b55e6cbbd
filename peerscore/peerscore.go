// Package peerscore implements the peer anomaly detector: a weighted
// behavior score in [0, 1] derived from validity, fork-attempt, request
// rate, and timing-regularity features, driving blacklist / temporary-ban
// / rate-limit actions. The rate-limit action is backed by
// golang.org/x/time/rate token buckets.
package peerscore

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Relative weight of each behavior feature in the composite score.
const (
	weightValidity         = 0.40
	weightForkAttempts     = 0.30
	weightRequestRate      = 0.20
	weightTimingRegularity = 0.10

	blacklistThreshold = 0.90
	tempBanThreshold   = 0.70
	rateLimitThreshold = 0.30
)

// Action is the recommended response to a peer's current anomaly score.
type Action uint8

const (
	ActionNone Action = iota
	ActionRateLimit
	ActionTemporaryBan
	ActionBlacklist
)

func (a Action) String() string {
	switch a {
	case ActionRateLimit:
		return "rate_limit"
	case ActionTemporaryBan:
		return "temporary_ban"
	case ActionBlacklist:
		return "blacklist"
	default:
		return "none"
	}
}

// Features are the four normalized [0, 1] inputs to the anomaly score.
// Each represents "badness": 1.0 is maximally anomalous, 0.0 is pristine.
type Features struct {
	InvalidityRate     float64
	ForkAttemptRate    float64
	RequestRateExcess  float64
	TimingIrregularity float64
}

// Score computes the weighted anomaly score for a set of features,
// clipped to [0, 1].
func (f Features) Score() float64 {
	// Weights are applied in hundredths so that a peer at 1.0 on every
	// feature scores exactly 1.0 rather than a float sum just below it.
	s := (100*weightValidity*f.InvalidityRate +
		100*weightForkAttempts*f.ForkAttemptRate +
		100*weightRequestRate*f.RequestRateExcess +
		100*weightTimingRegularity*f.TimingIrregularity) / 100
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// SelectAction maps a score to its recommended action, highest threshold
// first.
func SelectAction(score float64) Action {
	switch {
	case score >= blacklistThreshold:
		return ActionBlacklist
	case score >= tempBanThreshold:
		return ActionTemporaryBan
	case score >= rateLimitThreshold:
		return ActionRateLimit
	default:
		return ActionNone
	}
}

// peerRecord holds one peer's current features and, when rate-limited,
// its token-bucket limiter.
type peerRecord struct {
	features Features
	limiter  *rate.Limiter
	banUntil time.Time
}

// Detector tracks per-peer behavior features and derives actions.
type Detector struct {
	mu    sync.RWMutex
	peers map[string]*peerRecord

	// rateLimitBurst/rateLimitPerSecond configure limiters created for
	// peers placed under ActionRateLimit.
	rateLimitPerSecond rate.Limit
	rateLimitBurst     int
}

// NewDetector constructs a Detector whose rate-limit action throttles a
// flagged peer to ratePerSecond requests/sec with the given burst.
func NewDetector(ratePerSecond float64, burst int) *Detector {
	return &Detector{
		peers:              make(map[string]*peerRecord),
		rateLimitPerSecond: rate.Limit(ratePerSecond),
		rateLimitBurst:     burst,
	}
}

// Update records a peer's latest feature snapshot and returns the action
// now recommended for it. A peer already under an active temporary ban or
// blacklist continues to return ActionBlacklist / ActionTemporaryBan until
// the caller explicitly clears it via Clear.
func (d *Detector) Update(peer string, f Features, now time.Time) Action {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.peers[peer]
	if !ok {
		rec = &peerRecord{}
		d.peers[peer] = rec
	} else {
		switch prev := SelectAction(rec.features.Score()); {
		case prev == ActionBlacklist:
			return ActionBlacklist
		case prev == ActionTemporaryBan && now.Before(rec.banUntil):
			return ActionTemporaryBan
		}
	}
	rec.features = f

	action := SelectAction(f.Score())
	switch action {
	case ActionTemporaryBan:
		rec.banUntil = now.Add(1 * time.Hour)
	case ActionRateLimit:
		if rec.limiter == nil {
			rec.limiter = rate.NewLimiter(d.rateLimitPerSecond, d.rateLimitBurst)
		}
	}
	return action
}

// Allow reports whether a request from peer should be let through right
// now: always false while blacklisted or temp-banned, governed by the
// peer's token bucket while rate-limited, and true otherwise.
func (d *Detector) Allow(peer string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.peers[peer]
	if !ok {
		return true
	}

	score := rec.features.Score()
	switch SelectAction(score) {
	case ActionBlacklist:
		return false
	case ActionTemporaryBan:
		return now.After(rec.banUntil)
	case ActionRateLimit:
		if rec.limiter == nil {
			rec.limiter = rate.NewLimiter(d.rateLimitPerSecond, d.rateLimitBurst)
		}
		return rec.limiter.AllowN(now, 1)
	default:
		return true
	}
}

// Score returns peer's current anomaly score, or 0 if unknown.
func (d *Detector) Score(peer string) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.peers[peer]
	if !ok {
		return 0
	}
	return rec.features.Score()
}

// Clear resets a peer's record, e.g. after an operator-initiated unban.
func (d *Detector) Clear(peer string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.peers, peer)
}
