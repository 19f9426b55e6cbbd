package metrics

import (
	"math"
	"sync"
)

// EWMA is a tick-driven exponentially weighted moving average. Samples
// accumulate via Update; each Tick folds the accumulated per-second rate
// into the average with the configured decay factor. Safe for concurrent
// use.
type EWMA struct {
	mu        sync.Mutex
	alpha     float64
	interval  float64 // seconds per tick
	uncounted int64
	rate      float64
	primed    bool
}

// StandardEWMA returns an EWMA with the given decay factor and the
// conventional 5-second tick interval.
func StandardEWMA(alpha float64) *EWMA {
	return &EWMA{alpha: alpha, interval: 5.0}
}

// NewEWMA1 returns a 1-minute EWMA.
func NewEWMA1() *EWMA { return StandardEWMA(1 - math.Exp(-5.0/60.0)) }

// NewEWMA5 returns a 5-minute EWMA.
func NewEWMA5() *EWMA { return StandardEWMA(1 - math.Exp(-5.0/300.0)) }

// NewEWMA15 returns a 15-minute EWMA.
func NewEWMA15() *EWMA { return StandardEWMA(1 - math.Exp(-5.0/900.0)) }

// Update adds n samples to the pending total for the next Tick.
func (e *EWMA) Update(n int64) {
	e.mu.Lock()
	e.uncounted += n
	e.mu.Unlock()
}

// Tick folds pending samples into the average. The first tick seeds the
// rate directly rather than decaying from zero.
func (e *EWMA) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	instant := float64(e.uncounted) / e.interval
	e.uncounted = 0
	if e.primed {
		e.rate += e.alpha * (instant - e.rate)
	} else {
		e.rate = instant
		e.primed = true
	}
}

// Rate returns the averaged per-second rate as of the last Tick.
func (e *EWMA) Rate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}
