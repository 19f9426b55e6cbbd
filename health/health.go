// Package health implements the consensus-health predictor: a rolling
// sample window of peer chain-tip agreement used to recommend a recovery
// action (none, increase peers, trigger sync, enter defensive mode, alert
// operator) and to track fork episodes.
package health

import (
	"sort"
	"sync"
	"time"
)

// Bounds on retained history.
const (
	MaxSamples     = 1000
	PredictionWindow = 20
	MinSamples     = 10
	MaxForkEvents  = 100

	forkEventOpenThreshold  = 0.6
	alertScoreThreshold     = 0.3
	defensiveForkProbThresh = 0.7
	syncAgreementThreshold  = 0.8
	increasePeersResponseThreshold = 0.5
)

// Action is a recommended recovery action.
type Action uint8

const (
	ActionNone Action = iota
	ActionIncreasePeerConnections
	ActionTriggerSync
	ActionEnterDefensiveMode
	ActionAlertOperator
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionIncreasePeerConnections:
		return "increase_peer_connections"
	case ActionTriggerSync:
		return "trigger_sync"
	case ActionEnterDefensiveMode:
		return "enter_defensive_mode"
	case ActionAlertOperator:
		return "alert_operator"
	default:
		return "unknown"
	}
}

// Sample is one observation of network agreement at a point in time.
type Sample struct {
	Height         uint64
	AgreementRatio float64 // dominant_hash_count / total_reports at Height
	HeightVariance float64
	ForkCount      int
	ResponseRate   float64
	ObservedAt     time.Time
}

// Prediction is the result of evaluating the current sample window.
type Prediction struct {
	HealthScore    float64
	ForkProbability float64
	Action         Action
	Confidence     float64
	SampleCount    int
}

// ForkEvent records an episode where agreement dropped below the
// fork-event threshold, and (once recovered) how long it lasted.
type ForkEvent struct {
	OpenedAt   time.Time
	ClosedAt   time.Time
	Resolution string
	Open       bool
}

const resolutionNaturalConvergence = "natural_convergence"

// Monitor aggregates peer chain-tip reports into agreement samples and
// produces health predictions. All public methods are thread-safe.
type Monitor struct {
	mu sync.RWMutex

	samples []Sample // bounded to MaxSamples, oldest first

	tipReports map[uint64]map[[32]byte]int // height -> hash -> report count

	forkEvents []ForkEvent // bounded to MaxForkEvents
}

// NewMonitor constructs an empty health monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		tipReports: make(map[uint64]map[[32]byte]int),
	}
}

// RecordTipReport registers one peer's reported chain tip at height,
// updating the per-height hash histogram used to compute agreement ratio.
func (m *Monitor) RecordTipReport(height uint64, hash [32]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hist, ok := m.tipReports[height]
	if !ok {
		hist = make(map[[32]byte]int)
		m.tipReports[height] = hist
	}
	hist[hash]++
}

// AgreementRatio returns dominant_hash_count / total_reports for height, or
// 1.0 if no reports have been recorded (nothing to disagree about).
func (m *Monitor) AgreementRatio(height uint64) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agreementRatioLocked(height)
}

func (m *Monitor) agreementRatioLocked(height uint64) float64 {
	hist, ok := m.tipReports[height]
	if !ok || len(hist) == 0 {
		return 1.0
	}
	total := 0
	dominant := 0
	for _, count := range hist {
		total += count
		if count > dominant {
			dominant = count
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(dominant) / float64(total)
}

// RecordSample appends a new sample to the rolling window, evicting the
// oldest once MaxSamples is exceeded, and updates fork-event bookkeeping.
func (m *Monitor) RecordSample(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples = append(m.samples, s)
	if len(m.samples) > MaxSamples {
		m.samples = m.samples[len(m.samples)-MaxSamples:]
	}

	m.updateForkEventsLocked(s)
}

func (m *Monitor) updateForkEventsLocked(s Sample) {
	n := len(m.forkEvents)
	var open *ForkEvent
	if n > 0 && m.forkEvents[n-1].Open {
		open = &m.forkEvents[n-1]
	}

	switch {
	case s.AgreementRatio < forkEventOpenThreshold && open == nil:
		if len(m.forkEvents) >= MaxForkEvents {
			m.forkEvents = m.forkEvents[1:]
		}
		m.forkEvents = append(m.forkEvents, ForkEvent{OpenedAt: s.ObservedAt, Open: true})
	case s.AgreementRatio >= forkEventOpenThreshold && open != nil:
		open.ClosedAt = s.ObservedAt
		open.Resolution = resolutionNaturalConvergence
		open.Open = false
	}
}

// ForkEvents returns a copy of the retained fork-event history, oldest
// first.
func (m *Monitor) ForkEvents() []ForkEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ForkEvent, len(m.forkEvents))
	copy(out, m.forkEvents)
	return out
}

// Predict evaluates the most recent PredictionWindow samples and returns a
// recommended action. Below MinSamples total recorded samples, it always
// returns ActionNone with zero confidence.
func (m *Monitor) Predict() Prediction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := len(m.samples)
	if total < MinSamples {
		return Prediction{Action: ActionNone, Confidence: 0, SampleCount: total}
	}

	window := m.samples
	if len(window) > PredictionWindow {
		window = window[len(window)-PredictionWindow:]
	}

	var sumAgreement, sumVariance, sumResponse float64
	var sumForks int
	for _, s := range window {
		sumAgreement += s.AgreementRatio
		sumVariance += s.HeightVariance
		sumResponse += s.ResponseRate
		sumForks += s.ForkCount
	}
	n := float64(len(window))
	avgAgreement := sumAgreement / n
	avgVariance := sumVariance / n
	avgResponse := sumResponse / n
	avgForks := float64(sumForks) / n

	trend := agreementTrend(window)

	healthScore := 0.35*avgAgreement +
		0.20*(1-avgVariance/10) +
		0.20*avgResponse +
		0.15*(1-avgForks/5) +
		0.10*trend
	healthScore = clip01(healthScore)

	forkProbability := 1 - avgAgreement
	if trend < 0 {
		forkProbability += 0.2
	} else if trend > 0 {
		forkProbability -= 0.1
	}
	forkProbability = clip01(forkProbability)

	action := selectAction(healthScore, forkProbability, avgAgreement, avgResponse)

	return Prediction{
		HealthScore:     healthScore,
		ForkProbability: forkProbability,
		Action:          action,
		Confidence:      n / PredictionWindow,
		SampleCount:     total,
	}
}

// selectAction applies the first-match-wins action table.
func selectAction(healthScore, forkProbability, avgAgreement, avgResponse float64) Action {
	switch {
	case healthScore < alertScoreThreshold:
		return ActionAlertOperator
	case forkProbability > defensiveForkProbThresh:
		return ActionEnterDefensiveMode
	case avgAgreement < syncAgreementThreshold:
		return ActionTriggerSync
	case avgResponse < increasePeersResponseThreshold:
		return ActionIncreasePeerConnections
	default:
		return ActionNone
	}
}

// agreementTrend compares the agreement ratio of the newer half of the
// window against the older half, ordered by ObservedAt, clipped to
// [-1, 1]. A positive value means agreement is improving.
func agreementTrend(window []Sample) float64 {
	ordered := make([]Sample, len(window))
	copy(ordered, window)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ObservedAt.Before(ordered[j].ObservedAt) })

	mid := len(ordered) / 2
	if mid == 0 {
		return 0
	}
	older := ordered[:mid]
	newer := ordered[mid:]

	avg := func(s []Sample) float64 {
		var sum float64
		for _, x := range s {
			sum += x.AgreementRatio
		}
		return sum / float64(len(s))
	}

	return clip(avg(newer)-avg(older), -1, 1)
}

func clip01(v float64) float64 {
	return clip(v, 0, 1)
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
