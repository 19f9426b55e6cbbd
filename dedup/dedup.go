// Package dedup provides a bounded, probabilistic message-deduplication
// filter used to drop already-seen gossip (blocks, heartbeats,
// attestations) before it reaches consensus processing.
//
// Backed by github.com/holiman/bloomfilter/v2, periodically rotated into
// a fresh filter so the false-positive rate doesn't grow unbounded over
// the life of a long-running node.
package dedup

import (
	"hash"
	"sync"
	"time"

	bloomfilter "github.com/holiman/bloomfilter/v2"

	"github.com/timecoin/timecoind/metrics"
	"github.com/timecoin/timecoind/vcrypto"
)

// RotationInterval is the maximum age of a Filter's active Bloom table
// before it should be rotated regardless of how many items it holds, so a
// quiet peer's stale entries don't linger in the filter indefinitely.
const RotationInterval = 5 * time.Minute

// u64Hash adapts a precomputed 64-bit digest to the hash.Hash64 interface
// bloomfilter.Filter expects, without re-hashing.
type u64Hash uint64

func (h u64Hash) Write(p []byte) (int, error) { return len(p), nil }
func (h u64Hash) Sum(b []byte) []byte         { return b }
func (h u64Hash) Reset()                      {}
func (h u64Hash) Size() int                   { return 8 }
func (h u64Hash) BlockSize() int              { return 8 }
func (h u64Hash) Sum64() uint64               { return uint64(h) }

var _ hash.Hash64 = u64Hash(0)

func keyHash(key []byte) hash.Hash64 {
	digest := vcrypto.Hash256(key)
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(digest[i]) << (8 * i)
	}
	return u64Hash(v)
}

// Filter is a thread-safe, capacity-bounded approximate-membership filter.
// False positives (treating an unseen message as seen) are possible and
// acceptable for gossip dedup; false negatives are not.
type Filter struct {
	mu       sync.Mutex
	bloom    *bloomfilter.Filter
	maxItems uint64
	fpRate   float64
	inserted uint64
}

// New constructs a Filter sized for maxItems entries at the given target
// false-positive rate.
func New(maxItems uint64, fpRate float64) (*Filter, error) {
	bf, err := bloomfilter.NewOptimal(maxItems, fpRate)
	if err != nil {
		return nil, err
	}
	return &Filter{bloom: bf, maxItems: maxItems, fpRate: fpRate}, nil
}

// rotateLocked swaps in a fresh empty Bloom table. Caller holds f.mu.
func (f *Filter) rotateLocked() {
	if fresh, err := bloomfilter.NewOptimal(f.maxItems, f.fpRate); err == nil {
		f.bloom = fresh
		f.inserted = 0
	}
}

// Rotate unconditionally swaps in a fresh, empty Bloom table, discarding
// everything recorded so far. Callers schedule this on a timer
// (RotationInterval) so a node's dedup window doesn't grow without bound
// even under light, steady traffic that never exhausts capacity.
func (f *Filter) Rotate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rotateLocked()
}

// Seen reports whether key has already been recorded. It does not modify
// the filter; callers should follow up with Add for genuinely new keys.
func (f *Filter) Seen(key []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bloom.Contains(keyHash(key))
}

// Add records key as seen, rotating into a fresh empty filter first if
// capacity has been exhausted (trading a brief false-negative window at
// rotation for a bounded false-positive rate over time).
func (f *Filter) Add(key []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inserted >= f.maxItems {
		f.rotateLocked()
	}
	f.bloom.Add(keyHash(key))
	f.inserted++
}

// SeenOrAdd is the common gossip-processing idiom: if key has been seen,
// report true and do nothing further; otherwise record it and report
// false.
func (f *Filter) SeenOrAdd(key []byte) bool {
	metrics.MessagesChecked.Inc()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.bloom.Contains(keyHash(key)) {
		metrics.MessagesDeduplicated.Inc()
		return true
	}
	if f.inserted >= f.maxItems {
		f.rotateLocked()
	}
	f.bloom.Add(keyHash(key))
	f.inserted++
	return false
}
