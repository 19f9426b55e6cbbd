// Package heartbeat implements the peer-attested liveness system: a
// masternode signs a heartbeat claiming it is alive at a sequence number,
// and a quorum of other masternodes must countersign it before it counts
// toward uptime. This defeats Sybil-fabricated historical uptime, since a
// single actor cannot manufacture witness attestations from addresses it
// doesn't control.
package heartbeat

import (
	"encoding/binary"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/timecoin/timecoind/chain"
	"github.com/timecoin/timecoind/metrics"
	"github.com/timecoin/timecoind/vcrypto"
)

// Protocol constants.
const (
	// MinWitnesses is the number of distinct, signature-valid witness
	// attestations required before a heartbeat is "verified".
	MinWitnesses = 3

	// MaxHistory bounds the number of attested heartbeats retained per
	// ring; the oldest are evicted once the bound is exceeded.
	MaxHistory = 1000

	// ClockSkewTolerance is the maximum allowed difference between a
	// heartbeat's claimed timestamp and the local wall clock.
	ClockSkewTolerance = 180 * time.Second

	// DefaultActivityTimeout is the adaptive-timeout window a registered
	// masternode is allowed to go without a newly-verified heartbeat before
	// DeriveStatus considers it inactive. It is more than three times
	// ClockSkewTolerance, giving peers enough slack to re-witness a
	// heartbeat after a transient partition before the masternode is
	// marked down.
	DefaultActivityTimeout = 10 * time.Minute

	heartbeatDomain   = "TIMECOIN_HEARTBEAT:"
	attestationDomain = "TIMECOIN_ATTESTATION:"
)

// Sentinel errors surfaced to callers on rejection. Protocol errors
// reject the single message without penalizing the peer connection.
var (
	ErrInvalidSignature = errors.New("heartbeat: invalid signature")
	ErrClockSkew        = errors.New("heartbeat: timestamp outside tolerance")
	ErrSequenceNotAhead = errors.New("heartbeat: sequence must exceed last verified")
	ErrSelfAttestation  = errors.New("heartbeat: witness cannot attest its own heartbeat")
	ErrUnknownHeartbeat = errors.New("heartbeat: no pending heartbeat for this hash")
)

// SigningPreimage returns the exact byte sequence a SignedHeartbeat's
// signature is computed over: H-domain ‖ address ‖ seq_le ‖ ts_le ‖ pubkey.
func SigningPreimage(address string, seq uint64, timestamp int64, pubkey chain.PublicKey) []byte {
	buf := make([]byte, 0, len(heartbeatDomain)+len(address)+8+8+len(pubkey))
	buf = append(buf, heartbeatDomain...)
	buf = append(buf, address...)
	buf = binary.LittleEndian.AppendUint64(buf, seq)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(timestamp))
	buf = append(buf, pubkey[:]...)
	return buf
}

// AttestationPreimage returns the exact byte sequence a WitnessAttestation's
// signature is computed over.
func AttestationPreimage(heartbeatHash chain.Hash, witnessAddress string, witnessTimestamp int64) []byte {
	buf := make([]byte, 0, len(attestationDomain)+len(heartbeatHash)+len(witnessAddress)+8)
	buf = append(buf, attestationDomain...)
	buf = append(buf, heartbeatHash[:]...)
	buf = append(buf, witnessAddress...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(witnessTimestamp))
	return buf
}

// Signer creates and signs heartbeats/attestations for a local masternode.
type Signer struct {
	Address string
	PubKey  chain.PublicKey
	privKey []byte // ed25519.PrivateKey, kept opaque to avoid importing crypto/ed25519 here
}

// NewSigner wraps an address and Ed25519 keypair.
func NewSigner(address string, pubKey chain.PublicKey, privKey []byte) *Signer {
	return &Signer{Address: address, PubKey: pubKey, privKey: privKey}
}

// SignHeartbeat produces a SignedHeartbeat for the given sequence number at
// the given timestamp.
func (s *Signer) SignHeartbeat(seq uint64, timestamp time.Time) chain.SignedHeartbeat {
	ts := timestamp.Unix()
	msg := SigningPreimage(s.Address, seq, ts, s.PubKey)
	sig := vcrypto.Sign(s.privKey, msg)
	var out chain.Signature
	copy(out[:], sig)
	return chain.SignedHeartbeat{
		MasternodeAddress: s.Address,
		SequenceNumber:    seq,
		Timestamp:         ts,
		MasternodePubKey:  s.PubKey,
		Signature:         out,
	}
}

// WitnessHeartbeat produces a WitnessAttestation over hb's hash, signed by
// this signer acting as a witness.
func (s *Signer) WitnessHeartbeat(hbHash chain.Hash, timestamp time.Time) chain.WitnessAttestation {
	ts := timestamp.Unix()
	msg := AttestationPreimage(hbHash, s.Address, ts)
	sig := vcrypto.Sign(s.privKey, msg)
	var out chain.Signature
	copy(out[:], sig)
	return chain.WitnessAttestation{
		HeartbeatHash:    hbHash,
		WitnessAddress:   s.Address,
		WitnessPubKey:    s.PubKey,
		WitnessTimestamp: ts,
		Signature:        out,
	}
}

// HeartbeatHash computes the digest a WitnessAttestation references.
func HeartbeatHash(hb chain.SignedHeartbeat) chain.Hash {
	return chain.Hash(vcrypto.Hash256(SigningPreimage(hb.MasternodeAddress, hb.SequenceNumber, hb.Timestamp, hb.MasternodePubKey)))
}

// VerifyHeartbeatSignature checks hb's signature against its own preimage.
func VerifyHeartbeatSignature(hb chain.SignedHeartbeat) bool {
	msg := SigningPreimage(hb.MasternodeAddress, hb.SequenceNumber, hb.Timestamp, hb.MasternodePubKey)
	return vcrypto.Verify(hb.MasternodePubKey[:], msg, hb.Signature[:])
}

// VerifyAttestationSignature checks a's signature against its own preimage.
func VerifyAttestationSignature(a chain.WitnessAttestation) bool {
	msg := AttestationPreimage(a.HeartbeatHash, a.WitnessAddress, a.WitnessTimestamp)
	return vcrypto.Verify(a.WitnessPubKey[:], msg, a.Signature[:])
}

// entry is the ring's internal bookkeeping for a single pending or verified
// heartbeat.
type entry struct {
	attested chain.AttestedHeartbeat
	verified bool
	addedAt  time.Time
}

// Ring is the per-node attested-heartbeat store. It tracks pending and
// verified heartbeats, per-address verified sequence numbers, and
// verified-heartbeat counts, bounded to MaxHistory entries with an
// age-based sweep.
type Ring struct {
	mu sync.RWMutex

	maxAge time.Duration

	byHash map[chain.Hash]*entry
	order  []chain.Hash // insertion order, oldest first, for bounding

	lastVerifiedSeq map[string]uint64
	verifiedCount   map[string]uint64
	lastVerifiedAt  map[string]time.Time
}

// NewRing constructs an empty ring. maxAge governs the periodic sweep: a
// pending or verified entry older than maxAge since receipt is dropped.
func NewRing(maxAge time.Duration) *Ring {
	return &Ring{
		maxAge:          maxAge,
		byHash:          make(map[chain.Hash]*entry),
		lastVerifiedSeq: make(map[string]uint64),
		verifiedCount:   make(map[string]uint64),
		lastVerifiedAt:  make(map[string]time.Time),
	}
}

// Submit records a freshly-received, self-signed heartbeat as pending (no
// attestations yet). It enforces signature validity, clock skew tolerance,
// and per-address sequence monotonicity against the last *verified*
// sequence; unverified entries may arrive out of order.
func (r *Ring) Submit(hb chain.SignedHeartbeat, now time.Time) (chain.Hash, error) {
	if !VerifyHeartbeatSignature(hb) {
		return chain.Hash{}, ErrInvalidSignature
	}
	skew := now.Unix() - hb.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > ClockSkewTolerance {
		return chain.Hash{}, ErrClockSkew
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if hb.SequenceNumber <= r.lastVerifiedSeq[hb.MasternodeAddress] {
		return chain.Hash{}, ErrSequenceNotAhead
	}

	h := HeartbeatHash(hb)
	if _, exists := r.byHash[h]; exists {
		return h, nil // idempotent resubmission
	}
	if len(r.order) >= MaxHistory {
		r.evictOldestLocked()
	}

	r.byHash[h] = &entry{
		attested: chain.AttestedHeartbeat{Heartbeat: hb, ReceivedAt: now.Unix()},
		addedAt:  now,
	}
	r.order = append(r.order, h)
	metrics.HeartbeatsSubmitted.Inc()
	return h, nil
}

// Witness records a countersignature for a previously-submitted heartbeat.
// Self-attestation, duplicate witness addresses (first-wins), and invalid
// signatures are rejected. now stamps the per-address last-verified time
// when this attestation completes a quorum. Returns the updated
// verification state.
func (r *Ring) Witness(a chain.WitnessAttestation, now time.Time) (verified bool, err error) {
	if !VerifyAttestationSignature(a) {
		return false, ErrInvalidSignature
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byHash[a.HeartbeatHash]
	if !ok {
		return false, ErrUnknownHeartbeat
	}
	if a.WitnessAddress == e.attested.Heartbeat.MasternodeAddress {
		return false, ErrSelfAttestation
	}
	if e.verified {
		return true, nil
	}

	for _, existing := range e.attested.Attestations {
		if existing.WitnessAddress == a.WitnessAddress {
			return false, nil // duplicate witness, first-wins, silently ignored
		}
	}

	e.attested.Attestations = append(e.attested.Attestations, a)
	if !e.attested.IsVerified(MinWitnesses) {
		return false, nil
	}

	addr := e.attested.Heartbeat.MasternodeAddress
	seq := e.attested.Heartbeat.SequenceNumber
	e.verified = true
	r.lastVerifiedSeq[addr] = seq
	r.verifiedCount[addr]++
	r.lastVerifiedAt[addr] = now
	metrics.HeartbeatsVerified.Inc()
	return true, nil
}

// evictOldestLocked drops the single oldest ring entry. Caller holds mu.
func (r *Ring) evictOldestLocked() {
	if len(r.order) == 0 {
		return
	}
	oldest := r.order[0]
	r.order = r.order[1:]
	delete(r.byHash, oldest)
}

// Sweep drops every entry received more than maxAge ago, regardless of
// verification state, and reports how many were removed.
func (r *Ring) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.order[:0]
	removed := 0
	for _, h := range r.order {
		e := r.byHash[h]
		if now.Sub(e.addedAt) > r.maxAge {
			delete(r.byHash, h)
			removed++
			continue
		}
		kept = append(kept, h)
	}
	r.order = kept
	return removed
}

// VerifiedCount returns the lifetime verified-heartbeat count for address.
func (r *Ring) VerifiedCount(address string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.verifiedCount[address]
}

// LastVerifiedSequence returns the highest verified sequence number seen
// for address, or 0 if none.
func (r *Ring) LastVerifiedSequence(address string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastVerifiedSeq[address]
}

// Get returns the current attested-heartbeat state for a hash, if present.
func (r *Ring) Get(h chain.Hash) (chain.AttestedHeartbeat, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byHash[h]
	if !ok {
		return chain.AttestedHeartbeat{}, false
	}
	return e.attested, true
}

// VerifiedSince returns every verified AttestedHeartbeat received at or
// after since, ordered oldest first, for inclusion in a block's
// attestation set.
func (r *Ring) VerifiedSince(since time.Time) []chain.AttestedHeartbeat {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]chain.AttestedHeartbeat, 0)
	for _, h := range r.order {
		e := r.byHash[h]
		if e.verified && e.addedAt.Unix() >= since.Unix() {
			out = append(out, e.attested)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt < out[j].ReceivedAt
	})
	return out
}

// Len returns the number of entries currently held (pending + verified).
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// LastVerifiedAt returns the local wall-clock time at which address's most
// recent heartbeat reached quorum, and whether it has ever done so.
func (r *Ring) LastVerifiedAt(address string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.lastVerifiedAt[address]
	return t, ok
}

// DeriveStatus computes the lifecycle status a MasternodeProfile should
// hold given its current status, the last time one of its heartbeats
// reached quorum (ok is false if it never has), and the current time.
//
// Transitions: registered -> active once a heartbeat has ever
// been verified; active -> inactive once the adaptive timeout elapses
// without a fresh verified heartbeat; inactive -> active again if
// heartbeats resume. Deregistered is terminal and only reachable through
// an explicit operator action, never through this derivation.
func DeriveStatus(current chain.MasternodeStatus, lastVerified time.Time, everVerified bool, now time.Time, timeout time.Duration) chain.MasternodeStatus {
	if current == chain.StatusDeregistered {
		return chain.StatusDeregistered
	}
	if !everVerified {
		if current == chain.StatusRegistered {
			return chain.StatusRegistered
		}
		return chain.StatusInactive
	}
	if now.Sub(lastVerified) > timeout {
		return chain.StatusInactive
	}
	return chain.StatusActive
}
