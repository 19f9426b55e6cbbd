// encoding.go implements the binary, length-delimited wire format:
// deterministic field order, all integers little-endian, variable-length
// fields length-prefixed.
package chain

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// ErrTruncated is returned when a buffer ends before a declared field or
// length-prefixed section can be fully read.
var ErrTruncated = errors.New("chain: truncated encoding")

func putU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func putI64(buf *bytes.Buffer, v int64) {
	putU64(buf, uint64(v))
}

func putBytes(buf *bytes.Buffer, b []byte) {
	putU32(buf, uint32(len(b)))
	buf.Write(b)
}

func putString(buf *bytes.Buffer, s string) {
	putBytes(buf, []byte(s))
}

type byteReader struct {
	b   []byte
	pos int
}

func (r *byteReader) readN(n int) ([]byte, error) {
	if r.pos+n > len(r.b) {
		return nil, ErrTruncated
	}
	out := r.b[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *byteReader) readU32() (uint32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *byteReader) readU64() (uint64, error) {
	b, err := r.readN(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *byteReader) readI64() (int64, error) {
	v, err := r.readU64()
	return int64(v), err
}

func (r *byteReader) readHash() (Hash, error) {
	b, err := r.readN(32)
	if err != nil {
		return Hash{}, err
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

func (r *byteReader) readBytes() ([]byte, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	return r.readN(int(n))
}

func (r *byteReader) readString() (string, error) {
	b, err := r.readBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeHeader writes the deterministic binary encoding of a BlockHeader:
// version(u32), height(u64), previous_hash(32B), merkle_root(32B),
// timestamp(i64), block_reward(u64), leader(length-prefixed UTF-8),
// attestation_root(32B), tier_counts(4*u32).
func EncodeHeader(h *BlockHeader) ([]byte, error) {
	var buf bytes.Buffer
	putU32(&buf, h.Version)
	putU64(&buf, h.Height)
	buf.Write(h.PreviousHash[:])
	buf.Write(h.MerkleRoot[:])
	putI64(&buf, h.Timestamp)
	putU64(&buf, h.BlockReward)
	putString(&buf, h.Leader)
	buf.Write(h.AttestationRoot[:])
	for _, c := range h.MasternodeTierCounts {
		putU32(&buf, c)
	}
	return buf.Bytes(), nil
}

// DecodeHeader parses a BlockHeader from its binary encoding.
func DecodeHeader(data []byte) (*BlockHeader, error) {
	r := &byteReader{b: data}
	h := &BlockHeader{}

	var err error
	if h.Version, err = r.readU32(); err != nil {
		return nil, err
	}
	if h.Height, err = r.readU64(); err != nil {
		return nil, err
	}
	if h.PreviousHash, err = r.readHash(); err != nil {
		return nil, err
	}
	if h.MerkleRoot, err = r.readHash(); err != nil {
		return nil, err
	}
	if h.Timestamp, err = r.readI64(); err != nil {
		return nil, err
	}
	if h.BlockReward, err = r.readU64(); err != nil {
		return nil, err
	}
	if h.Leader, err = r.readString(); err != nil {
		return nil, err
	}
	if h.AttestationRoot, err = r.readHash(); err != nil {
		return nil, err
	}
	for i := range h.MasternodeTierCounts {
		if h.MasternodeTierCounts[i], err = r.readU32(); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// EncodeTransaction writes the deterministic binary encoding of a
// Transaction: version, inputs, outputs, lock_time, timestamp.
func EncodeTransaction(tx *Transaction) ([]byte, error) {
	var buf bytes.Buffer
	putU32(&buf, tx.Version)

	putU32(&buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf.Write(in.PreviousOutput.TxID[:])
		putU32(&buf, in.PreviousOutput.Vout)
		putBytes(&buf, in.ScriptSig)
		putU32(&buf, in.Sequence)
	}

	putU32(&buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		putU64(&buf, out.Value)
		putBytes(&buf, out.ScriptPubKey)
	}

	putU32(&buf, tx.LockTime)
	putI64(&buf, tx.Timestamp)
	return buf.Bytes(), nil
}

// DecodeTransaction parses a Transaction from its binary encoding.
func DecodeTransaction(data []byte) (*Transaction, error) {
	r := &byteReader{b: data}
	tx := &Transaction{}

	var err error
	if tx.Version, err = r.readU32(); err != nil {
		return nil, err
	}

	inCount, err := r.readU32()
	if err != nil {
		return nil, err
	}
	tx.Inputs = make([]TxInput, inCount)
	for i := range tx.Inputs {
		txid, err := r.readHash()
		if err != nil {
			return nil, err
		}
		vout, err := r.readU32()
		if err != nil {
			return nil, err
		}
		script, err := r.readBytes()
		if err != nil {
			return nil, err
		}
		seq, err := r.readU32()
		if err != nil {
			return nil, err
		}
		tx.Inputs[i] = TxInput{
			PreviousOutput: OutPoint{TxID: txid, Vout: vout},
			ScriptSig:      script,
			Sequence:       seq,
		}
	}

	outCount, err := r.readU32()
	if err != nil {
		return nil, err
	}
	tx.Outputs = make([]TxOutput, outCount)
	for i := range tx.Outputs {
		value, err := r.readU64()
		if err != nil {
			return nil, err
		}
		script, err := r.readBytes()
		if err != nil {
			return nil, err
		}
		tx.Outputs[i] = TxOutput{Value: value, ScriptPubKey: script}
	}

	if tx.LockTime, err = r.readU32(); err != nil {
		return nil, err
	}
	if tx.Timestamp, err = r.readI64(); err != nil {
		return nil, err
	}
	return tx, nil
}

// EncodeBlock writes a full block: header, then length-prefixed vectors of
// transactions, masternode rewards, and time attestations.
func EncodeBlock(b *Block) ([]byte, error) {
	var buf bytes.Buffer

	headerBytes, err := EncodeHeader(b.Header)
	if err != nil {
		return nil, err
	}
	putBytes(&buf, headerBytes)

	putU32(&buf, uint32(len(b.Transactions)))
	for _, tx := range b.Transactions {
		txBytes, err := EncodeTransaction(tx)
		if err != nil {
			return nil, err
		}
		putBytes(&buf, txBytes)
	}

	putU32(&buf, uint32(len(b.MasternodeRewards)))
	for _, rw := range b.MasternodeRewards {
		putString(&buf, rw.Address)
		putU64(&buf, rw.Amount)
	}

	putU32(&buf, uint32(len(b.TimeAttestations)))
	for _, ta := range b.TimeAttestations {
		encodeAttestedHeartbeat(&buf, &ta)
	}

	encodeElectionProof(&buf, b.Election)
	encodeDelayProof(&buf, b.Delay)

	return buf.Bytes(), nil
}

// encodeElectionProof writes a presence flag followed by the proof fields,
// so blocks produced before ElectionProof existed (proof == nil) still
// round-trip through DecodeBlock.
func encodeElectionProof(buf *bytes.Buffer, ep *ElectionProof) {
	if ep == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	buf.Write(ep.Output[:])
	putBytes(buf, ep.Proof)
}

func decodeElectionProof(r *byteReader) (*ElectionProof, error) {
	present, err := r.readN(1)
	if err != nil {
		return nil, err
	}
	if present[0] == 0 {
		return nil, nil
	}
	outBytes, err := r.readN(32)
	if err != nil {
		return nil, err
	}
	proof, err := r.readBytes()
	if err != nil {
		return nil, err
	}
	ep := &ElectionProof{Proof: proof}
	copy(ep.Output[:], outBytes)
	return ep, nil
}

func encodeDelayProof(buf *bytes.Buffer, dp *DelayProof) {
	if dp == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	buf.Write(dp.Output[:])
	putU64(buf, dp.Iterations)
	putU32(buf, uint32(len(dp.Checkpoints)))
	for _, c := range dp.Checkpoints {
		buf.Write(c[:])
	}
}

func decodeDelayProof(r *byteReader) (*DelayProof, error) {
	present, err := r.readN(1)
	if err != nil {
		return nil, err
	}
	if present[0] == 0 {
		return nil, nil
	}
	outBytes, err := r.readN(32)
	if err != nil {
		return nil, err
	}
	iterations, err := r.readU64()
	if err != nil {
		return nil, err
	}
	count, err := r.readU32()
	if err != nil {
		return nil, err
	}
	dp := &DelayProof{Iterations: iterations, Checkpoints: make([][32]byte, count)}
	copy(dp.Output[:], outBytes)
	for i := range dp.Checkpoints {
		cb, err := r.readN(32)
		if err != nil {
			return nil, err
		}
		copy(dp.Checkpoints[i][:], cb)
	}
	return dp, nil
}

// DecodeBlock parses a full block from its binary encoding.
func DecodeBlock(data []byte) (*Block, error) {
	r := &byteReader{b: data}

	headerBytes, err := r.readBytes()
	if err != nil {
		return nil, err
	}
	header, err := DecodeHeader(headerBytes)
	if err != nil {
		return nil, err
	}

	txCount, err := r.readU32()
	if err != nil {
		return nil, err
	}
	txs := make([]*Transaction, txCount)
	for i := range txs {
		txBytes, err := r.readBytes()
		if err != nil {
			return nil, err
		}
		txs[i], err = DecodeTransaction(txBytes)
		if err != nil {
			return nil, err
		}
	}

	rwCount, err := r.readU32()
	if err != nil {
		return nil, err
	}
	rewards := make([]RewardEntry, rwCount)
	for i := range rewards {
		addr, err := r.readString()
		if err != nil {
			return nil, err
		}
		amount, err := r.readU64()
		if err != nil {
			return nil, err
		}
		rewards[i] = RewardEntry{Address: addr, Amount: amount}
	}

	taCount, err := r.readU32()
	if err != nil {
		return nil, err
	}
	attestations := make([]AttestedHeartbeat, taCount)
	for i := range attestations {
		ta, err := decodeAttestedHeartbeat(r)
		if err != nil {
			return nil, err
		}
		attestations[i] = ta
	}

	election, err := decodeElectionProof(r)
	if err != nil {
		return nil, err
	}
	delay, err := decodeDelayProof(r)
	if err != nil {
		return nil, err
	}

	return &Block{
		Header:            header,
		Transactions:      txs,
		MasternodeRewards: rewards,
		TimeAttestations:  attestations,
		Election:          election,
		Delay:             delay,
	}, nil
}

func encodeAttestedHeartbeat(buf *bytes.Buffer, ah *AttestedHeartbeat) {
	hb := ah.Heartbeat
	putString(buf, hb.MasternodeAddress)
	putU64(buf, hb.SequenceNumber)
	putI64(buf, hb.Timestamp)
	buf.Write(hb.MasternodePubKey[:])
	buf.Write(hb.Signature[:])

	putU32(buf, uint32(len(ah.Attestations)))
	for _, a := range ah.Attestations {
		buf.Write(a.HeartbeatHash[:])
		putString(buf, a.WitnessAddress)
		buf.Write(a.WitnessPubKey[:])
		putI64(buf, a.WitnessTimestamp)
		buf.Write(a.Signature[:])
	}
	putI64(buf, ah.ReceivedAt)
}

func decodeAttestedHeartbeat(r *byteReader) (AttestedHeartbeat, error) {
	var ah AttestedHeartbeat

	addr, err := r.readString()
	if err != nil {
		return ah, err
	}
	seq, err := r.readU64()
	if err != nil {
		return ah, err
	}
	ts, err := r.readI64()
	if err != nil {
		return ah, err
	}
	pkBytes, err := r.readN(32)
	if err != nil {
		return ah, err
	}
	sigBytes, err := r.readN(64)
	if err != nil {
		return ah, err
	}
	var pk PublicKey
	copy(pk[:], pkBytes)
	var sig Signature
	copy(sig[:], sigBytes)
	ah.Heartbeat = SignedHeartbeat{
		MasternodeAddress: addr,
		SequenceNumber:    seq,
		Timestamp:         ts,
		MasternodePubKey:  pk,
		Signature:         sig,
	}

	attCount, err := r.readU32()
	if err != nil {
		return ah, err
	}
	ah.Attestations = make([]WitnessAttestation, attCount)
	for i := range ah.Attestations {
		hh, err := r.readHash()
		if err != nil {
			return ah, err
		}
		wAddr, err := r.readString()
		if err != nil {
			return ah, err
		}
		wpkBytes, err := r.readN(32)
		if err != nil {
			return ah, err
		}
		wts, err := r.readI64()
		if err != nil {
			return ah, err
		}
		wsigBytes, err := r.readN(64)
		if err != nil {
			return ah, err
		}
		var wpk PublicKey
		copy(wpk[:], wpkBytes)
		var wsig Signature
		copy(wsig[:], wsigBytes)
		ah.Attestations[i] = WitnessAttestation{
			HeartbeatHash:    hh,
			WitnessAddress:   wAddr,
			WitnessPubKey:    wpk,
			WitnessTimestamp: wts,
			Signature:        wsig,
		}
	}

	if ah.ReceivedAt, err = r.readI64(); err != nil {
		return ah, err
	}
	return ah, nil
}

// WriteBlock writes a block's encoding to w.
func WriteBlock(w io.Writer, b *Block) error {
	enc, err := EncodeBlock(b)
	if err != nil {
		return err
	}
	_, err = w.Write(enc)
	return err
}

// EncodeMasternodeProfile writes the deterministic binary encoding of a
// MasternodeProfile for persistence in the masternodes keyspace.
func EncodeMasternodeProfile(p *MasternodeProfile) ([]byte, error) {
	var buf bytes.Buffer
	putString(&buf, p.Address)
	buf.Write(p.PublicKey[:])
	putU32(&buf, uint32(p.Tier))
	putU64(&buf, p.StakeWeight)
	putU64(&buf, p.VerifiedHeartbeatCount)
	putU64(&buf, p.CollateralLocked)
	putU32(&buf, uint32(p.Status))
	return buf.Bytes(), nil
}

// DecodeMasternodeProfile parses a MasternodeProfile from its binary
// encoding.
func DecodeMasternodeProfile(data []byte) (*MasternodeProfile, error) {
	r := &byteReader{b: data}
	p := &MasternodeProfile{}

	addr, err := r.readString()
	if err != nil {
		return nil, err
	}
	p.Address = addr

	pub, err := r.readHash()
	if err != nil {
		return nil, err
	}
	copy(p.PublicKey[:], pub[:])

	tier, err := r.readU32()
	if err != nil {
		return nil, err
	}
	p.Tier = MasternodeTier(tier)

	if p.StakeWeight, err = r.readU64(); err != nil {
		return nil, err
	}
	if p.VerifiedHeartbeatCount, err = r.readU64(); err != nil {
		return nil, err
	}
	if p.CollateralLocked, err = r.readU64(); err != nil {
		return nil, err
	}

	status, err := r.readU32()
	if err != nil {
		return nil, err
	}
	p.Status = MasternodeStatus(status)
	return p, nil
}
