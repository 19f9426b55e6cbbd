package chain

import (
	"errors"

	"github.com/timecoin/timecoind/vcrypto"
)

// Sentinel errors for transaction signature verification.
var (
	ErrTxSignatureFormat  = errors.New("chain: script_sig is not pubkey(32) || signature(64)")
	ErrTxSignatureInvalid = errors.New("chain: transaction input signature invalid")
)

// scriptSigLen is the expected ScriptSig length under this module's
// narrow signature scheme: a 32-byte Ed25519 public key followed by its
// 64-byte signature over the transaction's signing preimage. Full
// script-pubkey evaluation is out of scope for the narrow UTXO interface
// this module carries.
const scriptSigLen = 32 + 64

// TransactionSigningPreimage returns the exact bytes each input's
// signature commits to: the transaction's encoding with every
// ScriptSig cleared, so a signature cannot cover itself.
func TransactionSigningPreimage(tx *Transaction) []byte {
	clone := Transaction{
		Version:   tx.Version,
		Inputs:    make([]TxInput, len(tx.Inputs)),
		Outputs:   tx.Outputs,
		LockTime:  tx.LockTime,
		Timestamp: tx.Timestamp,
	}
	for i, in := range tx.Inputs {
		clone.Inputs[i] = TxInput{PreviousOutput: in.PreviousOutput, Sequence: in.Sequence}
	}
	enc, err := EncodeTransaction(&clone)
	if err != nil {
		panic(err)
	}
	return enc
}

// VerifyTransactionSignatures checks every non-coinbase input's ScriptSig
// against the transaction's signing preimage. Coinbase transactions (no
// inputs) carry no signatures to check.
func VerifyTransactionSignatures(tx *Transaction) error {
	if tx.IsCoinbase() {
		return nil
	}
	preimage := TransactionSigningPreimage(tx)
	for _, in := range tx.Inputs {
		if len(in.ScriptSig) != scriptSigLen {
			return ErrTxSignatureFormat
		}
		pub := in.ScriptSig[:32]
		sig := in.ScriptSig[32:]
		if !vcrypto.Verify(pub, preimage, sig) {
			return ErrTxSignatureInvalid
		}
	}
	return nil
}
