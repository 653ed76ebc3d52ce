// Package crypto provides signing-key management for the Solana wallet:
// base58 codecs, ed25519 transaction signing, and encrypted key-file storage.
package crypto

import (
	"crypto/ed25519"
	"fmt"
)

// Wallet wraps the ed25519 keypair that signs every swap transaction.
type Wallet struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewWallet builds a Wallet from a base58-encoded 64-byte secret key (the
// standard Solana export format: seed followed by public key).
func NewWallet(secretKeyBase58 string) (*Wallet, error) {
	raw, err := Base58Decode(secretKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode secret key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: expected %d-byte secret key, got %d bytes", ed25519.PrivateKeySize, len(raw))
	}
	priv := ed25519.PrivateKey(raw)
	return &Wallet{
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// PublicKey returns the wallet address as a base58 string.
func (w *Wallet) PublicKey() string {
	return Base58Encode(w.pub)
}

// SignTransaction signs a serialized transaction message and splices the
// signature into the wire format. Solana transactions are laid out as a
// compact-u16 signature count, the signatures, then the message; the swap
// aggregator returns the transaction with a single zeroed signature slot for
// the fee payer, which is what we fill in here.
func (w *Wallet) SignTransaction(tx []byte) ([]byte, error) {
	nsigs, off, err := decodeCompactU16(tx)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse transaction: %w", err)
	}
	if nsigs < 1 {
		return nil, fmt.Errorf("crypto: transaction has no signature slot")
	}
	msgStart := off + nsigs*ed25519.SignatureSize
	if msgStart >= len(tx) {
		return nil, fmt.Errorf("crypto: transaction truncated")
	}

	sig := ed25519.Sign(w.priv, tx[msgStart:])

	signed := make([]byte, len(tx))
	copy(signed, tx)
	copy(signed[off:off+ed25519.SignatureSize], sig)
	return signed, nil
}

// SignMessage signs a serialized legacy message and wraps it into a complete
// wire transaction: a compact-u16 signature count of one, the signature,
// then the message bytes.
func (w *Wallet) SignMessage(msg []byte) ([]byte, error) {
	if len(msg) == 0 {
		return nil, fmt.Errorf("crypto: empty message")
	}
	sig := ed25519.Sign(w.priv, msg)
	tx := make([]byte, 0, 1+len(sig)+len(msg))
	tx = append(tx, 1)
	tx = append(tx, sig...)
	tx = append(tx, msg...)
	return tx, nil
}

// decodeCompactU16 reads Solana's compact-u16 length prefix.
func decodeCompactU16(b []byte) (value, size int, err error) {
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, fmt.Errorf("short buffer")
		}
		value |= int(b[i]&0x7f) << (7 * i)
		if b[i]&0x80 == 0 {
			return value, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("compact-u16 overflow")
}
