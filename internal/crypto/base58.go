package crypto

import (
	"errors"
	"math/big"
)

// Solana key material and signatures travel as base58 strings. The alphabet
// is the Bitcoin one (no 0, O, I, l).
const b58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var b58Index = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(b58Alphabet); i++ {
		idx[b58Alphabet[i]] = int8(i)
	}
	return idx
}()

// Base58Encode encodes data as a base58 string.
func Base58Encode(data []byte) string {
	x := new(big.Int).SetBytes(data)
	base := big.NewInt(58)
	mod := new(big.Int)

	var out []byte
	for x.Sign() > 0 {
		x.DivMod(x, base, mod)
		out = append(out, b58Alphabet[mod.Int64()])
	}
	// Leading zero bytes become leading '1's.
	for _, b := range data {
		if b != 0 {
			break
		}
		out = append(out, b58Alphabet[0])
	}
	// Reverse.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

// Base58Decode decodes a base58 string into bytes.
func Base58Decode(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("crypto: empty base58 string")
	}

	x := big.NewInt(0)
	base := big.NewInt(58)
	for i := 0; i < len(s); i++ {
		d := b58Index[s[i]]
		if d < 0 {
			return nil, errors.New("crypto: invalid base58 character")
		}
		x.Mul(x, base)
		x.Add(x, big.NewInt(int64(d)))
	}

	decoded := x.Bytes()

	// Restore leading zero bytes encoded as '1'.
	nLeading := 0
	for i := 0; i < len(s) && s[i] == b58Alphabet[0]; i++ {
		nLeading++
	}
	out := make([]byte, nLeading+len(decoded))
	copy(out[nLeading:], decoded)
	return out, nil
}
