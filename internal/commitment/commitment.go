// Package commitment derives the public commitment published for a round.
//
// A commitment is Keccak-256 over the UTF-8 bytes of the secret, the same
// digest the ledger contract stores as bytes32. It is safe to publish; after
// the round ends anyone holding the revealed word can check it with Verify.
package commitment

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/sha3"
)

// Digest is a 32-byte Keccak-256 commitment.
type Digest [32]byte

// ErrInvalidDigest is returned by Parse for malformed input.
var ErrInvalidDigest = errors.New("commitment: invalid digest")

// Of returns the commitment for secret.
func Of(secret string) Digest {
	var d Digest
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(secret))
	h.Sum(d[:0])
	return d
}

// Verify reports whether secret hashes to d.
func Verify(secret string, d Digest) bool {
	return Of(secret) == d
}

// Hex returns the 0x-prefixed lowercase hex encoding.
func (d Digest) Hex() string { return hexutil.Encode(d[:]) }

func (d Digest) String() string { return d.Hex() }

// MarshalText encodes d as 0x-prefixed hex.
func (d Digest) MarshalText() ([]byte, error) { return []byte(d.Hex()), nil }

// UnmarshalText parses 0x-prefixed hex.
func (d *Digest) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = p
	return nil
}

// Parse decodes a 0x-prefixed 32-byte hex string.
func Parse(s string) (Digest, error) {
	var d Digest
	b, err := hexutil.Decode(s)
	if err != nil {
		return d, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}
	if len(b) != len(d) {
		return d, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidDigest, len(d), len(b))
	}
	copy(d[:], b)
	return d, nil
}
