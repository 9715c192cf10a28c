// Package cshash provides the content hash used for changeset ids and
// derived external ids.
package cshash

import (
	"encoding/hex"
	"hash"

	"github.com/jamestiotio/sapling/src/internal/errors"
	"golang.org/x/crypto/blake2b"
)

// OutputSize is the size of a hash output in bytes.
const OutputSize = 32

// Output is the output of the hash function.
type Output = [OutputSize]byte

// New returns a new hash state.
func New() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails with a non-nil key.
		panic(err)
	}
	return h
}

// Sum computes the hash of data in one shot.
func Sum(data []byte) Output {
	return blake2b.Sum256(data)
}

// EncodeHex returns the lowercase hex encoding of h.
func EncodeHex(h []byte) string {
	return hex.EncodeToString(h)
}

// DecodeHex parses a lowercase hex string into an Output.
func DecodeHex(s string) (Output, error) {
	var out Output
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err //nolint:wrapcheck
	}
	if len(b) != OutputSize {
		return out, errors.Errorf("hash must be %d bytes, got %d", OutputSize, len(b))
	}
	copy(out[:], b)
	return out, nil
}
