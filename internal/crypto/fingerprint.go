// Package crypto derives log-safe fingerprints of identity numbers.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// fingerprintLen is the digest size in bytes; rendered as twice as many hex chars.
const fingerprintLen = 8

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Fingerprinter maps identifiers to short keyed digests so logs can correlate
// records without carrying raw national or tax IDs.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter builds a fingerprinter. An empty key gets a random one,
// which makes fingerprints stable only for the life of the process.
func NewFingerprinter(key []byte) (*Fingerprinter, error) {
	if len(key) == 0 {
		var err error
		if key, err = RandBytes(32); err != nil {
			return nil, err
		}
	}
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("fingerprint key longer than %d bytes", blake2b.Size)
	}
	return &Fingerprinter{key: key}, nil
}

// Fingerprint returns a hex digest of id. Nil receivers fall back to "-".
func (f *Fingerprinter) Fingerprint(id string) string {
	if f == nil || id == "" {
		return "-"
	}
	h, err := blake2b.New(fingerprintLen, f.key)
	if err != nil {
		return "-"
	}
	h.Write([]byte(id))
	return hex.EncodeToString(h.Sum(nil))
}
