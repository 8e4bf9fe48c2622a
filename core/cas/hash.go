// Package cas computes the content digests used to identify documents and
// bundle members. Every digest is reported as both SHA-256 and BLAKE3.
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"github.com/zeebo/blake3"
)

// ErrInvalidHash is returned when a hash string is not a 64 character
// lowercase hex string.
var ErrInvalidHash = errors.New("invalid hash format")

// ErrMismatch is returned when data does not hash to the expected digest.
var ErrMismatch = errors.New("hash mismatch")

var hexPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// HashResult contains both SHA-256 and BLAKE3 hashes of a blob.
type HashResult struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
}

// Sum hashes data with both algorithms.
func Sum(data []byte) HashResult {
	return HashResult{
		SHA256: Hash(data),
		BLAKE3: Blake3Hash(data),
	}
}

// Hash computes the SHA-256 hash of the given data.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Blake3Hash computes the BLAKE3 hash of the given data.
func Blake3Hash(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// IsValidHash reports whether hash looks like a hex encoded 256-bit digest.
func IsValidHash(hash string) bool {
	return hexPattern.MatchString(hash)
}

// Verify checks data against want. Empty fields in want are skipped.
func Verify(data []byte, want HashResult) error {
	for _, c := range []struct {
		algo, want string
		sum        func([]byte) string
	}{
		{"sha256", want.SHA256, Hash},
		{"blake3", want.BLAKE3, Blake3Hash},
	} {
		if c.want == "" {
			continue
		}
		if !IsValidHash(c.want) {
			return fmt.Errorf("%s %q: %w", c.algo, c.want, ErrInvalidHash)
		}
		if got := c.sum(data); got != c.want {
			return fmt.Errorf("%s: got %s, want %s: %w", c.algo, got, c.want, ErrMismatch)
		}
	}
	return nil
}
