package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Key digests a set of strings independent of their order. It is used to
// key directory listings by the configured path set.
func Key(parts ...string) string {
	sorted := slices.Clone(parts)
	slices.Sort(sorted)
	return Sum([]byte(strings.Join(sorted, "\x00")))
}
