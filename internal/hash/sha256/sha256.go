// Package sha256 provides SHA-256 digests used for synthetic posting references.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Prefix marks references derived from a digest rather than issued by an origin.
const Prefix = "sha256:"

// Fingerprint digests the given fields joined by "|" after lowercasing and collapsing
// whitespace, and returns it with Prefix.
func Fingerprint(fields ...string) string {
	norm := make([]string, len(fields))
	for i, f := range fields {
		norm[i] = strings.ToLower(strings.Join(strings.Fields(f), " "))
	}
	return Prefix + digest([]byte(strings.Join(norm, "|")))
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
