package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// ID is the content identifier for a source URL: the hex SHA-256 digest of the
// normalized URL. It is the registry primary key and the blob store path seed.
type ID string

// Normalize canonicalizes a raw URL reference before hashing. Identical inputs
// must always produce identical identifiers, so normalization is limited to
// whitespace trimming; anything smarter would silently merge distinct URLs.
func Normalize(rawURL string) string {
	return strings.TrimSpace(rawURL)
}

// NewID derives the deterministic content identifier for a URL.
func NewID(rawURL string) ID {
	sum := sha256.Sum256([]byte(Normalize(rawURL)))
	return ID(hex.EncodeToString(sum[:]))
}

// IsFetchable reports whether a raw reference is a schedulable HTTP(S) URL.
// Malformed references are skipped before scheduling, never recorded.
func IsFetchable(rawURL string) bool {
	normalized := Normalize(rawURL)
	if normalized == "" {
		return false
	}
	lower := strings.ToLower(normalized)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// String returns the identifier as a plain string.
func (id ID) String() string { return string(id) }

// Valid reports whether the identifier looks like a hex SHA-256 digest.
func (id ID) Valid() bool {
	if len(id) != 64 {
		return false
	}
	for _, r := range id {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// ShardPath returns the relative storage path for an identifier. Two two-hex
// prefix levels bound directory fan-out to 256x256 buckets regardless of
// catalog size.
func (id ID) ShardPath(ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	name := string(id)
	if ext != "" {
		name = name + "." + ext
	}
	return filepath.Join(string(id[:2]), string(id[2:4]), name)
}
