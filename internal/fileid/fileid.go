// Package fileid derives deterministic document IDs from storage keys.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
)

const (
	prefix = "doc_"
	// hexLen is the number of hex characters kept from the digest.
	hexLen = 16
)

// Normalize returns the canonical form of a storage key: slash separated, cleaned,
// without a leading slash.
func Normalize(storageKey string) string {
	key := strings.ReplaceAll(storageKey, "\\", "/")
	return strings.TrimPrefix(path.Clean("/"+key), "/")
}

// DocumentID returns a stable document ID for a storage key. Keys that normalize
// to the same path yield the same ID.
func DocumentID(storageKey string) string {
	hash := sha256.Sum256([]byte(Normalize(storageKey)))
	return prefix + hex.EncodeToString(hash[:])[:hexLen]
}

// IsDocumentID reports whether s has the shape produced by DocumentID.
func IsDocumentID(s string) bool {
	if len(s) != len(prefix)+hexLen || !strings.HasPrefix(s, prefix) {
		return false
	}
	_, err := hex.DecodeString(s[len(prefix):])
	return err == nil
}
