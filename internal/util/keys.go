package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// SnapshotKey returns the store key for one (namespace, version) pair.
// Versions are opaque and may be long (ETags), so they are hashed.
func SnapshotKey(prefix, ns, version string) string {
	sum := sha256.Sum256([]byte(version))
	return prefix + ":" + ns + ":" + hex.EncodeToString(sum[:8])
}
