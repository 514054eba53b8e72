package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// keyVersion is mixed into every fingerprint. Bump it when the stored
// payload encoding changes so old entries miss instead of failing to decode.
const keyVersion = 1

// hashKey returns prefix:sha256(keyVersion, parts...) as 64 hex characters.
// Parts are JSON-encoded, so struct field order is part of the key.
func hashKey(prefix string, parts ...any) string {
	data, _ := json.Marshal(append([]any{keyVersion}, parts...))
	sum := sha256.Sum256(data)
	return prefix + ":" + hex.EncodeToString(sum[:])
}

// hexDigest returns the SHA-256 of data as 64 hex characters.
func hexDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
