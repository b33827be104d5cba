package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashNonce returns a hex-encoded SHA-256 fingerprint of a token nonce.
// Consumed-nonce bookkeeping stores the fingerprint, never the raw nonce.
func HashNonce(nonce string) string {
	h := sha256.Sum256([]byte(nonce))
	return hex.EncodeToString(h[:])
}
