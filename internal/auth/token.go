package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// tokenPayload is the fixed message signed by the shared editor secret.
// The token is a proof of possessing the secret, not a per-session nonce,
// so the same secret always yields the same token.
const tokenPayload = "pressdeck-editor"

// Issue computes the credential token for the given secret: the
// lowercase-hex HMAC-SHA256 of the fixed payload keyed by the secret.
func Issue(secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(tokenPayload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether token is the credential for secret. Tokens of the
// wrong length are rejected up front; same-length tokens are compared in
// constant time over the full digest so the position of the first
// mismatching byte never leaks.
func Verify(token, secret string) bool {
	if secret == "" {
		return false
	}
	expected := Issue(secret)
	if len(token) != len(expected) {
		return false
	}
	return hmac.Equal([]byte(token), []byte(expected))
}
