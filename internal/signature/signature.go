// Package signature signs webhook bodies with HMAC-SHA256 so receivers can
// authenticate the sender. Signatures are always computed over the exact
// bytes placed on the wire.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Header carries the lowercase hex signature on signed deliveries.
const Header = "X-Webhook-Signature"

// Sign returns the lowercase hex HMAC-SHA256 of payload keyed by secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature and compares it in constant time.
// A malformed hex signature never verifies.
func Verify(payload []byte, signatureHex, secret string) bool {
	provided, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), provided)
}
