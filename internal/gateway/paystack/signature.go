package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// SignatureHeader is the header carrying the webhook message signature.
const SignatureHeader = "X-Paystack-Signature"

// ValidSignature verifies the HMAC-SHA512 signature the gateway computes
// over the raw webhook body. Constant-time comparison; an empty signature
// never validates.
func ValidSignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign computes the signature for a payload. Used by tests and by tooling
// that replays webhook deliveries.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
