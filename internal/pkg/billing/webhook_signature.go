package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignEvent returns the hex HMAC-SHA256 of payload, as sent by the event
// forwarder in X-Billing-Signature.
func SignEvent(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(secret)))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyEventSignature checks a forwarded event body against its signature
// header. An empty secret or header never verifies.
func VerifyEventSignature(payload []byte, signatureHeader, secret string) bool {
	sig := strings.ToLower(strings.TrimSpace(signatureHeader))
	sig = strings.TrimPrefix(sig, "sha256=")
	if sig == "" || strings.TrimSpace(secret) == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(secret)))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}
