package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the hex HMAC-SHA256 of the JSON payload bytes.
const SignatureHeader = "X-Hub-Signature-256"

func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// SignatureValue formats the header value subscribers compare against.
func SignatureValue(secret string, payload []byte) string {
	return "sha256=" + Sign(secret, payload)
}

// Verify reports whether header is a valid signature of payload under secret.
func Verify(secret string, payload []byte, header string) bool {
	return hmac.Equal([]byte(header), []byte(SignatureValue(secret, payload)))
}
